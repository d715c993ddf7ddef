package main

import (
	"v4vfm/cmd"
)

func main() {
	cmd.Execute()
}
