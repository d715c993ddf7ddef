package cmd

import (
	"github.com/spf13/cobra"

	"v4vfm/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 v4vfm 服务器",
	Long:  `启动 HTTP 服务器，提供远程条目解析、歌单解析和 V4V 分账接口`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
