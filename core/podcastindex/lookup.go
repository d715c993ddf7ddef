package podcastindex

import (
	"errors"
)

var errNotFound = errors.New("not found")

// Status 查询结果类型
type Status int

const (
	StatusFound Status = iota
	StatusNotFound
	StatusAPIError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotFound:
		return "not-found"
	default:
		return "api-error"
	}
}

// Lookup is the result of one index query: Found with a value, NotFound, or
// APIError with a reason. Loosely typed API JSON never leaves this package.
type Lookup[T any] struct {
	Status Status
	Value  T
	Reason string
	Err    error
}

func Found[T any](v T) Lookup[T] {
	return Lookup[T]{Status: StatusFound, Value: v}
}

func NotFound[T any]() Lookup[T] {
	return Lookup[T]{Status: StatusNotFound}
}

func APIError[T any](reason string, err error) Lookup[T] {
	return Lookup[T]{Status: StatusAPIError, Reason: reason, Err: err}
}

// Ok reports whether a value was found.
func (l Lookup[T]) Ok() bool { return l.Status == StatusFound }

// fromErr maps a transport error to NotFound or APIError.
func fromErr[T any](reason string, err error) Lookup[T] {
	if errors.Is(err, errNotFound) {
		return NotFound[T]()
	}
	return APIError[T](reason, err)
}
