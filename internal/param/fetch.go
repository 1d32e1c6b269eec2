// Package param reads secrets and other deployment parameters.
package param

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a parameter does not exist or is empty.
var ErrNotFound = errors.New("parameter not found")

type Fetcher interface {
	Fetch(context.Context, string) (string, error)
	FetchAll(context.Context, string) ([]string, error)
}
