// Package environment abstracts environment variable lookup so that
// API keys can be injected in tests.
package environment

import (
	"context"
	"os"
)

// Provider looks up named environment values.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// OS reads from the process environment.
type OS struct{}

func NewOS() *OS {
	return &OS{}
}

func (*OS) Get(_ context.Context, name string) (string, error) {
	return os.Getenv(name), nil
}

// Static serves values from a fixed map. Used in tests.
type Static map[string]string

func (s Static) Get(_ context.Context, name string) (string, error) {
	return s[name], nil
}
