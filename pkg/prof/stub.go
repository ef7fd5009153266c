//go:build !profile

package prof

import (
	"context"
	"errors"
)

// Profiling errors (never returned by the stubs).
var (
	ErrCPUProfileActive = errors.New("cpu profile already active")
	ErrSessionStopped   = errors.New("profiling session stopped")
)

// Enabled reports whether the package was built with the "profile" tag.
const Enabled = false

// Options selects what a Session records. Ignored without the "profile"
// tag.
type Options struct {
	CPU   string
	Heap  string
	Block string
	HTTP  string
}

// Session is a no-op without the "profile" tag.
type Session struct{}

// Start returns an empty session.
func Start(_ Options) (*Session, error) {
	return &Session{}, nil
}

// Addr always returns "".
func (s *Session) Addr() string {
	return ""
}

// Stop is a no-op.
func (s *Session) Stop() error {
	return nil
}

// Do calls fn.
func Do(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
