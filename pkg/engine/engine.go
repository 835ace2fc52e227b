// Package engine drives the wrapped binary analysis engine. The processor
// only sees the Engine and Session interfaces; Ghidra implements them by
// running the headless analyzer against a per-task project directory.
package engine

import (
	"context"
	"errors"
)

var (
	ErrNotStarted       = errors.New("analysis engine is not started")
	ErrSessionClosed    = errors.New("analysis session is closed")
	ErrLauncherNotFound = errors.New("analyzeHeadless launcher not found")
)

// Engine opens analysis sessions once started. Start is safe to call again.
type Engine interface {
	Started() bool
	Start(ctx context.Context) error
	Open(ctx context.Context, opts OpenOptions) (Session, error)
}

// Session is owned by the caller that opened it and must be closed exactly once.
type Session interface {
	Metadata(ctx context.Context) (Metadata, error)
	// Pack serializes the analysis project into a single file at path.
	Pack(ctx context.Context, path string) error
	Close() error
}

// OpenOptions places the analysis project for one binary.
type OpenOptions struct {
	BinaryPath      string
	ProjectName     string
	ProjectLocation string
}

func (o OpenOptions) validate() error {
	switch {
	case o.BinaryPath == "":
		return errors.New("binary path is required")
	case o.ProjectName == "":
		return errors.New("project name is required")
	case o.ProjectLocation == "":
		return errors.New("project location is required")
	}
	return nil
}
