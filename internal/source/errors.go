package source

import (
	"errors"
	"fmt"
)

// ErrBuild is matched by every subgraph construction failure.
var ErrBuild = errors.New("subgraph build failed")

// BuildError reports why a source subgraph could not be constructed.
type BuildError struct {
	ID    string
	Stage Role
	Err   error
}

func (e *BuildError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("source %s: build %s stage: %v", e.ID, e.Stage, e.Err)
	}
	return fmt.Sprintf("source %s: build: %v", e.ID, e.Err)
}

func (e *BuildError) Unwrap() []error {
	return []error{ErrBuild, e.Err}
}

func buildErr(id string, stage Role, format string, args ...any) error {
	return &BuildError{ID: id, Stage: stage, Err: fmt.Errorf(format, args...)}
}
