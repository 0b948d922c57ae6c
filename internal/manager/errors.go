package manager

import (
	"errors"
	"fmt"
)

// ErrInvalidState is returned when an operation is called out of order.
var ErrInvalidState = errors.New("operation not allowed in current state")

// TransitionError wraps the failure of a state transition.
type TransitionError struct {
	From State
	To   State
	Err  error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s -> %s: %v", e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// VersionDriftError reports a file whose version differs from the declared
// current version.
type VersionDriftError struct {
	File     string
	Found    string
	Declared string
}

func (e *VersionDriftError) Error() string {
	return fmt.Sprintf("version drift in %s: found %s, declared %s", e.File, e.Found, e.Declared)
}

// DirtyWorkingTreeError is returned when commit integration is enabled and
// the working tree has uncommitted changes.
type DirtyWorkingTreeError struct {
	Root string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("working tree at %s has uncommitted changes; commit or stash them first", e.Root)
}
