package version

import (
	"errors"
	"fmt"
)

// ErrEmptyHistory is returned by history-driven strategies when the commit log
// holds no commit to decide from.
var ErrEmptyHistory = errors.New("empty commit history: cannot decide which part to bump")

// InvalidVersionError reports a string that is not a semantic version.
type InvalidVersionError struct {
	Input string
	Err   error
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid semantic version %q: %v", e.Input, e.Err)
}

func (e *InvalidVersionError) Unwrap() error {
	return e.Err
}

// UnsupportedBumpError reports a part that cannot be applied to a version.
type UnsupportedBumpError struct {
	Version string
	Part    Part
	Reason  string
}

func (e *UnsupportedBumpError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("cannot bump %q: %s", e.Part, e.Reason)
	}
	return fmt.Sprintf("cannot bump %q of version %s: %s", e.Part, e.Version, e.Reason)
}

// ConstraintError reports a computed version rejected by the configured
// version constraint.
type ConstraintError struct {
	Version    string
	Constraint string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("version %s does not satisfy constraint %q", e.Version, e.Constraint)
}
