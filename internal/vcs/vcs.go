// Package vcs exposes the revision-control capabilities the version manager
// relies on, and a git implementation of them.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Commit is one entry of a one-line log.
type Commit struct {
	Hash    string
	Subject string
}

func (c Commit) String() string {
	return c.Hash + " " + c.Subject
}

// Source is what the version manager needs from a revision-control system.
type Source interface {
	// IsClean reports whether the working tree has no uncommitted changes.
	IsClean(ctx context.Context) (bool, error)
	// LogSince returns the commits after marker up to HEAD, oldest first.
	// The marker commit itself is excluded. An empty marker means the whole
	// history.
	LogSince(ctx context.Context, marker string) ([]Commit, error)
	// FindMarker returns the commit bounding the log window of an automatic
	// bump, given the files that carry the version.
	FindMarker(ctx context.Context, paths []string) (string, error)
	Stage(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) error
}

// Tagger is implemented by sources that can tag a release.
type Tagger interface {
	Tag(ctx context.Context, name, message string) error
}

var (
	// ErrNoHistory is returned when there is no commit to bound a log window.
	ErrNoHistory = errors.New("no revision history")
	// ErrTagUnsupported is returned when tagging is requested from a source
	// that does not implement Tagger.
	ErrTagUnsupported = errors.New("tagging is not supported by this revision-control backend")
)

// Tag tags through src when it supports it.
func Tag(ctx context.Context, src Source, name, message string) error {
	t, ok := src.(Tagger)
	if !ok {
		return ErrTagUnsupported
	}
	return t.Tag(ctx, name, message)
}

// FormatLog renders commits as "<hash> <subject>" lines, the input format of
// history-driven bump strategies.
func FormatLog(commits []Commit) string {
	var b strings.Builder
	for _, c := range commits {
		b.WriteString(c.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseLog reads "<hash> <subject>" lines as printed by `git log --oneline`.
// Output is returned in the order read.
func ParseLog(out string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hash, subject, _ := strings.Cut(line, " ")
		commits = append(commits, Commit{Hash: hash, Subject: strings.TrimSpace(subject)})
	}
	return commits
}

// CommandFailedError reports a revision-control command that exited non-zero.
type CommandFailedError struct {
	Args     []string
	ExitCode int
	Output   string
	Err      error
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("command %q failed with exit code %d", strings.Join(e.Args, " "), e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CommandFailedError) Unwrap() error {
	return e.Err
}

// CommandTimeoutError reports a revision-control command killed after its
// timeout expired.
type CommandTimeoutError struct {
	Args    []string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command %q timed out after %s", strings.Join(e.Args, " "), e.Timeout)
}

func (e *CommandTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}
