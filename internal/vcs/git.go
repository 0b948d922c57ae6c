package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds every git invocation.
	DefaultTimeout = 30 * time.Second
	// DefaultReleasePattern matches the subject of release commits.
	DefaultReleasePattern = `^release`
)

// Runner executes a command in dir and returns its stdout and stderr.
type Runner func(ctx context.Context, dir string, name string, args ...string) (stdout, stderr []byte, err error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Git implements Source and Tagger by shelling out to git.
type Git struct {
	dir     string
	timeout time.Duration
	release *regexp.Regexp
	run     Runner
	logger  *zap.Logger
}

var _ interface {
	Source
	Tagger
} = (*Git)(nil)

// GitOption configures a Git.
type GitOption func(*Git)

// WithTimeout sets the per-command timeout. Zero keeps the default.
func WithTimeout(d time.Duration) GitOption {
	return func(g *Git) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithReleasePattern sets the regexp release commit subjects match.
func WithReleasePattern(re *regexp.Regexp) GitOption {
	return func(g *Git) {
		if re != nil {
			g.release = re
		}
	}
}

// WithRunner replaces the command runner.
func WithRunner(r Runner) GitOption {
	return func(g *Git) {
		if r != nil {
			g.run = r
		}
	}
}

// WithLogger sets the logger commands are traced to.
func WithLogger(l *zap.Logger) GitOption {
	return func(g *Git) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGit returns a git source rooted at dir.
func NewGit(dir string, opts ...GitOption) *Git {
	g := &Git{
		dir:     dir,
		timeout: DefaultTimeout,
		release: regexp.MustCompile(DefaultReleasePattern),
		run:     ExecRunner,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Git) IsClean(ctx context.Context) (bool, error) {
	out, err := g.git(ctx, "status", "--short")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) == "", nil
}

func (g *Git) LogSince(ctx context.Context, marker string) ([]Commit, error) {
	ok, err := g.hasCommits(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	args := []string{"log", "--no-color", "--format=%h %s"}
	if marker != "" {
		args = append(args, marker+"..HEAD")
	}
	out, err := g.git(ctx, args...)
	if err != nil {
		return nil, err
	}

	commits := ParseLog(out)
	reverse(commits)
	return commits, nil
}

// FindMarker returns the most recent commit touching paths whose subject
// matches the release pattern, or else the oldest commit touching paths.
func (g *Git) FindMarker(ctx context.Context, paths []string) (string, error) {
	ok, err := g.hasCommits(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: repository has no commits", ErrNoHistory)
	}

	args := append([]string{"log", "--no-color", "--format=%h %s", "--"}, paths...)
	out, err := g.git(ctx, args...)
	if err != nil {
		return "", err
	}

	// newest first
	commits := ParseLog(out)
	if len(commits) == 0 {
		return "", fmt.Errorf("%w: no commit touches %s", ErrNoHistory, strings.Join(paths, ", "))
	}

	for _, c := range commits {
		if g.release.MatchString(c.Subject) {
			g.logger.Debug("found release marker", zap.String("hash", c.Hash), zap.String("subject", c.Subject))
			return c.Hash, nil
		}
	}

	oldest := commits[len(commits)-1]
	g.logger.Debug("no release marker, using oldest commit", zap.String("hash", oldest.Hash))
	return oldest.Hash, nil
}

func (g *Git) Stage(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := g.git(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

func (g *Git) Commit(ctx context.Context, message string) error {
	_, err := g.git(ctx, "commit", "-m", message)
	return err
}

func (g *Git) Tag(ctx context.Context, name, message string) error {
	_, err := g.git(ctx, "tag", "-a", name, "-m", message)
	return err
}

func (g *Git) hasCommits(ctx context.Context) (bool, error) {
	_, err := g.git(ctx, "rev-parse", "--verify", "--quiet", "HEAD")
	if err == nil {
		return true, nil
	}
	var failed *CommandFailedError
	if errors.As(err, &failed) && failed.ExitCode == 1 {
		return false, nil
	}
	return false, err
}

// git runs one git command under the configured timeout.
func (g *Git) git(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	full := append([]string{"git"}, args...)
	g.logger.Debug("running", zap.Strings("cmd", full), zap.String("dir", g.dir))

	stdout, stderr, err := g.run(ctx, g.dir, "git", args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", &CommandTimeoutError{Args: full, Timeout: g.timeout}
		}
		// *exec.ExitError and test runners expose ExitCode
		exitCode := -1
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			exitCode = coded.ExitCode()
		}
		return "", &CommandFailedError{
			Args:     full,
			ExitCode: exitCode,
			Output:   strings.TrimSpace(string(stdout) + "\n" + string(stderr)),
			Err:      err,
		}
	}
	return string(stdout), nil
}

func reverse(commits []Commit) {
	for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
		commits[i], commits[j] = commits[j], commits[i]
	}
}
