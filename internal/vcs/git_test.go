package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }
func (e exitCode) ExitCode() int { return int(e) }

type reply struct {
	out  string
	code int
}

// scripted answers git commands by their joined arguments and records every
// call.
type scripted struct {
	replies map[string]reply
	calls   [][]string
}

func (s *scripted) run(_ context.Context, _ string, name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	r, ok := s.replies[strings.Join(args, " ")]
	if !ok {
		return nil, nil, nil
	}
	if r.code != 0 {
		return nil, []byte(r.out), exitCode(r.code)
	}
	return []byte(r.out), nil, nil
}

func newScripted(replies map[string]reply) (*scripted, *Git) {
	s := &scripted{replies: replies}
	return s, NewGit("/repo", WithRunner(s.run))
}

func TestGit_IsClean(t *testing.T) {
	_, g := newScripted(map[string]reply{"status --short": {out: ""}})
	clean, err := g.IsClean(context.Background())
	require.NoError(t, err)
	assert.True(t, clean)

	_, g = newScripted(map[string]reply{"status --short": {out: " M README.md\n?? new.txt\n"}})
	clean, err = g.IsClean(context.Background())
	require.NoError(t, err)
	assert.False(t, clean)
}

func TestGit_StageCommitTag(t *testing.T) {
	s, g := newScripted(nil)
	ctx := context.Background()

	require.NoError(t, g.Stage(ctx, []string{"package.json", "src/__init__.py"}))
	require.NoError(t, g.Commit(ctx, "release(patch): bump 0.1.0 -> 0.1.1"))
	require.NoError(t, Tag(ctx, g, "v0.1.1", "release(patch): bump 0.1.0 -> 0.1.1"))
	require.NoError(t, g.Stage(ctx, nil))

	assert.Equal(t, [][]string{
		{"git", "add", "--", "package.json", "src/__init__.py"},
		{"git", "commit", "-m", "release(patch): bump 0.1.0 -> 0.1.1"},
		{"git", "tag", "-a", "v0.1.1", "-m", "release(patch): bump 0.1.0 -> 0.1.1"},
	}, s.calls)
}

func TestGit_CommandFailed(t *testing.T) {
	_, g := newScripted(map[string]reply{"commit -m msg": {out: "nothing to commit", code: 1}})

	err := g.Commit(context.Background(), "msg")
	var failed *CommandFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 1, failed.ExitCode)
	assert.Equal(t, []string{"git", "commit", "-m", "msg"}, failed.Args)
	assert.Contains(t, failed.Error(), "nothing to commit")
}

func TestGit_Timeout(t *testing.T) {
	slow := func(ctx context.Context, _ string, _ string, _ ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	g := NewGit("/repo", WithRunner(slow), WithTimeout(10*time.Millisecond))

	_, err := g.IsClean(context.Background())
	var timeout *CommandTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 10*time.Millisecond, timeout.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGit_LogSince(t *testing.T) {
	s, g := newScripted(map[string]reply{
		"log --no-color --format=%h %s abc1234..HEAD": {out: "c3d4e5f feat: three\nb2c3d4e fix: two\n"},
	})

	commits, err := g.LogSince(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, []Commit{
		{Hash: "b2c3d4e", Subject: "fix: two"},
		{Hash: "c3d4e5f", Subject: "feat: three"},
	}, commits)
	assert.Equal(t, []string{"git", "rev-parse", "--verify", "--quiet", "HEAD"}, s.calls[0])
}

func TestGit_LogSince_EmptyRepo(t *testing.T) {
	_, g := newScripted(map[string]reply{"rev-parse --verify --quiet HEAD": {code: 1}})

	commits, err := g.LogSince(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestGit_FindMarker(t *testing.T) {
	logArgs := "log --no-color --format=%h %s -- a.txt b.txt"
	tests := []struct {
		name    string
		replies map[string]reply
		want    string
		wantErr error
	}{
		{
			name:    "most recent release commit",
			replies: map[string]reply{logArgs: {out: "aaaaaaa fix: x\nbbbbbbb release(minor): bump 0.1.0 -> 0.2.0\nccccccc release(patch): bump 0.0.1 -> 0.1.0\nddddddd init\n"}},
			want:    "bbbbbbb",
		},
		{
			name:    "oldest touching commit without release",
			replies: map[string]reply{logArgs: {out: "aaaaaaa fix: x\nbbbbbbb feat: y\nccccccc init\n"}},
			want:    "ccccccc",
		},
		{
			name:    "files never committed",
			replies: map[string]reply{logArgs: {out: ""}},
			wantErr: ErrNoHistory,
		},
		{
			name:    "no commits at all",
			replies: map[string]reply{"rev-parse --verify --quiet HEAD": {code: 1}},
			wantErr: ErrNoHistory,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, g := newScripted(tc.replies)
			got, err := g.FindMarker(context.Background(), []string{"a.txt", "b.txt"})
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGit_FindMarker_CustomPattern(t *testing.T) {
	s := &scripted{replies: map[string]reply{
		"log --no-color --format=%h %s -- v.txt": {out: "aaaaaaa chore: bump version to 1.2.0\nbbbbbbb release: old style\n"},
	}}
	g := NewGit("/repo", WithRunner(s.run), WithReleasePattern(regexp.MustCompile(`^chore: bump version`)))

	got, err := g.FindMarker(context.Background(), []string{"v.txt"})
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaa", got)
}

type noTags struct{ Source }

func TestTag_Unsupported(t *testing.T) {
	err := Tag(context.Background(), noTags{}, "v1.0.0", "msg")
	assert.ErrorIs(t, err, ErrTagUnsupported)
}

func TestParseAndFormatLog(t *testing.T) {
	commits := ParseLog("a1b2c3d feat(x): add y\n\nb2c3d4e   fix: spaces \nlonely\n")
	assert.Equal(t, []Commit{
		{Hash: "a1b2c3d", Subject: "feat(x): add y"},
		{Hash: "b2c3d4e", Subject: "fix: spaces"},
		{Hash: "lonely", Subject: ""},
	}, commits)
	assert.Equal(t, "a1b2c3d feat(x): add y\nb2c3d4e fix: spaces\nlonely \n", FormatLog(commits))
}

// initRepo creates a git repository with a committer identity.
func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	t.Setenv("GIT_AUTHOR_NAME", "manver")
	t.Setenv("GIT_AUTHOR_EMAIL", "manver@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "manver")
	t.Setenv("GIT_COMMITTER_EMAIL", "manver@example.com")
	t.Setenv("GIT_CONFIG_GLOBAL", os.DevNull)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")

	gitRun(t, dir, "init", "-q")
	gitRun(t, dir, "config", "commit.gpgsign", "false")
	gitRun(t, dir, "config", "tag.gpgsign", "false")
	return dir
}

func gitRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, dir, name, content, msg string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	gitRun(t, dir, "add", name)
	gitRun(t, dir, "commit", "-q", "-m", msg)
}

func TestGit_Integration(t *testing.T) {
	dir := initRepo(t)
	g := NewGit(dir)
	ctx := context.Background()

	_, err := g.FindMarker(ctx, []string{"VERSION"})
	require.ErrorIs(t, err, ErrNoHistory)

	commitFile(t, dir, "VERSION", "0.1.0\n", "chore: init")
	commitFile(t, dir, "main.go", "package main\n", "feat(cli): add main")
	commitFile(t, dir, "README.md", "# x\n", "docs: readme")

	clean, err := g.IsClean(ctx)
	require.NoError(t, err)
	assert.True(t, clean)

	marker, err := g.FindMarker(ctx, []string{"VERSION"})
	require.NoError(t, err)
	assert.Equal(t, gitRun(t, dir, "rev-list", "--max-parents=0", "--abbrev-commit", "HEAD"), marker)

	commits, err := g.LogSince(ctx, marker)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "feat(cli): add main", commits[0].Subject)
	assert.Equal(t, "docs: readme", commits[1].Subject)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "VERSION"), []byte("0.2.0\n"), 0o644))
	clean, err = g.IsClean(ctx)
	require.NoError(t, err)
	assert.False(t, clean)

	require.NoError(t, g.Stage(ctx, []string{"VERSION"}))
	require.NoError(t, g.Commit(ctx, "release(minor): bump 0.1.0 -> 0.2.0"))
	require.NoError(t, g.Tag(ctx, "v0.2.0", "release(minor): bump 0.1.0 -> 0.2.0"))
	assert.Equal(t, "v0.2.0", gitRun(t, dir, "tag", "--list"))

	marker, err = g.FindMarker(ctx, []string{"VERSION"})
	require.NoError(t, err)
	assert.Equal(t, gitRun(t, dir, "rev-parse", "--short", "HEAD"), marker)

	commits, err = g.LogSince(ctx, marker)
	require.NoError(t, err)
	assert.Empty(t, commits)

	err = g.Commit(ctx, "nothing staged")
	var failed *CommandFailedError
	require.True(t, errors.As(err, &failed))
}
