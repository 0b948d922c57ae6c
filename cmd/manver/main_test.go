package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/afero"

	"github.com/david1155/manver/internal/manager"
	"github.com/david1155/manver/internal/vcs"
	"github.com/david1155/manver/pkg/config"
	"github.com/david1155/manver/pkg/version"
)

const (
	projectDir = "/project"
	configPath = projectDir + "/.manver.toml"
	initPath   = projectDir + "/__init__.py"
)

const testConfig = `[general]
current_version = "0.1.0"

[vcs]
commit = true
tag = true

[files.python]
filename = "__init__.py"
pattern = '__version__ = "(.+?)"'
`

const projectsConfig = `[vcs]
commit = true

[projects.api]
version = "1.4.0" #: api

[projects.api.files.app]
filename = "api/VERSION"
pattern = '^(.+)$'

[projects.web]
version = '0.9.2' #: web

[projects.web.files.app]
filename = "web/VERSION"
pattern = '^(.+)$'
`

func setupProject(t *testing.T) afero.Fs {
	t.Helper()
	color.NoColor = true
	// keep git out of these tests
	t.Setenv("MANVER_NO_COMMIT", "true")
	t.Setenv("MANVER_LOG_LEVEL", "none")

	fsys := afero.NewMemMapFs()
	writeFile(t, fsys, configPath, testConfig)
	writeFile(t, fsys, initPath, "__version__ = \"0.1.0\"\n")
	return fsys
}

func writeFile(t *testing.T, fsys afero.Fs, path, content string) {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, fsys afero.Fs, path string) string {
	t.Helper()
	b, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(b)
}

func TestMainWithArgs(t *testing.T) {
	fsys := setupProject(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name:    "unknown command",
			args:    []string{"release"},
			wantErr: true,
		},
		{
			name:    "nonexistent config",
			args:    []string{"bump", "-c", projectDir + "/missing.toml", "-p", "patch"},
			wantErr: true,
		},
		{
			name:    "invalid part",
			args:    []string{"bump", "-c", configPath, "-p", "build"},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			args:    []string{"bump", "-c", configPath, "-p", "patch", "--log-level", "loud"},
			wantErr: true,
		},
		{
			name:    "dry run",
			args:    []string{"bump", "-c", configPath, "-p", "minor", "--dry-run"},
			wantErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := mainWithArgs(context.Background(), fsys, tc.args, &stdout, &stderr)
			if (err != nil) != tc.wantErr {
				t.Errorf("mainWithArgs() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}

	if got := readFile(t, fsys, initPath); got != "__version__ = \"0.1.0\"\n" {
		t.Errorf("expected no file changes, got %q", got)
	}
}

func TestBump(t *testing.T) {
	fsys := setupProject(t)

	var stdout, stderr bytes.Buffer
	if err := mainWithArgs(context.Background(), fsys, []string{"bump", "-c", configPath, "-p", "patch"}, &stdout, &stderr); err != nil {
		t.Fatalf("bump failed: %v", err)
	}

	if got := readFile(t, fsys, initPath); got != "__version__ = \"0.1.1\"\n" {
		t.Errorf("unexpected version file %q", got)
	}
	if got := readFile(t, fsys, configPath); !strings.Contains(got, `current_version = "0.1.1"`) {
		t.Errorf("config file not updated:\n%s", got)
	}

	out := stdout.String()
	if !strings.Contains(out, "patch: 0.1.0 -> 0.1.1") {
		t.Errorf("missing header in output:\n%s", out)
	}
	if !strings.Contains(out, "__init__.py:1  0.1.0 -> 0.1.1") {
		t.Errorf("missing file line in output:\n%s", out)
	}
	if strings.Contains(out, "committed") {
		t.Errorf("expected no commit with MANVER_NO_COMMIT:\n%s", out)
	}
}

func TestBump_DriftFails(t *testing.T) {
	fsys := setupProject(t)
	writeFile(t, fsys, initPath, "__version__ = \"0.0.9\"\n")

	var stdout, stderr bytes.Buffer
	err := mainWithArgs(context.Background(), fsys, []string{"bump", "-c", configPath, "-p", "patch"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "version drift") {
		t.Fatalf("expected drift error, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("expected no report, got %q", stdout.String())
	}
}

func TestBump_Projects(t *testing.T) {
	fsys := setupProject(t)
	writeFile(t, fsys, configPath, projectsConfig)
	writeFile(t, fsys, projectDir+"/api/VERSION", "1.4.0\n")
	writeFile(t, fsys, projectDir+"/web/VERSION", "0.9.2\n")

	var stdout, stderr bytes.Buffer
	if err := mainWithArgs(context.Background(), fsys, []string{"bump", "-c", configPath, "-p", "minor"}, &stdout, &stderr); err != nil {
		t.Fatalf("bump failed: %v", err)
	}

	if got := readFile(t, fsys, projectDir+"/api/VERSION"); got != "1.5.0\n" {
		t.Errorf("api VERSION = %q", got)
	}
	if got := readFile(t, fsys, projectDir+"/web/VERSION"); got != "0.10.0\n" {
		t.Errorf("web VERSION = %q", got)
	}
	cfg := readFile(t, fsys, configPath)
	for _, want := range []string{`version = "1.5.0" #: api`, `version = '0.10.0' #: web`} {
		if !strings.Contains(cfg, want) {
			t.Errorf("config file lacks %q:\n%s", want, cfg)
		}
	}

	out := stdout.String()
	for _, want := range []string{"api minor: 1.4.0 -> 1.5.0", "web minor: 0.9.2 -> 0.10.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestBump_ProjectsDriftWritesNothing(t *testing.T) {
	fsys := setupProject(t)
	writeFile(t, fsys, configPath, projectsConfig)
	writeFile(t, fsys, projectDir+"/api/VERSION", "1.4.0\n")
	writeFile(t, fsys, projectDir+"/web/VERSION", "0.9.1\n")

	var stdout, stderr bytes.Buffer
	err := mainWithArgs(context.Background(), fsys, []string{"bump", "-c", configPath, "-p", "patch"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), `project "web"`) {
		t.Fatalf("expected drift error for web, got %v", err)
	}
	if got := readFile(t, fsys, projectDir+"/api/VERSION"); got != "1.4.0\n" {
		t.Errorf("api bumped although web drifted: %q", got)
	}
	if got := readFile(t, fsys, configPath); got != projectsConfig {
		t.Errorf("config file changed:\n%s", got)
	}
}

type commitSource struct {
	messages []string
}

func (s *commitSource) IsClean(context.Context) (bool, error) { return true, nil }

func (s *commitSource) LogSince(context.Context, string) ([]vcs.Commit, error) { return nil, nil }

func (s *commitSource) FindMarker(context.Context, []string) (string, error) { return "", nil }

func (s *commitSource) Stage(context.Context, []string) error { return nil }

func (s *commitSource) Commit(_ context.Context, message string) error {
	s.messages = append(s.messages, message)
	return nil
}

type tagSource struct {
	commitSource
}

func (s *tagSource) Tag(context.Context, string, string) error { return nil }

func TestPrintReport_Tagged(t *testing.T) {
	tests := []struct {
		name       string
		source     vcs.Source
		wantTagged bool
	}{
		{name: "tag created", source: &tagSource{}, wantTagged: true},
		{name: "tagging unsupported", source: &commitSource{}, wantTagged: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fsys := setupProject(t)
			cfg, err := config.LoadConfig(fsys, configPath)
			if err != nil {
				t.Fatalf("loading config: %v", err)
			}

			m := manager.New(cfg, manager.WithFs(fsys), manager.WithSource(tc.source))
			d, err := m.Run(context.Background(), version.PartPatch, false)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			var out bytes.Buffer
			printReport(&out, cfg, m, d, false)
			if !strings.Contains(out.String(), `committed "release(patch): bump 0.1.0 -> 0.1.1"`) {
				t.Errorf("missing commit line:\n%s", out.String())
			}
			if got := strings.Contains(out.String(), "tagged v0.1.1"); got != tc.wantTagged {
				t.Errorf("tagged line printed = %v, want %v:\n%s", got, tc.wantTagged, out.String())
			}
		})
	}
}

func TestInit(t *testing.T) {
	color.NoColor = true
	fsys := afero.NewMemMapFs()
	out := projectDir + "/.manver.toml"

	var stdout, stderr bytes.Buffer
	if err := mainWithArgs(context.Background(), fsys, []string{"init", "-o", out}, &stdout, &stderr); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "created "+out) {
		t.Errorf("unexpected output %q", stdout.String())
	}
	if got := readFile(t, fsys, out); got != config.InitTemplate() {
		t.Errorf("unexpected config file:\n%s", got)
	}

	if err := mainWithArgs(context.Background(), fsys, []string{"init", "-o", out}, &stdout, &stderr); err == nil {
		t.Errorf("expected init to refuse an existing file")
	}
	if err := mainWithArgs(context.Background(), fsys, []string{"init", "-o", projectDir + "/manver.yaml"}, &stdout, &stderr); err == nil {
		t.Errorf("expected init to refuse a non-toml file")
	}
}
