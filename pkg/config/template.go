package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var (
	ErrNotTOML       = errors.New("config templates can only be written as .toml")
	ErrAlreadyExists = errors.New("config file already exists")
)

const initTemplate = `# manver configuration

[general]
current_version = "0.1.0"
bump_strategy = "conventional_commits"
# release_pattern = "^release"
# prerelease_token = "rc"
# version_constraint = "< 1.0.0"

[vcs]
commit = true
commit_msg = "release({part}): bump {current_version} -> {new_version}"
tag = false
# tag_name = "v{new_version}"

# Each file names a path relative to this file and a regular expression with
# exactly one capture group around the version.
[files.python]
filename = "src/__init__.py"
pattern = '__version__ = "(.+?)"'
`

// InitTemplate returns the starter config written by init.
func InitTemplate() string {
	return initTemplate
}

// WriteTemplate writes the starter config to path on fsys. It never
// overwrites an existing file.
func WriteTemplate(fsys afero.Fs, path string) error {
	if !strings.EqualFold(filepath.Ext(path), ".toml") {
		return fmt.Errorf("%w: %s", ErrNotTOML, path)
	}

	f, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return fmt.Errorf("creating config file: %w", err)
	}

	if _, err := f.WriteString(initTemplate); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	return f.Close()
}
