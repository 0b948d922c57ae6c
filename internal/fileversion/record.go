package fileversion

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/david1155/manver/pkg/version"
)

// Record is a version found in a file: where it sits and the value it holds.
// Version is replaced when a bump is applied; Captured is the text currently
// on disk at the span.
type Record struct {
	Path     string
	Version  version.Version
	Line     int
	Start    int
	End      int
	Captured string
}

// Load reads path and locates the version with pattern.
func Load(fsys afero.Fs, path string, pattern *Pattern) (*Record, error) {
	content, err := readFile(fsys, path)
	if err != nil {
		return nil, err
	}

	loc, err := pattern.Locate(content)
	if err != nil {
		var nm *NoMatchError
		if errors.As(err, &nm) {
			nm.File = path
		}
		return nil, err
	}

	v, err := version.Parse(loc.Text)
	if err != nil {
		return nil, fmt.Errorf("%s:%d: %w", path, loc.Line+1, err)
	}

	return &Record{
		Path:     path,
		Version:  v,
		Line:     loc.Line,
		Start:    loc.Start,
		End:      loc.End,
		Captured: loc.Text,
	}, nil
}

// Render returns content with the record's span replaced by its version.
// Every byte outside the span is kept as is.
func (r *Record) Render(content []byte) ([]byte, error) {
	offset, text, ok := lineAt(content, r.Line)
	if !ok || r.Start < 0 || r.End > len(text) || r.Start > r.End {
		return nil, &StaleRecordError{File: r.Path, Line: r.Line, Expected: r.Captured}
	}

	if found := string(text[r.Start:r.End]); found != r.Captured {
		return nil, &StaleRecordError{File: r.Path, Line: r.Line, Expected: r.Captured, Found: found}
	}

	replacement := r.Version.String()
	out := make([]byte, 0, len(content)-(r.End-r.Start)+len(replacement))
	out = append(out, content[:offset+r.Start]...)
	out = append(out, replacement...)
	out = append(out, content[offset+r.End:]...)
	return out, nil
}

// Save rewrites the record's file in place.
func (r *Record) Save(fsys afero.Fs) error {
	content, err := readFile(fsys, r.Path)
	if err != nil {
		return err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return err
	}

	if err := WriteFileAtomic(fsys, r.Path, rendered); err != nil {
		return err
	}
	r.commit()
	return nil
}

// commit makes the record describe what is now on disk.
func (r *Record) commit() {
	r.Captured = r.Version.String()
	r.End = r.Start + len(r.Captured)
}

// Changed reports whether the in-memory version differs from the file.
func (r *Record) Changed() bool {
	return r.Version.String() != r.Captured
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it over path, keeping path's permissions. The target must already exist.
// When path is a symlink the file it points to is replaced and the link is
// kept.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte) error {
	path, err := resolveLink(fsys, path)
	if err != nil {
		return err
	}

	info, err := fsys.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &FileNotFoundError{File: path, Err: err}
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}

	tmp, err := afero.TempFile(fsys, filepath.Dir(path), "."+filepath.Base(path)+".manver-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := fsys.Chmod(tmpName, info.Mode().Perm()); err != nil {
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

const maxLinkHops = 40

// resolveLink follows path through symlinks to the file it names. Filesystems
// without symlink support return path unchanged.
func resolveLink(fsys afero.Fs, path string) (string, error) {
	lstater, ok := fsys.(afero.Lstater)
	if !ok {
		return path, nil
	}
	reader, ok := fsys.(afero.LinkReader)
	if !ok {
		return path, nil
	}

	for i := 0; i < maxLinkHops; i++ {
		info, _, err := lstater.LstatIfPossible(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", &FileNotFoundError{File: path, Err: err}
			}
			return "", fmt.Errorf("lstat %s: %w", path, err)
		}
		if info.Mode()&fs.ModeSymlink == 0 {
			return path, nil
		}

		target, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return "", fmt.Errorf("readlink %s: %w", path, err)
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = target
	}
	return "", fmt.Errorf("resolving %s: too many levels of symbolic links", path)
}

func readFile(fsys afero.Fs, path string) ([]byte, error) {
	content, err := afero.ReadFile(fsys, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FileNotFoundError{File: path, Err: err}
		}
		return nil, fmt.Errorf("cannot read file %s: %w", path, err)
	}
	return content, nil
}

// lineAt returns the byte offset and text (without terminator) of line n.
func lineAt(content []byte, n int) (int, []byte, bool) {
	offset := 0
	for i, l := range splitLines(content) {
		if i == n {
			return offset, l.text, true
		}
		offset += len(l.text) + len(l.eol)
	}
	return 0, nil, false
}
