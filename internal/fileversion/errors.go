package fileversion

import (
	"fmt"
)

// InvalidPatternError reports a pattern that does not compile or does not
// have exactly one capture group.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

// NoMatchError reports a pattern that matched no line of a file.
type NoMatchError struct {
	File    string
	Pattern string
}

func (e *NoMatchError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("pattern %q did not match", e.Pattern)
	}
	return fmt.Sprintf("pattern %q did not match in %s", e.Pattern, e.File)
}

// FileNotFoundError reports a declared file missing at load or save time.
type FileNotFoundError struct {
	File string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %s not found", e.File)
}

func (e *FileNotFoundError) Unwrap() error {
	return e.Err
}

// StaleRecordError reports a file whose version span changed after it was
// loaded.
type StaleRecordError struct {
	File     string
	Line     int
	Expected string
	Found    string
}

func (e *StaleRecordError) Error() string {
	return fmt.Sprintf("%s:%d changed since it was read: expected %q, found %q", e.File, e.Line+1, e.Expected, e.Found)
}
