package fileversion

import (
	"bytes"
	"fmt"
	"regexp"
)

// Pattern locates a version inside a file. It wraps a regular expression with
// exactly one capture group, the version text.
type Pattern struct {
	expr string
	re   *regexp.Regexp
}

// Location is where a Pattern matched: zero-based line index and the byte span
// of the capture group within that line.
type Location struct {
	Line  int
	Start int
	End   int
	Text  string
}

// CompilePattern compiles expr and checks it has a single capture group.
func CompilePattern(expr string) (*Pattern, error) {
	if expr == "" {
		return nil, &InvalidPatternError{Pattern: expr, Reason: "empty pattern"}
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: expr, Reason: err.Error()}
	}

	if n := re.NumSubexp(); n != 1 {
		return nil, &InvalidPatternError{
			Pattern: expr,
			Reason:  fmt.Sprintf("expected exactly one capture group, found %d", n),
		}
	}

	return &Pattern{expr: expr, re: re}, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(expr string) *Pattern {
	p, err := CompilePattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string {
	return p.expr
}

// Locate scans content line by line and returns the first match.
// Later matches are ignored.
func (p *Pattern) Locate(content []byte) (Location, error) {
	for i, line := range splitLines(content) {
		m := p.re.FindSubmatchIndex(line.text)
		if m == nil {
			continue
		}
		start, end := m[2], m[3]
		if start < 0 || start == end {
			// group did not take part in the match
			continue
		}
		return Location{
			Line:  i,
			Start: start,
			End:   end,
			Text:  string(line.text[start:end]),
		}, nil
	}
	return Location{}, &NoMatchError{Pattern: p.expr}
}

// line is one line of a file: its text and the terminator that followed it
// ("\n", "\r\n" or nothing for a final unterminated line).
type line struct {
	text []byte
	eol  []byte
}

func splitLines(content []byte) []line {
	var lines []line
	for len(content) > 0 {
		i := bytes.IndexByte(content, '\n')
		if i < 0 {
			lines = append(lines, line{text: content})
			break
		}
		text, eol := content[:i], content[i:i+1]
		if n := len(text); n > 0 && text[n-1] == '\r' {
			text, eol = content[:n-1], content[n-1:i+1]
		}
		lines = append(lines, line{text: text, eol: eol})
		content = content[i+1:]
	}
	return lines
}
