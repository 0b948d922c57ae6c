package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Constraint guards the versions a bump may produce, e.g. "< 1.0.0" to keep a
// project in its 0.x series.
type Constraint struct {
	raw string
	c   *semver.Constraints
}

// ParseConstraint reads a constraint expression. Terraform style "~>" terms
// are expanded to ">=X.Y.Z, <X+1.0.0" before parsing.
func ParseConstraint(input string) (*Constraint, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("empty version constraint")
	}

	c, err := semver.NewConstraint(ExpandTildeArrow(input))
	if err != nil {
		return nil, fmt.Errorf("parsing version constraint %q: %w", input, err)
	}
	return &Constraint{raw: input, c: c}, nil
}

// Check fails with a ConstraintError when v is outside the constraint.
// A nil constraint accepts everything.
func (c *Constraint) Check(v Version) error {
	if c == nil {
		return nil
	}
	if !c.c.Check(v.sv()) {
		return &ConstraintError{Version: v.String(), Constraint: c.raw}
	}
	return nil
}

func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// ExpandTildeArrow scans for "~>" => ">=X.Y.Z, <X+1.0.0"
func ExpandTildeArrow(expr string) string {
	if !strings.Contains(expr, "~>") {
		return expr
	}

	var result []string
	for _, part := range strings.Split(expr, "||") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "~>") {
			part = strings.TrimSpace(strings.TrimPrefix(part, "~>"))
			result = append(result, buildRangeFromTildePart(part))
		} else {
			result = append(result, part)
		}
	}

	return strings.Join(result, " || ")
}

func buildRangeFromTildePart(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "~>MISSING"
	}

	if len(strings.Split(v, ".")) > 3 {
		return "~>INVALID"
	}

	// Partial versions ("0.4") are accepted here
	ver, err := semver.NewVersion(v)
	if err != nil {
		return "~>INVALID"
	}

	return fmt.Sprintf(">=%d.%d.%d, <%d.0.0", ver.Major(), ver.Minor(), ver.Patch(), ver.Major()+1)
}
