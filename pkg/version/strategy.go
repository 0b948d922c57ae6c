package version

import (
	"regexp"
	"strings"
)

// BumpStrategy decides which part of a version to advance.
type BumpStrategy interface {
	// Decide returns the part to bump. commitLog holds one commit per line,
	// formatted "<short-hash> <subject>"; strategies that do not look at
	// history ignore it.
	Decide(commitLog string) (Part, error)
	// NeedsHistory reports whether Decide reads commitLog.
	NeedsHistory() bool
}

// Explicit always bumps the part it was built with.
type Explicit struct {
	Part Part
}

func (e Explicit) Decide(string) (Part, error) {
	if !e.Part.concrete() {
		return "", &UnsupportedBumpError{Part: e.Part, Reason: "explicit strategy needs major, minor, patch or prerelease"}
	}
	return e.Part, nil
}

func (Explicit) NeedsHistory() bool { return false }

// a type, optional scope, then "!:" e.g. "refactor(core)!: change api"
var ccBreakingRe = regexp.MustCompile(`^[\w-]+(\([^)]*\))?!:`)

const (
	ccBreakingFooter = "BREAKING CHANGE"
	ccFeature        = "feat"
)

// ConventionalCommits infers the part from conventional commit subjects:
// any breaking change bumps major, otherwise any feature bumps minor,
// otherwise patch.
type ConventionalCommits struct{}

func (ConventionalCommits) Decide(commitLog string) (Part, error) {
	if strings.TrimSpace(commitLog) == "" {
		return "", ErrEmptyHistory
	}

	minor := false
	for _, line := range strings.Split(commitLog, "\n") {
		subject, ok := subjectOf(line)
		if !ok {
			continue
		}
		if ccBreakingRe.MatchString(subject) || strings.HasPrefix(subject, ccBreakingFooter) {
			return PartMajor, nil
		}
		if strings.HasPrefix(subject, ccFeature) {
			minor = true
		}
	}

	if minor {
		return PartMinor, nil
	}
	return PartPatch, nil
}

func (ConventionalCommits) NeedsHistory() bool { return true }

// subjectOf strips the leading short hash from a "<hash> <subject>" line.
func subjectOf(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	_, subject, ok := strings.Cut(line, " ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(subject), true
}

// StrategyFor returns the strategy configured under name. Explicit strategies
// bump patch unless the caller picks a part.
func StrategyFor(name Strategy) (BumpStrategy, error) {
	switch name {
	case "", StrategyConventionalCommits:
		return ConventionalCommits{}, nil
	case StrategyExplicit:
		return Explicit{Part: PartPatch}, nil
	default:
		return nil, &UnsupportedBumpError{Part: PartAuto, Reason: "unknown bump strategy " + string(name)}
	}
}
