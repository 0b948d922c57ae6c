package version

// Part names the version component a bump advances.
type Part string

const (
	PartMajor      Part = "major"
	PartMinor      Part = "minor"
	PartPatch      Part = "patch"
	PartPrerelease Part = "prerelease"
	// PartAuto defers the decision to a history-driven BumpStrategy.
	PartAuto Part = "auto"
)

// Strategy names a BumpStrategy in configuration.
type Strategy string

const (
	StrategyExplicit            Strategy = "explicit"
	StrategyConventionalCommits Strategy = "conventional_commits"
)

// DefaultPrereleaseToken is the label used when a prerelease bump starts a
// new prerelease series.
const DefaultPrereleaseToken = "rc"

// Parts lists the parts accepted on the command line, in display order.
var Parts = []Part{PartAuto, PartMajor, PartMinor, PartPatch, PartPrerelease}

// ParsePart maps a user-supplied name to a Part.
func ParsePart(name string) (Part, error) {
	for _, p := range Parts {
		if string(p) == name {
			return p, nil
		}
	}
	return "", &UnsupportedBumpError{Part: Part(name), Reason: "unknown version part"}
}

func (p Part) String() string {
	return string(p)
}

// concrete reports whether p can be applied to a version directly.
func (p Part) concrete() bool {
	switch p {
	case PartMajor, PartMinor, PartPatch, PartPrerelease:
		return true
	}
	return false
}
