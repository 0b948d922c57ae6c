package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is an immutable semantic version. Advancing it returns a new value.
type Version struct {
	v *semver.Version
}

// Parse reads a strict semantic version ("1.2.3", "1.2.3-rc.1+build.5").
// A leading "v" or missing components are rejected so that the string form of
// the result always matches the text found in a file.
func Parse(input string) (Version, error) {
	if input == "" {
		return Version{}, &InvalidVersionError{Input: input, Err: fmt.Errorf("empty version input")}
	}
	v, err := semver.StrictNewVersion(input)
	if err != nil {
		return Version{}, &InvalidVersionError{Input: input, Err: err}
	}
	return Version{v: v}, nil
}

// MustParse is like Parse but panics on error. Meant for tests and constants.
func MustParse(input string) Version {
	v, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return v
}

// New builds a version from its components.
func New(major, minor, patch uint64, prerelease, metadata string) Version {
	return Version{v: semver.New(major, minor, patch, prerelease, metadata)}
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

func (v Version) Major() uint64      { return v.sv().Major() }
func (v Version) Minor() uint64      { return v.sv().Minor() }
func (v Version) Patch() uint64      { return v.sv().Patch() }
func (v Version) Prerelease() string { return v.sv().Prerelease() }
func (v Version) Metadata() string   { return v.sv().Metadata() }

func (v Version) sv() *semver.Version {
	if v.v == nil {
		return semver.New(0, 0, 0, "", "")
	}
	return v.v
}

// Compare returns -1, 0 or 1 following semantic versioning precedence.
// Build metadata is ignored.
func (v Version) Compare(o Version) int {
	return v.sv().Compare(o.sv())
}

// Equal reports precedence equality, ignoring build metadata.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func (v Version) GreaterThan(o Version) bool {
	return v.Compare(o) > 0
}

// Next advances the version by one part. Major, minor and patch bumps clear
// prerelease and build metadata. A prerelease bump starts "<token>.1" on the
// next patch for a release version, or increments the trailing numeric
// identifier of an existing prerelease.
func (v Version) Next(part Part, token string) (Version, error) {
	cur := v.sv()

	switch part {
	case PartMajor:
		return New(cur.Major()+1, 0, 0, "", ""), nil
	case PartMinor:
		return New(cur.Major(), cur.Minor()+1, 0, "", ""), nil
	case PartPatch:
		return New(cur.Major(), cur.Minor(), cur.Patch()+1, "", ""), nil
	case PartPrerelease:
		pre, err := nextPrerelease(cur.Prerelease(), token)
		if err != nil {
			return Version{}, &UnsupportedBumpError{Version: v.String(), Part: part, Reason: err.Error()}
		}
		patch := cur.Patch()
		if cur.Prerelease() == "" {
			patch++
		}
		return New(cur.Major(), cur.Minor(), patch, pre, ""), nil
	case PartAuto:
		return Version{}, &UnsupportedBumpError{Version: v.String(), Part: part, Reason: "auto must be resolved by a bump strategy first"}
	default:
		return Version{}, &UnsupportedBumpError{Version: v.String(), Part: part, Reason: "unknown version part"}
	}
}

// nextPrerelease increments the last numeric identifier of pre, or starts a
// new "<token>.1" series when pre is empty.
func nextPrerelease(pre, token string) (string, error) {
	if pre == "" {
		if token == "" {
			token = DefaultPrereleaseToken
		}
		return token + ".1", nil
	}

	idents := strings.Split(pre, ".")
	last := idents[len(idents)-1]
	n, err := strconv.ParseUint(last, 10, 64)
	if err != nil {
		return "", fmt.Errorf("prerelease %q has no trailing numeric identifier", pre)
	}
	idents[len(idents)-1] = strconv.FormatUint(n+1, 10)
	return strings.Join(idents, "."), nil
}
