// Package version provides an explicit semantic version type and classification of the
// references a build script may pin dependencies or the SDK to.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a parsed major.minor.patch[-pre][+build] version.
type Version struct {
	Major int
	Minor int
	Patch int
	// Pre is the pre-release suffix without the leading '-', empty for releases.
	Pre string
	// Build is build metadata without the leading '+'. It never affects ordering.
	Build string

	original  string
	canonical string
}

// Parse parses s as a semantic version. A leading "v" is optional. All three numeric
// components are required; shorthand forms such as "v1.2" are rejected.
func Parse(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Version{}, fmt.Errorf("empty version")
	}

	v := raw
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Version{}, fmt.Errorf("%q is not a semantic version", raw)
	}

	core := v[1:]
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("%q is not a full major.minor.patch version", raw)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("%q: invalid component %q", raw, p)
		}
		nums[i] = n
	}

	pre := strings.TrimPrefix(semver.Prerelease(v), "-")
	build := strings.TrimPrefix(semver.Build(v), "+")

	return Version{
		Major:     nums[0],
		Minor:     nums[1],
		Patch:     nums[2],
		Pre:       pre,
		Build:     build,
		original:  raw,
		canonical: semver.Canonical(v),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsPrerelease reports whether v carries a pre-release suffix.
func (v Version) IsPrerelease() bool {
	return v.Pre != ""
}

// Compare returns -1, 0 or +1. Pre-releases sort below the release they precede and
// numeric pre-release identifiers compare numerically.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

// Original returns the string the version was parsed from.
func (v Version) Original() string {
	return v.original
}

// String renders the version in canonical "vX.Y.Z[-pre]" form.
func (v Version) String() string {
	if v.canonical == "" {
		return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	return v.canonical
}
