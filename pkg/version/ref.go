package version

import (
	"regexp"
	"strings"
)

// RefKind classifies a pin or constraint string.
type RefKind int

const (
	// RefTag is a tag or branch name that is not a semantic version. It is unorderable.
	RefTag RefKind = iota
	// RefSemver is a semantic version.
	RefSemver
	// RefCommit is an abbreviated or full commit hash.
	RefCommit
)

func (k RefKind) String() string {
	switch k {
	case RefSemver:
		return "semver"
	case RefCommit:
		return "commit"
	default:
		return "tag"
	}
}

var commitPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// Ref is a classified reference.
type Ref struct {
	Raw     string
	Kind    RefKind
	Version Version
}

// Classify inspects raw and decides whether it is a semantic version, a commit hash or
// an opaque tag. Semantic versions win; shorthand numbers like "1234567" are not
// versions and classify as commits.
func Classify(raw string) Ref {
	raw = strings.TrimSpace(raw)
	if v, err := Parse(raw); err == nil {
		return Ref{Raw: raw, Kind: RefSemver, Version: v}
	}
	if commitPattern.MatchString(raw) {
		return Ref{Raw: raw, Kind: RefCommit}
	}
	return Ref{Raw: raw, Kind: RefTag}
}

// SameCommit reports whether two commit references name the same commit, comparing
// on the shorter of the two lengths.
func SameCommit(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	return a[:n] == b[:n]
}

// Newest returns the greatest version among vs, optionally ignoring pre-releases.
// ok is false when nothing qualifies.
func Newest(vs []Version, includePre bool) (newest Version, ok bool) {
	for _, v := range vs {
		if !includePre && v.IsPrerelease() {
			continue
		}
		if !ok || newest.Less(v) {
			newest = v
			ok = true
		}
	}
	return newest, ok
}
