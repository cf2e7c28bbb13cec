package updates

import (
	"fmt"
	"strings"

	"github.com/geobuild/geobuild/pkg/version"
)

// AdvisoryKind classifies the outcome of one dependency's update check.
type AdvisoryKind string

const (
	KindUpToDate    AdvisoryKind = "up_to_date"
	KindUpdate      AdvisoryKind = "update"
	KindPrerelease  AdvisoryKind = "prerelease"
	KindUnorderable AdvisoryKind = "unorderable"
	KindSkipped     AdvisoryKind = "skipped"
)

// Advisory is a non-fatal update-check result. It never changes a pin.
type Advisory struct {
	Dependency string       `json:"dependency"`
	Kind       AdvisoryKind `json:"kind"`
	Current    string       `json:"current"`
	Latest     string       `json:"latest,omitempty"`
	// Ignored lists upstream tags that are not semantic versions.
	Ignored []string `json:"ignored,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// Actionable reports whether a newer stable release (or commit) exists.
func (a Advisory) Actionable() bool {
	return a.Kind == KindUpdate
}

func (a Advisory) String() string {
	switch a.Kind {
	case KindUpdate:
		return fmt.Sprintf("Update available for %s: %s -> %s", a.Dependency, a.Current, a.Latest)
	case KindPrerelease:
		return fmt.Sprintf("Pre-release available for %s: %s -> %s", a.Dependency, a.Current, a.Latest)
	case KindUnorderable:
		if a.Latest != "" {
			return fmt.Sprintf("%s is pinned to %q, which is not a version; newest release is %s", a.Dependency, a.Current, a.Latest)
		}
		return fmt.Sprintf("%s is pinned to %q, which is not a version", a.Dependency, a.Current)
	case KindSkipped:
		return fmt.Sprintf("Skipped update check for %s: %s", a.Dependency, a.Reason)
	default:
		return fmt.Sprintf("%s is up to date (%s)", a.Dependency, a.Current)
	}
}

// IgnoredNote describes the flagged non-semantic tags, or returns "" when there are none.
func (a Advisory) IgnoredNote() string {
	if len(a.Ignored) == 0 {
		return ""
	}
	const maxShown = 5
	shown := a.Ignored
	suffix := ""
	if len(shown) > maxShown {
		shown = shown[:maxShown]
		suffix = ", ..."
	}
	return fmt.Sprintf("%s: ignored %d tag(s) that are not semantic versions: %s%s",
		a.Dependency, len(a.Ignored), strings.Join(shown, ", "), suffix)
}

// Evaluate compares a tag pin against upstream tags. The newest stable release above
// the pin is the actionable update, whether or not the pin is itself a pre-release; a
// newer pre-release is only reported, as KindPrerelease, when no stable update exists.
// Tags that are not semantic versions are excluded and listed in Ignored.
func Evaluate(name, pin string, tags []string) Advisory {
	adv := Advisory{Dependency: name, Current: pin}

	var versions []version.Version
	for _, tag := range tags {
		if v, err := version.Parse(tag); err == nil {
			versions = append(versions, v)
		} else {
			adv.Ignored = append(adv.Ignored, tag)
		}
	}

	stable, hasStable := version.Newest(versions, false)
	newest, hasAny := version.Newest(versions, true)

	ref := version.Classify(pin)
	if ref.Kind != version.RefSemver {
		adv.Kind = KindUnorderable
		if hasStable {
			adv.Latest = stable.Original()
		}
		return adv
	}
	current := ref.Version

	switch {
	case hasStable && current.Less(stable):
		adv.Kind, adv.Latest = KindUpdate, stable.Original()
	case hasAny && current.Less(newest):
		adv.Kind, adv.Latest = KindPrerelease, newest.Original()
	default:
		adv.Kind = KindUpToDate
	}
	return adv
}

// EvaluateCommit compares a commit pin with the upstream head on the shorter length.
func EvaluateCommit(name, pin, head string) Advisory {
	adv := Advisory{Dependency: name, Current: pin}
	if version.SameCommit(pin, head) {
		adv.Kind = KindUpToDate
		return adv
	}
	n := len(pin)
	if n > len(head) {
		n = len(head)
	}
	adv.Kind, adv.Latest = KindUpdate, head[:n]
	return adv
}
