package build

import (
	"fmt"
	"strings"

	"github.com/geobuild/geobuild/pkg/version"
)

// Privacy is the visibility scope of a compile setting.
type Privacy string

const (
	Private   Privacy = "PRIVATE"
	Public    Privacy = "PUBLIC"
	Interface Privacy = "INTERFACE"
)

// ParsePrivacy parses a privacy token. The empty token means PRIVATE.
func ParsePrivacy(s string) (Privacy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PRIVATE":
		return Private, nil
	case "PUBLIC":
		return Public, nil
	case "INTERFACE":
		return Interface, nil
	default:
		return "", fmt.Errorf("invalid privacy %q (want PRIVATE, PUBLIC or INTERFACE)", s)
	}
}

const (
	// PrimaryTarget is the generated project's own target.
	PrimaryTarget = "${PROJECT_NAME}"

	// SDKTarget is the SDK core target, addressed from scripts as "geode" or "sdk".
	SDKTarget = "geode-sdk"
)

// Option is a user-visible boolean build option.
type Option struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
	Value       bool   `json:"value"`
}

// Variable is a plain variable assignment.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CacheVariable is a cache variable assignment.
type CacheVariable struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Force       bool   `json:"force,omitempty"`
	Description string `json:"description,omitempty"`
}

// Definition is a compile definition.
type Definition struct {
	Name    string  `json:"name"`
	Value   string  `json:"value,omitempty"`
	Privacy Privacy `json:"privacy"`
	Target  string  `json:"target"`
}

// IncludeDir is an include directory.
type IncludeDir struct {
	Path    string  `json:"path"`
	Privacy Privacy `json:"privacy"`
	Target  string  `json:"target"`
}

// SourceKind tells globbed source patterns from single files.
type SourceKind string

const (
	SourceGlob SourceKind = "glob"
	SourceFile SourceKind = "file"
)

// Source is a source glob or a single source file.
type Source struct {
	Kind      SourceKind `json:"kind"`
	Pattern   string     `json:"pattern"`
	Privacy   Privacy    `json:"privacy"`
	Target    string     `json:"target"`
	Recursive bool       `json:"recursive,omitempty"`
	// ObjC marks Objective-C globs, which are excluded from precompiled headers.
	ObjC bool `json:"objc,omitempty"`
}

// Flag is a compile or link option.
type Flag struct {
	Flag    string  `json:"flag"`
	Privacy Privacy `json:"privacy"`
	Target  string  `json:"target"`
}

// PrecompiledHeaders is a set of headers to precompile for a target.
type PrecompiledHeaders struct {
	Headers []string `json:"headers"`
	Privacy Privacy  `json:"privacy"`
	Target  string   `json:"target"`
}

// LinkLibrary is a library linked into a target.
type LinkLibrary struct {
	Name    string  `json:"name"`
	Privacy Privacy `json:"privacy"`
	Target  string  `json:"target"`
}

// DependencyKind tells source packages from manifest-level dependencies.
type DependencyKind string

const (
	// KindCPM is a remote source package fetched and built alongside the project.
	KindCPM DependencyKind = "cpm"
	// KindGeode is a published manifest-level dependency. It is never linked.
	KindGeode DependencyKind = "geode"
)

// Setting is one key/value passed to a dependency's own build.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// DependencyRef is a declared dependency.
type DependencyRef struct {
	Kind DependencyKind `json:"kind"`
	// Name is the package name for CPM deps and the mod id for Geode deps.
	Name string `json:"name"`
	// Identifier is the repository URL for CPM deps and the mod id for Geode deps.
	Identifier string `json:"identifier"`
	// Constraint is the pin (tag or commit) for CPM deps, a version range for Geode deps.
	Constraint string `json:"constraint"`
	// Resolved is the classified pin; nil until the model is finalized.
	Resolved *version.Ref  `json:"-"`
	LinkName string        `json:"link_name,omitempty"`
	Privacy  Privacy       `json:"privacy,omitempty"`
	Options  []Setting     `json:"options,omitempty"`
	Extra    []ManifestKey `json:"extra,omitempty"`
}

// ManifestKey is an extra field copied into a manifest dependency entry.
type ManifestKey struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// GitHubRepo returns owner and repo when the dependency is hosted on GitHub.
func (d DependencyRef) GitHubRepo() (owner, repo string, ok bool) {
	if d.Kind != KindCPM {
		return "", "", false
	}
	return githubRepo(d.Identifier)
}
