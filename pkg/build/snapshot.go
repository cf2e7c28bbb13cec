package build

import (
	"errors"

	"github.com/geobuild/geobuild/pkg/manifest"
	"github.com/geobuild/geobuild/pkg/version"
)

// ErrFrozen is returned by Finalize when called twice.
var ErrFrozen = errors.New("build model already finalized")

// DefaultSourceDir is globbed when a script declares no sources.
const DefaultSourceDir = "src"

// Snapshot is the frozen content of a Model. Renderers read it and never write back.
type Snapshot struct {
	Project        Project              `json:"project"`
	Options        []Option             `json:"options"`
	Variables      []Variable           `json:"variables"`
	CacheVariables []CacheVariable      `json:"cache_variables"`
	Definitions    []Definition         `json:"definitions"`
	IncludeDirs    []IncludeDir         `json:"include_dirs"`
	Sources        []Source             `json:"sources"`
	CompileOptions []Flag               `json:"compile_options"`
	LinkOptions    []Flag               `json:"link_options"`
	Precompiled    []PrecompiledHeaders `json:"precompiled_headers"`
	Libraries      []LinkLibrary        `json:"libraries"`
	Dependencies   []DependencyRef      `json:"dependencies"`
	Raw            []string             `json:"raw"`
	Messages       []string             `json:"messages"`
	ConfigureDeps  []string             `json:"configure_deps"`
	LTO            bool                 `json:"lto"`
	Manifest       *ManifestConfig      `json:"-"`
	// ManifestEnabled mirrors Manifest != nil for policy input.
	ManifestEnabled bool `json:"manifest_enabled"`
}

// CPMDeps returns the source package dependencies in declaration order.
func (s *Snapshot) CPMDeps() []DependencyRef {
	return s.depsOf(KindCPM)
}

// GeodeDeps returns the manifest-level dependencies in declaration order.
func (s *Snapshot) GeodeDeps() []DependencyRef {
	return s.depsOf(KindGeode)
}

func (s *Snapshot) depsOf(kind DependencyKind) []DependencyRef {
	var out []DependencyRef
	for _, d := range s.Dependencies {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// ManifestInputs maps the snapshot onto manifest generator inputs. sdkVersion is the
// resolved SDK version.
func (s *Snapshot) ManifestInputs(sdkVersion string) manifest.Inputs {
	in := manifest.Inputs{
		ModID:          s.Project.ModID,
		ProjectVersion: s.Project.Version,
		SDKVersion:     sdkVersion,
	}
	if s.Manifest != nil {
		in.Template = s.Manifest.Template
	}
	for _, d := range s.GeodeDeps() {
		dep := manifest.Dependency{ID: d.Name, Version: d.Constraint}
		for _, x := range d.Extra {
			dep.Extra = append(dep.Extra, manifest.Field{Key: x.Key, Value: x.Value})
		}
		in.Dependencies = append(in.Dependencies, dep)
	}
	return in
}

// Finalize freezes the model and returns its snapshot. No declaration succeeds after
// Finalize.
func (m *Model) Finalize() (*Snapshot, error) {
	const op = "finalize"
	if m.frozen {
		return nil, &Error{Kind: KindConfiguration, Op: op, Err: ErrFrozen}
	}

	if len(m.sources) == 0 {
		if err := m.AddSourceDir(DefaultSourceDir, "PRIVATE", "", true); err != nil {
			return nil, configError(op, "no sources declared and the default %q directory is missing", DefaultSourceDir)
		}
	}

	if m.manifest == nil {
		for _, d := range m.deps {
			if d.Kind == KindGeode {
				return nil, configError(op, "dependency %q needs manifest generation; call enable_mod_json_generation", d.Name)
			}
		}
	}

	deps := make([]DependencyRef, len(m.deps))
	for i, d := range m.deps {
		if d.Kind == KindCPM {
			r := version.Classify(d.Constraint)
			d.Resolved = &r
		}
		d.Options = append([]Setting(nil), d.Options...)
		d.Extra = append([]ManifestKey(nil), d.Extra...)
		deps[i] = d
	}

	m.frozen = true

	s := &Snapshot{
		Project:         m.project,
		Options:         append([]Option(nil), m.options...),
		Variables:       append([]Variable(nil), m.variables...),
		CacheVariables:  append([]CacheVariable(nil), m.cacheVars...),
		Definitions:     append([]Definition(nil), m.definitions...),
		IncludeDirs:     append([]IncludeDir(nil), m.includeDirs...),
		Sources:         append([]Source(nil), m.sources...),
		CompileOptions:  append([]Flag(nil), m.compileOpts...),
		LinkOptions:     append([]Flag(nil), m.linkOpts...),
		Precompiled:     clonePCH(m.pch),
		Libraries:       append([]LinkLibrary(nil), m.libraries...),
		Dependencies:    deps,
		Raw:             append([]string(nil), m.raw...),
		Messages:        append([]string(nil), m.messages...),
		ConfigureDeps:   append([]string(nil), m.configureDep...),
		LTO:             m.lto,
		ManifestEnabled: m.manifest != nil,
	}
	if m.manifest != nil {
		s.Manifest = &ManifestConfig{TemplatePath: m.manifest.TemplatePath, Template: m.manifest.Template.Clone()}
	}
	return s, nil
}

func clonePCH(in []PrecompiledHeaders) []PrecompiledHeaders {
	out := make([]PrecompiledHeaders, len(in))
	for i, p := range in {
		p.Headers = append([]string(nil), p.Headers...)
		out[i] = p
	}
	return out
}
