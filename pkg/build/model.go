// Package build holds the Build Model: the ordered declarations a build script makes
// during one generation pass, and the frozen Snapshot the generators read.
package build

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/geobuild/geobuild/pkg/manifest"
	"github.com/geobuild/geobuild/pkg/platform"
)

// OverrideSource supplies externally set values for options, such as CMake cache
// entries or environment variables.
type OverrideSource interface {
	Lookup(name string) (string, bool)
}

// Project identifies the project a pass configures.
type Project struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	// Dir is the project source directory; relative script paths resolve against it.
	Dir string `json:"dir"`
	// BuildDir is the native build tool's binary directory.
	BuildDir string `json:"build_dir"`
	// ModID, when known, is written to the manifest's "id".
	ModID string `json:"mod_id,omitempty"`
}

// Model accumulates everything a build script declares during one generation pass.
// It is not safe for concurrent use.
type Model struct {
	desc      *platform.Descriptor
	project   Project
	overrides OverrideSource
	frozen    bool

	options      []Option
	variables    []Variable
	cacheVars    []CacheVariable
	definitions  []Definition
	includeDirs  []IncludeDir
	sources      []Source
	compileOpts  []Flag
	linkOpts     []Flag
	pch          []PrecompiledHeaders
	libraries    []LinkLibrary
	deps         []DependencyRef
	raw          []string
	messages     []string
	configureDep []string
	lto          bool
	manifest     *ManifestConfig

	targets map[string]bool
}

// ManifestConfig is the manifest generation request.
type ManifestConfig struct {
	// TemplatePath is set when the template came from a file.
	TemplatePath string
	Template     *manifest.Document
}

// New returns an empty Model bound to desc.
func New(desc *platform.Descriptor, project Project, overrides OverrideSource) *Model {
	if overrides == nil {
		overrides = noOverrides{}
	}
	return &Model{
		desc:      desc,
		project:   project,
		overrides: overrides,
		targets: map[string]bool{
			PrimaryTarget: true,
			SDKTarget:     true,
		},
	}
}

type noOverrides struct{}

func (noOverrides) Lookup(string) (string, bool) { return "", false }

// Platform returns the descriptor the model is bound to.
func (m *Model) Platform() *platform.Descriptor { return m.desc }

// Project returns the project identity.
func (m *Model) Project() Project { return m.project }

func (m *Model) checkMutable(op string) error {
	if m.frozen {
		return configError(op, "build model is frozen")
	}
	return nil
}

// resolvePath makes p absolute against the project directory and uses forward slashes,
// which the native build tool accepts on every host.
func (m *Model) resolvePath(p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.project.Dir, p)
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// resolveTarget maps a script target token to a target name.
func (m *Model) resolveTarget(op, token string) (string, error) {
	switch t := strings.TrimSpace(token); t {
	case "", PrimaryTarget, "${CMAKE_PROJECT_NAME}", m.project.Name:
		return PrimaryTarget, nil
	case "geode", "sdk", SDKTarget:
		return SDKTarget, nil
	default:
		if m.targets[t] {
			return t, nil
		}
		return "", configError(op, "unknown target %q", token)
	}
}

func (m *Model) scope(op, privacy, target string) (Privacy, string, error) {
	p, err := ParsePrivacy(privacy)
	if err != nil {
		return "", "", &Error{Kind: KindConfiguration, Op: op, Message: err.Error()}
	}
	t, err := m.resolveTarget(op, target)
	if err != nil {
		return "", "", err
	}
	return p, t, nil
}

// AddOption declares a boolean option and returns its effective value: the override
// when one is set, else def.
func (m *Model) AddOption(name string, def bool, desc string) (bool, error) {
	const op = "add_option"
	if err := m.checkMutable(op); err != nil {
		return false, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, configError(op, "option name is empty")
	}
	if manifest.IsReserved(name) {
		return false, configError(op, "option %q collides with a reserved manifest field", name)
	}
	for _, o := range m.options {
		if o.Name == name {
			return false, configError(op, "option %q declared twice", name)
		}
	}

	value := def
	if raw, ok := m.overrides.Lookup(name); ok {
		value = Truthy(raw)
	}

	m.options = append(m.options, Option{Name: name, Description: desc, Default: def, Value: value})
	return value, nil
}

// Truthy interprets a CMake-style boolean string.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on", "y":
		return true
	default:
		return false
	}
}

// SetVariable sets a variable. The last write for a name wins; the statement keeps the
// position of the first write.
func (m *Model) SetVariable(name, value string) error {
	const op = "set_variable"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return configError(op, "variable name is empty")
	}
	for i := range m.variables {
		if m.variables[i].Name == name {
			m.variables[i].Value = value
			return nil
		}
	}
	m.variables = append(m.variables, Variable{Name: name, Value: value})
	return nil
}

// SetCacheVariable sets a cache variable; last write wins.
func (m *Model) SetCacheVariable(name, value, typ string, force bool, desc string) error {
	const op = "set_cache_variable"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return configError(op, "variable name is empty")
	}
	typ = strings.ToUpper(strings.TrimSpace(typ))
	switch typ {
	case "":
		typ = "STRING"
	case "BOOL", "FILEPATH", "PATH", "STRING", "INTERNAL":
	default:
		return configError(op, "invalid cache type %q", typ)
	}

	cv := CacheVariable{Name: name, Value: value, Type: typ, Force: force, Description: desc}
	for i := range m.cacheVars {
		if m.cacheVars[i].Name == name {
			m.cacheVars[i] = cv
			return nil
		}
	}
	m.cacheVars = append(m.cacheVars, cv)
	return nil
}

// AddDefinition adds a compile definition.
func (m *Model) AddDefinition(name, value, privacy, target string) error {
	const op = "add_definition"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return configError(op, "definition name is empty")
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	for _, d := range m.definitions {
		if d.Name == name && d.Target == t {
			return configError(op, "definition %q already declared for %s", name, t)
		}
	}
	m.definitions = append(m.definitions, Definition{Name: name, Value: value, Privacy: p, Target: t})
	return nil
}

// AddIncludeDir adds an include directory.
func (m *Model) AddIncludeDir(path, privacy, target string) error {
	const op = "add_include_dir"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	abs := m.resolvePath(path)
	for _, d := range m.includeDirs {
		if d.Path == abs && d.Target == t {
			return configError(op, "include directory %s already declared for %s", abs, t)
		}
	}
	m.includeDirs = append(m.includeDirs, IncludeDir{Path: abs, Privacy: p, Target: t})
	return nil
}

// AddCompileOption adds one compile option.
func (m *Model) AddCompileOption(flag, privacy, target string) error {
	return m.addFlag("add_compile_option", &m.compileOpts, flag, privacy, target)
}

// AddCompileOptions adds several compile options with the same scope.
func (m *Model) AddCompileOptions(flags []string, privacy, target string) error {
	for _, f := range flags {
		if err := m.AddCompileOption(f, privacy, target); err != nil {
			return err
		}
	}
	return nil
}

// AddLinkOption adds one link option.
func (m *Model) AddLinkOption(flag, privacy, target string) error {
	return m.addFlag("add_link_option", &m.linkOpts, flag, privacy, target)
}

// AddLinkOptions adds several link options with the same scope.
func (m *Model) AddLinkOptions(flags []string, privacy, target string) error {
	for _, f := range flags {
		if err := m.AddLinkOption(f, privacy, target); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) addFlag(op string, list *[]Flag, flag, privacy, target string) error {
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if strings.TrimSpace(flag) == "" {
		return configError(op, "option is empty")
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	for _, f := range *list {
		if f.Flag == flag && f.Target == t {
			return configError(op, "option %q already declared for %s", flag, t)
		}
	}
	*list = append(*list, Flag{Flag: flag, Privacy: p, Target: t})
	return nil
}

// SilenceWarningsFor disables compiler warnings for a target using the flag spelling of
// the compiler frontend.
func (m *Model) SilenceWarningsFor(target string) error {
	flag := "-w"
	if m.desc != nil {
		flag = m.desc.CompilerFrontend().FlagPrefix() + "w"
	}
	return m.addFlag("silence_warnings_for", &m.compileOpts, flag, "PRIVATE", target)
}

// AddPrecompileHeaders precompiles headers for a target.
func (m *Model) AddPrecompileHeaders(headers []string, privacy, target string) error {
	const op = "add_precompile_headers"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if len(headers) == 0 {
		return configError(op, "no headers given")
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	for _, e := range m.pch {
		if e.Target == t {
			return configError(op, "precompiled headers already declared for %s", t)
		}
	}
	resolved := make([]string, len(headers))
	for i, h := range headers {
		// Angle-bracket headers are passed through untouched.
		if strings.HasPrefix(h, "<") {
			resolved[i] = h
			continue
		}
		resolved[i] = m.resolvePath(h)
	}
	m.pch = append(m.pch, PrecompiledHeaders{Headers: resolved, Privacy: p, Target: t})
	return nil
}

// LinkLibrary links name into target. Repeated links are ignored.
func (m *Model) LinkLibrary(name, privacy, target string) error {
	const op = "link_library"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	return m.linkLibrary(op, name, privacy, target)
}

// LinkLibraries links several libraries with the same scope.
func (m *Model) LinkLibraries(names []string, privacy, target string) error {
	const op = "link_libraries"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	for _, n := range names {
		if err := m.linkLibrary(op, n, privacy, target); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) linkLibrary(op, name, privacy, target string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return configError(op, "library name is empty")
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	for _, l := range m.libraries {
		if l.Name == name && l.Target == t {
			return nil
		}
	}
	m.libraries = append(m.libraries, LinkLibrary{Name: name, Privacy: p, Target: t})
	return nil
}

// EnableLTO turns on interprocedural optimization.
func (m *Model) EnableLTO() error {
	if err := m.checkMutable("enable_lto"); err != nil {
		return err
	}
	m.lto = true
	return nil
}

// AddRawStatement appends a statement emitted verbatim.
func (m *Model) AddRawStatement(stmt string) error {
	if err := m.checkMutable("add_raw_statement"); err != nil {
		return err
	}
	m.raw = append(m.raw, stmt)
	return nil
}

// Message records a message the native build tool prints while configuring.
func (m *Model) Message(msg string) error {
	if err := m.checkMutable("message"); err != nil {
		return err
	}
	m.messages = append(m.messages, msg)
	return nil
}

// ReconfigureIfChanged makes the native build tool re-run configuration, and with it
// this pass, when path changes. Missing files are ignored.
func (m *Model) ReconfigureIfChanged(path string) error {
	if err := m.checkMutable("reconfigure_if_changed"); err != nil {
		return err
	}
	abs := m.resolvePath(path)
	for _, p := range m.configureDep {
		if p == abs {
			return nil
		}
	}
	if !exists(abs) {
		return nil
	}
	m.configureDep = append(m.configureDep, abs)
	return nil
}

// EnableModJSONGeneration turns on manifest generation from a template file.
func (m *Model) EnableModJSONGeneration(templatePath string) error {
	const op = "enable_mod_json_generation"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	abs := m.resolvePath(templatePath)
	doc, err := manifest.LoadTemplate(filepath.FromSlash(abs))
	if err != nil {
		return &Error{Kind: KindConfiguration, Op: op, Message: "cannot load template", Err: err}
	}
	if doc.Len() == 0 {
		return configError(op, "template %s is empty", abs)
	}
	m.manifest = &ManifestConfig{TemplatePath: abs, Template: doc}
	return m.ReconfigureIfChanged(abs)
}

// EnableModJSONGenerationInline turns on manifest generation from an inline mapping.
func (m *Model) EnableModJSONGenerationInline(tpl *manifest.Document) error {
	const op = "enable_mod_json_generation"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	if tpl.Len() == 0 {
		return configError(op, "template is empty")
	}
	m.manifest = &ManifestConfig{Template: tpl.Clone()}
	return nil
}

// FatalError aborts the pass with message.
func (m *Model) FatalError(message string) error {
	return Abort("fatal_error", message)
}

// VerifySDKAtLeast fails with an UnsupportedSdkError unless the SDK is at least ref.
func (m *Model) VerifySDKAtLeast(ctx context.Context, ref string) error {
	return verifySDKAtLeast(ctx, m.desc, ref)
}
