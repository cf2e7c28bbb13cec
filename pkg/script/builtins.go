package script

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/manifest"
	"github.com/geobuild/geobuild/pkg/platform"
)

// prelude is the set of names visible to every build script.
func prelude() starlark.StringDict {
	platforms := starlark.StringDict{
		"Windows":   platformValue{platform.Windows},
		"MacOS":     platformValue{platform.MacOS},
		"IOS":       platformValue{platform.IOS},
		"Android32": platformValue{platform.Android32},
		"Android64": platformValue{platform.Android64},
		"Linux":     platformValue{platform.Linux},
	}

	return starlark.StringDict{
		"PRIVATE":     starlark.String(build.Private),
		"PUBLIC":      starlark.String(build.Public),
		"INTERFACE":   starlark.String(build.Interface),
		"Platform":    starlarkstruct.FromStringDict(starlark.String("Platform"), platforms),
		"fatal_error": starlark.NewBuiltin("fatal_error", fatalError),
		"struct":      starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

func fatalError(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	return nil, build.Abort("fatal_error", msg)
}

type method func(t *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

// methods maps script method names to model operations.
var methods = map[string]method{
	"add_option":                 addOption,
	"message":                    oneString((*build.Model).Message, "msg"),
	"set_variable":               setVariable,
	"set_cache_variable":         setCacheVariable,
	"add_definition":             addDefinition,
	"add_include_dir":            scoped((*build.Model).AddIncludeDir, "path"),
	"add_source_dir":             addSourceDir,
	"add_source_file":            scoped((*build.Model).AddSourceFile, "path"),
	"add_compile_option":         scoped((*build.Model).AddCompileOption, "option"),
	"add_compile_options":        scopedVariadic((*build.Model).AddCompileOptions),
	"add_link_option":            scoped((*build.Model).AddLinkOption, "option"),
	"add_link_options":           scopedVariadic((*build.Model).AddLinkOptions),
	"add_precompile_headers":     scopedVariadic((*build.Model).AddPrecompileHeaders),
	"link_library":               scoped((*build.Model).LinkLibrary, "name"),
	"link_libraries":             scopedVariadic((*build.Model).LinkLibraries),
	"silence_warnings_for":       oneString((*build.Model).SilenceWarningsFor, "lib"),
	"add_raw_statement":          oneString((*build.Model).AddRawStatement, "statement"),
	"reconfigure_if_changed":     oneString((*build.Model).ReconfigureIfChanged, "path"),
	"enable_lto":                 enableLTO,
	"enable_mod_json_generation": enableModJSON,
	"add_cpm_dep":                addCPMDep,
	"add_geode_dep":              addGeodeDep,
	"verify_sdk_at_least":        verifySDKAtLeast,
	"fatal_error":                oneString((*build.Model).FatalError, "msg"),
	"cxx_standard_at_least":      cxxStandardAtLeast,
}

// buildObject is the value passed to a script's main.
type buildObject struct {
	m *build.Model
}

var _ starlark.HasAttrs = (*buildObject)(nil)

func newBuildObject(m *build.Model) *buildObject { return &buildObject{m: m} }

func (b *buildObject) String() string        { return fmt.Sprintf("<build %s>", b.m.Project().Name) }
func (b *buildObject) Type() string          { return "Build" }
func (b *buildObject) Freeze()               {}
func (b *buildObject) Truth() starlark.Bool  { return starlark.True }
func (b *buildObject) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Build") }

func (b *buildObject) Attr(name string) (starlark.Value, error) {
	switch name {
	case "platform":
		return platformValue{b.m.Platform().Target()}, nil
	case "project":
		p := b.m.Project()
		return starlarkstruct.FromStringDict(starlark.String("project"), starlark.StringDict{
			"name":      starlark.String(p.Name),
			"version":   starlark.String(p.Version),
			"dir":       starlark.String(p.Dir),
			"build_dir": starlark.String(p.BuildDir),
			"mod_id":    starlark.String(p.ModID),
		}), nil
	case "compiler":
		d := b.m.Platform()
		return starlarkstruct.FromStringDict(starlark.String("compiler"), starlark.StringDict{
			"id":          starlark.String(d.CompilerID()),
			"version":     starlark.String(d.CompilerVersion()),
			"frontend":    starlark.String(string(d.CompilerFrontend())),
			"is_clang":    starlark.Bool(d.IsClang()),
			"is_clang_cl": starlark.Bool(d.IsClangCL()),
		}), nil
	case "host":
		return starlark.String(b.m.Platform().HostTriple()), nil
	}

	fn, ok := methods[name]
	if !ok {
		return nil, nil
	}
	m := b.m
	return starlark.NewBuiltin(name, func(t *starlark.Thread, bi *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(t, m, bi.Name(), args, kwargs)
	}), nil
}

func (b *buildObject) AttrNames() []string {
	names := []string{"compiler", "host", "platform", "project"}
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func result(err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func oneString(fn func(*build.Model, string) error, param string) method {
	return func(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var s string
		if err := starlark.UnpackArgs(name, args, kwargs, param, &s); err != nil {
			return nil, err
		}
		return result(fn(m, s))
	}
}

// scoped adapts an operation taking one value plus privacy and target.
func scoped(fn func(*build.Model, string, string, string) error, param string) method {
	return func(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var (
			s       string
			privacy = string(build.Private)
			target  starlark.Value
		)
		if err := starlark.UnpackArgs(name, args, kwargs, param, &s, "privacy?", &privacy, "target?", &target); err != nil {
			return nil, err
		}
		t, err := optString(target)
		if err != nil {
			return nil, fmt.Errorf("%s: target: %w", name, err)
		}
		return result(fn(m, s, privacy, t))
	}
}

// scopedVariadic adapts an operation taking *values plus privacy and target keywords.
func scopedVariadic(fn func(*build.Model, []string, string, string) error) method {
	return func(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		values, err := stringArgs(name, args)
		if err != nil {
			return nil, err
		}
		var (
			privacy = string(build.Private)
			target  starlark.Value
		)
		if err := starlark.UnpackArgs(name, nil, kwargs, "privacy?", &privacy, "target?", &target); err != nil {
			return nil, err
		}
		t, err := optString(target)
		if err != nil {
			return nil, fmt.Errorf("%s: target: %w", name, err)
		}
		return result(fn(m, values, privacy, t))
	}
}

func addOption(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		opt  string
		def  bool
		desc string
	)
	if err := starlark.UnpackArgs(name, args, kwargs, "name", &opt, "default?", &def, "desc?", &desc); err != nil {
		return nil, err
	}
	v, err := m.AddOption(opt, def, desc)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(v), nil
}

func setVariable(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key   string
		value starlark.Value
	)
	if err := starlark.UnpackArgs(name, args, kwargs, "key", &key, "value", &value); err != nil {
		return nil, err
	}
	s, err := settingValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result(m.SetVariable(key, s))
}

func setCacheVariable(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key   string
		value starlark.Value
		typ   = "STRING"
		force bool
		desc  string
	)
	if err := starlark.UnpackArgs(name, args, kwargs,
		"key", &key, "value", &value, "type?", &typ, "force?", &force, "desc?", &desc); err != nil {
		return nil, err
	}
	s, err := settingValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result(m.SetCacheVariable(key, s, typ, force, desc))
}

func addDefinition(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		key     string
		value   starlark.Value = starlark.String("")
		privacy                = string(build.Private)
		target  starlark.Value
	)
	if err := starlark.UnpackArgs(name, args, kwargs,
		"key", &key, "value?", &value, "privacy?", &privacy, "target?", &target); err != nil {
		return nil, err
	}
	s, err := settingValue(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	t, err := optString(target)
	if err != nil {
		return nil, fmt.Errorf("%s: target: %w", name, err)
	}
	return result(m.AddDefinition(key, s, privacy, t))
}

func addSourceDir(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		path      string
		recursive = true
		privacy   = string(build.Private)
		target    starlark.Value
	)
	if err := starlark.UnpackArgs(name, args, kwargs,
		"path", &path, "recursive?", &recursive, "privacy?", &privacy, "target?", &target); err != nil {
		return nil, err
	}
	t, err := optString(target)
	if err != nil {
		return nil, fmt.Errorf("%s: target: %w", name, err)
	}
	return result(m.AddSourceDir(path, privacy, t, recursive))
}

func enableLTO(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(name, args, kwargs, 0); err != nil {
		return nil, err
	}
	return result(m.EnableLTO())
}

// enableModJSON accepts a template path or an inline dict.
func enableModJSON(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var template starlark.Value
	if err := starlark.UnpackArgs(name, args, kwargs, "template", &template); err != nil {
		return nil, err
	}
	switch tpl := template.(type) {
	case starlark.String:
		return result(m.EnableModJSONGeneration(string(tpl)))
	case *starlark.Dict:
		doc, err := toDocument(tpl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return result(m.EnableModJSONGenerationInline(doc))
	default:
		return nil, fmt.Errorf("%s: template is %s, want string or dict", name, template.Type())
	}
}

func addCPMDep(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		repo, tag     string
		options       starlark.Value
		pkg, linkName starlark.Value
		privacy       = string(build.Private)
	)
	if err := starlark.UnpackArgs(name, args, kwargs,
		"repo", &repo, "tag", &tag, "options?", &options,
		"name?", &pkg, "link_name?", &linkName, "privacy?", &privacy); err != nil {
		return nil, err
	}
	var settings []build.Setting
	switch opts := options.(type) {
	case nil, starlark.NoneType:
	case *starlark.Dict:
		s, err := toSettings(opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		settings = s
	default:
		return nil, fmt.Errorf("%s: options is %s, want dict", name, options.Type())
	}
	n, err := optString(pkg)
	if err != nil {
		return nil, fmt.Errorf("%s: name: %w", name, err)
	}
	ln, err := optString(linkName)
	if err != nil {
		return nil, fmt.Errorf("%s: link_name: %w", name, err)
	}
	return result(m.AddCPMDep(build.CPMDep{
		Ref:      repo,
		Version:  tag,
		Options:  settings,
		Name:     n,
		LinkName: ln,
		Privacy:  privacy,
	}))
}

// addGeodeDep takes a version string or a dict holding "version" plus extra manifest keys.
func addGeodeDep(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		id   string
		spec starlark.Value
	)
	if err := starlark.UnpackArgs(name, args, kwargs, "mod_id", &id, "version_or_spec", &spec); err != nil {
		return nil, err
	}

	switch v := spec.(type) {
	case starlark.String:
		return result(m.AddGeodeDep(id, string(v), nil))
	case *starlark.Dict:
		doc, err := toDocument(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		raw, _ := doc.Get(manifest.KeyVersion)
		constraint, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s: %s: spec needs a string \"version\"", name, id)
		}
		var extra []build.ManifestKey
		for _, key := range doc.Keys() {
			if key == manifest.KeyVersion || key == manifest.KeyID {
				continue
			}
			val, _ := doc.Get(key)
			extra = append(extra, build.ManifestKey{Key: key, Value: val})
		}
		return result(m.AddGeodeDep(id, constraint, extra))
	default:
		return nil, fmt.Errorf("%s: version_or_spec is %s, want string or dict", name, spec.Type())
	}
}

func verifySDKAtLeast(t *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ref string
	if err := starlark.UnpackArgs(name, args, kwargs, "tag_or_commit", &ref); err != nil {
		return nil, err
	}
	return result(m.VerifySDKAtLeast(contextOf(t), ref))
}

func cxxStandardAtLeast(_ *starlark.Thread, m *build.Model, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var std int
	if err := starlark.UnpackArgs(name, args, kwargs, "std", &std); err != nil {
		return nil, err
	}
	return starlark.Bool(m.Platform().CXXStandardAtLeast(std)), nil
}
