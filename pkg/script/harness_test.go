package script

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/platform"
)

type mapOverrides map[string]string

func (m mapOverrides) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func newModel(t *testing.T, target string, overrides build.OverrideSource) (*build.Model, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	desc, err := platform.New(platform.Options{
		Target:          target,
		CompilerID:      "Clang",
		FrontendVariant: "MSVC",
		CXXStandard:     20,
		SDKPath:         dir,
		SDKVersion:      "v4.8.0",
	})
	require.NoError(t, err)
	return build.New(desc, build.Project{Name: "demo", Version: "1.0.0", Dir: dir}, overrides), dir
}

func writeScript(t *testing.T, dir, src string) string {
	t.Helper()
	path := filepath.Join(dir, "geobuild.star")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func run(t *testing.T, m *build.Model, path string, opts ...Option) (*Result, error) {
	t.Helper()
	return New(zerolog.Nop(), opts...).Run(context.Background(), path, m)
}

func TestRunMissingScript(t *testing.T) {
	m, dir := newModel(t, "win64", nil)
	res, err := run(t, m, filepath.Join(dir, "geobuild.star"))
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.False(t, res.MainCalled)
}

func TestRunWithoutMain(t *testing.T) {
	m, dir := newModel(t, "win64", nil)
	path := writeScript(t, dir, "X = 1\n")
	res, err := run(t, m, path)
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.MainCalled)
}

func TestRunDeclarations(t *testing.T) {
	m, dir := newModel(t, "win64", mapOverrides{"USE_FMT": "ON"})
	path := writeScript(t, dir, `
def main(build):
    if build.add_option("USE_FMT", desc = "Use fmt"):
        build.add_cpm_dep("fmtlib/fmt", "10.2.1", options = {"FMT_TEST": False, "FMT_JOBS": 4})
    build.add_definition("DEBUG")
    build.add_definition("LEVEL", 3, privacy = PUBLIC)
    build.add_source_dir("src", recursive = False)
    build.add_compile_options("-Wall", "-Wextra")
    build.link_libraries("a", "b", privacy = INTERFACE)
    build.set_cache_variable("C", True, type = "BOOL", force = True)
    build.enable_mod_json_generation({
        "name": "Demo",
        "developer": "someone",
        "settings": {"b": 1, "a": [1.5, None]},
    })
    build.add_geode_dep("geode.node-ids", {"version": ">=1.0.0", "importance": "required"})
    build.add_geode_dep("dev.other", ">=2.0.0")
`)

	res, err := run(t, m, path)
	require.NoError(t, err)
	assert.True(t, res.MainCalled)

	snap, err := m.Finalize()
	require.NoError(t, err)

	require.Len(t, snap.Options, 1)
	assert.True(t, snap.Options[0].Value)

	require.Len(t, snap.Definitions, 2)
	assert.Equal(t, "DEBUG", snap.Definitions[0].Name)
	assert.Equal(t, build.PrimaryTarget, snap.Definitions[0].Target)
	assert.Equal(t, "3", snap.Definitions[1].Value)
	assert.Equal(t, build.Public, snap.Definitions[1].Privacy)

	require.Len(t, snap.CompileOptions, 2)
	assert.Equal(t, "-Wextra", snap.CompileOptions[1].Flag)

	require.Len(t, snap.CacheVariables, 1)
	assert.Equal(t, "ON", snap.CacheVariables[0].Value)

	cpm := snap.CPMDeps()
	require.Len(t, cpm, 1)
	assert.Equal(t, "https://github.com/fmtlib/fmt.git", cpm[0].Identifier)
	assert.Equal(t, []build.Setting{{Key: "FMT_TEST", Value: "OFF"}, {Key: "FMT_JOBS", Value: "4"}}, cpm[0].Options)

	geode := snap.GeodeDeps()
	require.Len(t, geode, 2)
	assert.Equal(t, ">=1.0.0", geode[0].Constraint)
	assert.Equal(t, []build.ManifestKey{{Key: "importance", Value: "required"}}, geode[0].Extra)

	require.NotNil(t, snap.Manifest)
	assert.Equal(t, []string{"name", "developer", "settings"}, snap.Manifest.Template.Keys())
}

func TestRunPlatformView(t *testing.T) {
	m, dir := newModel(t, "android32", nil)
	path := writeScript(t, dir, `
def main(build):
    p = build.platform
    build.set_variable("MOBILE", p.is_mobile())
    build.set_variable("BITS32", p.is_32bit())
    build.set_variable("SAME", p == Platform.Android32)
    build.set_variable("OTHER", p != Platform.Windows)
    build.set_variable("NAME", p.name)
    build.set_variable("CLANG_CL", build.compiler.is_clang_cl)
    build.set_variable("CXX20", build.cxx_standard_at_least(20))
    build.set_variable("PROJECT", build.project.name)
`)

	_, err := run(t, m, path)
	require.NoError(t, err)
	snap, err := m.Finalize()
	require.NoError(t, err)

	got := map[string]string{}
	for _, v := range snap.Variables {
		got[v.Name] = v.Value
	}
	assert.Equal(t, map[string]string{
		"MOBILE":   "ON",
		"BITS32":   "ON",
		"SAME":     "ON",
		"OTHER":    "ON",
		"NAME":     "android",
		"CLANG_CL": "ON",
		"CXX20":    "ON",
		"PROJECT":  "demo",
	}, got)
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		kind    build.ErrorKind
		message string
	}{
		{
			name:    "fatal error",
			src:     "def main(build):\n    fatal_error(\"unsupported setup\")\n",
			kind:    build.KindScriptAbort,
			message: "unsupported setup",
		},
		{
			name:    "fatal error method",
			src:     "def main(build):\n    build.fatal_error(\"nope\")\n",
			kind:    build.KindScriptAbort,
			message: "nope",
		},
		{
			name: "model error keeps its kind",
			src:  "def main(build):\n    build.add_geode_dep(\"NotAnId\", \">=1.0.0\")\n",
			kind: build.KindDependencyResolution,
		},
		{
			name: "duplicate option",
			src:  "def main(build):\n    build.add_option(\"A\")\n    build.add_option(\"A\")\n",
			kind: build.KindConfiguration,
		},
		{
			name:    "runtime error",
			src:     "def main(build):\n    x = 1 // 0\n",
			kind:    build.KindScriptAbort,
			message: "unhandled error",
		},
		{
			name:    "syntax error",
			src:     "def main(build)\n",
			kind:    build.KindScriptAbort,
			message: "syntax error",
		},
		{
			name:    "bad keyword",
			src:     "def main(build):\n    build.add_source_dir(\"src\", recurse = True)\n",
			kind:    build.KindScriptAbort,
			message: "recurse",
		},
		{
			name:    "top level abort",
			src:     "fatal_error(\"early\")\n",
			kind:    build.KindScriptAbort,
			message: "early",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, dir := newModel(t, "win64", nil)
			_, err := run(t, m, writeScript(t, dir, tt.src))
			require.Error(t, err)

			kind, ok := build.KindOf(err)
			require.True(t, ok, "error %v is not classified", err)
			assert.Equal(t, tt.kind, kind)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestRunPrint(t *testing.T) {
	m, dir := newModel(t, "linux", nil)
	var out bytes.Buffer
	path := writeScript(t, dir, "def main(build):\n    print(\"hello\", build.platform)\n")

	_, err := run(t, m, path, WithStdout(&out))
	require.NoError(t, err)
	assert.Equal(t, "hello linux\n", out.String())
}

func TestRunTimeout(t *testing.T) {
	m, dir := newModel(t, "linux", nil)
	path := writeScript(t, dir, `
def main(build):
    n = 0
    for i in range(1000000000):
        n += i
`)

	start := time.Now()
	_, err := run(t, m, path, WithTimeout(50*time.Millisecond))
	require.Error(t, err)
	assert.True(t, build.IsScriptAbort(err))
	assert.Less(t, time.Since(start), 10*time.Second)
}
