package cmakegen

import (
	"bytes"
	"strings"
	"testing"

	"github.com/geobuild/geobuild/pkg/build"
)

func sampleSnapshot() *build.Snapshot {
	return &build.Snapshot{
		Messages:       []string{"Hello"},
		Options:        []build.Option{{Name: "USE_FOO", Description: "Use foo", Value: true}},
		Variables:      []build.Variable{{Name: "A", Value: `x"y`}},
		CacheVariables: []build.CacheVariable{{Name: "C", Value: "1", Type: "BOOL", Force: true, Description: "c"}},
		Definitions: []build.Definition{
			{Name: "DEBUG", Privacy: build.Private, Target: build.PrimaryTarget},
			{Name: "FMT_HEADER_ONLY", Value: "1", Privacy: build.Public, Target: "fmt"},
		},
		IncludeDirs: []build.IncludeDir{{Path: "/p/include", Privacy: build.Public, Target: build.PrimaryTarget}},
		Sources: []build.Source{
			{Kind: build.SourceGlob, Pattern: "/p/src/*.cpp", Privacy: build.Private, Target: build.PrimaryTarget, Recursive: true},
			{Kind: build.SourceGlob, Pattern: "/p/src/*.mm", Privacy: build.Private, Target: build.PrimaryTarget, Recursive: true, ObjC: true},
			{Kind: build.SourceFile, Pattern: "/p/main.cpp", Privacy: build.Private, Target: build.PrimaryTarget},
		},
		CompileOptions: []build.Flag{
			{Flag: "-Wall", Privacy: build.Private, Target: build.PrimaryTarget},
			{Flag: "-w", Privacy: build.Private, Target: "fmt"},
		},
		Precompiled: []build.PrecompiledHeaders{{Headers: []string{"<string>"}, Privacy: build.Private, Target: build.PrimaryTarget}},
		Dependencies: []build.DependencyRef{
			{
				Kind:       build.KindCPM,
				Name:       "fmt",
				Identifier: "https://github.com/fmtlib/fmt.git",
				Constraint: "10.2.1",
				LinkName:   "fmt",
				Privacy:    build.Private,
				Options:    []build.Setting{{Key: "FMT_TEST", Value: "OFF"}},
			},
			{Kind: build.KindGeode, Name: "x.y", Identifier: "x.y", Constraint: ">=1.0.0"},
		},
		Libraries:     []build.LinkLibrary{{Name: "fmt", Privacy: build.Private, Target: build.PrimaryTarget}},
		LTO:           true,
		Raw:           []string{"add_compile_definitions(RAW=1)"},
		ConfigureDeps: []string{"/p/mod.json"},
	}
}

func TestRender(t *testing.T) {
	got, err := Render(sampleSnapshot(), Header{ToolVersion: "v1.0.0", Platform: "win64", SDKVersion: "v4.8.0"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := `# Generated by geobuild v1.0.0. Do not edit, this file is rewritten on every configure.
# Configured for platform win64, SDK v4.8.0.

message(STATUS "Hello")

option(USE_FOO "Use foo" ON)

set(A "x\"y")

set(C "1" CACHE BOOL "c" FORCE)

target_compile_definitions(${PROJECT_NAME} PRIVATE "DEBUG")

target_include_directories(${PROJECT_NAME} PUBLIC "/p/include")

file(GLOB_RECURSE GEOBUILD_SOURCES_1 CONFIGURE_DEPENDS "/p/src/*.cpp")
target_sources(${PROJECT_NAME} PRIVATE ${GEOBUILD_SOURCES_1})
file(GLOB_RECURSE GEOBUILD_SOURCES_2 CONFIGURE_DEPENDS "/p/src/*.mm")
target_sources(${PROJECT_NAME} PRIVATE ${GEOBUILD_SOURCES_2})
if(GEOBUILD_SOURCES_2)
    set_source_files_properties(${GEOBUILD_SOURCES_2} PROPERTIES SKIP_PRECOMPILE_HEADERS ON)
endif()
target_sources(${PROJECT_NAME} PRIVATE "/p/main.cpp")

target_compile_options(${PROJECT_NAME} PRIVATE "-Wall")

target_precompile_headers(${PROJECT_NAME} PRIVATE "<string>")

CPMAddPackage(
    NAME "fmt"
    GIT_REPOSITORY "https://github.com/fmtlib/fmt.git"
    GIT_TAG "10.2.1"
    OPTIONS
        "FMT_TEST OFF"
)

target_compile_definitions("fmt" PUBLIC "FMT_HEADER_ONLY=1")

target_compile_options("fmt" PRIVATE "-w")

target_link_libraries(${PROJECT_NAME} PRIVATE "fmt")

set(CMAKE_INTERPROCEDURAL_OPTIMIZATION ON)
set_property(TARGET ${PROJECT_NAME} PROPERTY INTERPROCEDURAL_OPTIMIZATION ON)

add_compile_definitions(RAW=1)

configure_file(
    "/p/mod.json"
    "${CMAKE_CURRENT_BINARY_DIR}/geobuild/` + ReconfigureStamp("/p/mod.json") + `"
    COPYONLY
)
`
	if string(got) != want {
		t.Errorf("Render() mismatch\n--- got ---\n%s\n--- want ---\n%s", got, want)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	h := Header{ToolVersion: "v1.0.0"}
	first, err := Render(sampleSnapshot(), h)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Render(sampleSnapshot(), h)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("two renders of the same snapshot differ")
	}
}

func TestRenderEmptySnapshot(t *testing.T) {
	got, err := Render(&build.Snapshot{}, Header{})
	if err != nil {
		t.Fatal(err)
	}
	want := "# Generated by geobuild. Do not edit, this file is rewritten on every configure.\n"
	if string(got) != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
	if _, err := Render(nil, Header{}); err == nil {
		t.Error("Render(nil) succeeded")
	}
}

func TestCategoryOrder(t *testing.T) {
	got, err := Render(sampleSnapshot(), Header{})
	if err != nil {
		t.Fatal(err)
	}
	out := string(got)
	order := []string{
		"option(",
		"set(A",
		"target_compile_definitions(${PROJECT_NAME}",
		"target_include_directories(",
		"file(GLOB_RECURSE",
		"target_compile_options(${PROJECT_NAME}",
		"CPMAddPackage(",
		`target_compile_definitions("fmt"`,
		`target_compile_options("fmt"`,
		"target_link_libraries(",
		"configure_file(",
	}
	last := -1
	for _, s := range order {
		i := strings.Index(out, s)
		if i < 0 {
			t.Fatalf("%q missing from output", s)
		}
		if i < last {
			t.Errorf("%q emitted out of order", s)
		}
		last = i
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`plain`, `"plain"`},
		{`a"b`, `"a\"b"`},
		{`C:\path`, `"C:\\path"`},
		{`${HOME}`, `"\${HOME}"`},
		{``, `""`},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestVariablesKeepReferences(t *testing.T) {
	s := &build.Snapshot{
		Variables:      []build.Variable{{Name: "CMAKE_CXX_FLAGS", Value: "${CMAKE_CXX_FLAGS} -fno-rtti"}},
		CacheVariables: []build.CacheVariable{{Name: "OUT", Value: `${CMAKE_BINARY_DIR}\out`, Type: "PATH", Description: "where ${X} goes"}},
	}
	got, err := Render(s, Header{})
	if err != nil {
		t.Fatal(err)
	}
	out := string(got)
	for _, want := range []string{
		`set(CMAKE_CXX_FLAGS "${CMAKE_CXX_FLAGS} -fno-rtti")`,
		`set(OUT "${CMAKE_BINARY_DIR}\\out" CACHE PATH "where \${X} goes")`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s\n%s", want, out)
		}
	}
}

func TestQuoteExpanding(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`${HOME}/x`, `"${HOME}/x"`},
		{`a"b`, `"a\"b"`},
		{`C:\path`, `"C:\\path"`},
	}
	for _, tt := range tests {
		if got := QuoteExpanding(tt.in); got != tt.want {
			t.Errorf("QuoteExpanding(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCommentWraps(t *testing.T) {
	var buf strings.Builder
	w := newWriter(&buf)
	w.Comment(strings.Repeat("word ", 40))
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if len(line) > lineWidth {
			t.Errorf("line too long (%d): %q", len(line), line)
		}
		if !strings.HasPrefix(line, "# ") {
			t.Errorf("line %q is not a comment", line)
		}
	}
}
