package policy

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/geobuild/geobuild/pkg/build"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func testInput(t *testing.T, s *build.Snapshot, frontend string) *Input {
	t.Helper()
	in, err := NewInput(s, nil)
	if err != nil {
		t.Fatalf("NewInput() error = %v", err)
	}
	in.Platform = PlatformInfo{Target: "linux", Frontend: frontend}
	return in
}

func findingsOf(r *Result, policy string) []Violation {
	var out []Violation
	for _, v := range append(append([]Violation{}, r.Violations...), r.Warnings...) {
		if v.Policy == policy {
			out = append(out, v)
		}
	}
	return out
}

func TestNewEngine(t *testing.T) {
	e := newTestEngine(t)

	policies := e.ListPolicies()
	if len(policies) != len(GetBuiltinPolicies()) {
		t.Fatalf("got %d policies, want %d", len(policies), len(GetBuiltinPolicies()))
	}
	for i := 1; i < len(policies); i++ {
		if policies[i-1].Name > policies[i].Name {
			t.Errorf("ListPolicies() not sorted: %s before %s", policies[i-1].Name, policies[i].Name)
		}
	}
}

func TestEvaluate_CleanBuild(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Project:        build.Project{Dir: "/p"},
		CompileOptions: []build.Flag{{Flag: "-Wall", Privacy: build.Private, Target: build.PrimaryTarget}},
		Sources:        []build.Source{{Kind: build.SourceGlob, Pattern: "/p/src/*.cpp"}},
		Dependencies: []build.DependencyRef{
			{Kind: build.KindCPM, Name: "fmt", Identifier: "https://github.com/fmtlib/fmt.git", Constraint: "10.2.1"},
		},
	}

	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed {
		t.Errorf("clean build not allowed: %v", result.Violations)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != len(GetBuiltinPolicies()) {
		t.Errorf("evaluated %v", result.EvaluatedPolicies)
	}
}

func TestEvaluate_NilSlices(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Evaluate(context.Background(), testInput(t, &build.Snapshot{}, "gcc"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !result.Allowed || len(result.Warnings) != 0 {
		t.Errorf("empty build: allowed=%v warnings=%v", result.Allowed, result.Warnings)
	}
}

func TestFlagStylePolicy(t *testing.T) {
	tests := []struct {
		name     string
		frontend string
		flag     string
		want     bool
	}{
		{"msvc flag under clang", "clang", "/W4", true},
		{"msvc flag under msvc", "msvc", "/W4", false},
		{"absolute path is not a flag", "gcc", "/usr/include/foo", false},
		{"gnu flag under msvc", "msvc", "-fno-exceptions", true},
		{"std under msvc", "msvc", "-std=c++20", true},
		{"portable dash flag under msvc", "msvc", "-DFOO", false},
		{"gnu flag under gcc", "gcc", "-fno-exceptions", false},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &build.Snapshot{
				LinkOptions: []build.Flag{{Flag: tt.flag, Privacy: build.Private, Target: build.PrimaryTarget}},
			}
			result, err := e.Evaluate(context.Background(), testInput(t, s, tt.frontend))
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			got := findingsOf(result, "flag-style")
			if (len(got) > 0) != tt.want {
				t.Errorf("findings = %v, want finding %v", got, tt.want)
			}
			if len(got) > 0 && got[0].Subject != tt.flag {
				t.Errorf("Subject = %q, want %q", got[0].Subject, tt.flag)
			}
			if !result.Allowed {
				t.Error("a warning blocked the build")
			}
		})
	}
}

func TestReproduciblePinsPolicy(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Dependencies: []build.DependencyRef{
			{Kind: build.KindCPM, Name: "a", Identifier: "https://github.com/o/a.git", Constraint: "main"},
			{Kind: build.KindCPM, Name: "b", Identifier: "https://github.com/o/b.git", Constraint: "v1.2.3"},
			{Kind: build.KindCPM, Name: "c", Identifier: "https://github.com/o/c.git", Constraint: "0123abcd"},
			{Kind: build.KindGeode, Name: "x.y", Identifier: "x.y", Constraint: ">=1.0.0"},
		},
	}

	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	got := findingsOf(result, "reproducible-pins")
	if len(got) != 1 || got[0].Subject != "a" {
		t.Fatalf("findings = %v, want one for a", got)
	}
	if !strings.Contains(got[0].Message, `"main"`) {
		t.Errorf("Message = %q", got[0].Message)
	}
}

func TestSecureTransportPolicy(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Dependencies: []build.DependencyRef{
			{Kind: build.KindCPM, Name: "plain", Identifier: "http://example.com/plain.git", Constraint: "v1.0.0"},
			{Kind: build.KindCPM, Name: "tls", Identifier: "https://example.com/tls.git", Constraint: "v1.0.0"},
		},
	}

	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	got := findingsOf(result, "secure-transport")
	if len(got) != 1 || got[0].Subject != "plain" {
		t.Errorf("findings = %v, want one for plain", got)
	}
}

func TestSourceLocationPolicy(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Project: build.Project{Dir: "/p"},
		Sources: []build.Source{
			{Kind: build.SourceGlob, Pattern: "/p/src/*.cpp"},
			{Kind: build.SourceFile, Pattern: "/elsewhere/x.cpp"},
			{Kind: build.SourceFile, Pattern: "/p2/y.cpp"},
		},
	}

	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	got := findingsOf(result, "source-location")
	if len(got) != 2 || got[0].Severity != SeverityInfo {
		t.Fatalf("findings = %v, want two info findings", got)
	}
	subjects := []string{got[0].Subject, got[1].Subject}
	sort.Strings(subjects)
	if subjects[0] != "/elsewhere/x.cpp" || subjects[1] != "/p2/y.cpp" {
		t.Errorf("subjects = %v", subjects)
	}
}

func TestSourceLocationPolicyNormalizesProjectDir(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Project: build.Project{Dir: `C:\mods\demo\`},
		Sources: []build.Source{
			{Kind: build.SourceGlob, Pattern: "C:/mods/demo/src/*.cpp"},
			{Kind: build.SourceFile, Pattern: "C:/mods/demo2/x.cpp"},
		},
	}
	if filepath.Separator != '\\' {
		s.Project.Dir = "C:/mods/demo/"
	}

	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	got := findingsOf(result, "source-location")
	if len(got) != 1 || got[0].Subject != "C:/mods/demo2/x.cpp" {
		t.Errorf("findings = %v, want one for C:/mods/demo2/x.cpp", got)
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	e := newTestEngine(t)
	s := &build.Snapshot{
		Dependencies: []build.DependencyRef{
			{Kind: build.KindCPM, Name: "a", Identifier: "https://github.com/o/a.git", Constraint: "main"},
		},
	}

	if err := e.DisablePolicy("reproducible-pins"); err != nil {
		t.Fatalf("DisablePolicy() error = %v", err)
	}
	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatal(err)
	}
	if len(findingsOf(result, "reproducible-pins")) != 0 {
		t.Error("disabled policy still reported")
	}
	for _, name := range result.EvaluatedPolicies {
		if name == "reproducible-pins" {
			t.Error("disabled policy evaluated")
		}
	}

	if err := e.EnablePolicy("reproducible-pins"); err != nil {
		t.Fatalf("EnablePolicy() error = %v", err)
	}
	result, err = e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatal(err)
	}
	if len(findingsOf(result, "reproducible-pins")) != 1 {
		t.Error("re-enabled policy not reported")
	}

	if err := e.EnablePolicy("no-such-policy"); err == nil {
		t.Error("EnablePolicy() on unknown policy succeeded")
	}
}

func TestLoadPolicies_BlockingCustomPolicy(t *testing.T) {
	dir := t.TempDir()
	rego := `# LTO is not allowed here.
# severity: error
package project.lint.lto

import rego.v1

deny contains violation if {
	input.build.lto
	violation := {"subject": input.build.project.name, "message": "LTO is disabled for this project"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "no-lto.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() error = %v", err)
	}

	p, err := e.GetPolicy("no-lto")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if p.Severity != SeverityError || p.Description != "LTO is not allowed here." {
		t.Errorf("policy = %+v", p)
	}

	s := &build.Snapshot{Project: build.Project{Name: "demo"}, LTO: true}
	result, err := e.Evaluate(context.Background(), testInput(t, s, "clang"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Allowed {
		t.Fatal("blocking policy allowed the build")
	}
	if len(result.Violations) != 1 || result.Violations[0].String() != "[no-lto] demo: LTO is disabled for this project" {
		t.Errorf("Violations = %v", result.Violations)
	}

	if err := e.ReloadPolicies(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GetPolicy("no-lto"); err == nil {
		t.Error("custom policy survived ReloadPolicies")
	}
}

func TestLoadPolicies_CompileError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("package broken\n\ndeny contains"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := newTestEngine(t)
	if err := e.LoadPolicies(context.Background(), []string{dir}); err == nil {
		t.Error("LoadPolicies() with a broken policy succeeded")
	}
}

func TestCreateViolation(t *testing.T) {
	p := &Policy{Name: "p", Severity: SeverityWarning}

	v := createViolation(p, "plain message")
	if v.Message != "plain message" || v.Severity != SeverityWarning {
		t.Errorf("string result = %+v", v)
	}

	v = createViolation(p, map[string]interface{}{"message": "m", "subject": "s", "severity": "critical"})
	if v.Message != "m" || v.Subject != "s" || v.Severity != SeverityCritical {
		t.Errorf("object result = %+v", v)
	}

	v = createViolation(p, map[string]interface{}{"message": "m", "severity": "bogus"})
	if v.Severity != SeverityWarning {
		t.Errorf("unknown severity = %s, want policy default", v.Severity)
	}
}
