package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeepsTemplateFields(t *testing.T) {
	tpl, err := ParseTemplate([]byte(`{"name":"Test"}`))
	if err != nil {
		t.Fatal(err)
	}

	doc, err := Generate(Inputs{
		Template:       tpl,
		ProjectVersion: "1.0.0",
		SDKVersion:     "v4.9.0",
		Dependencies:   []Dependency{{ID: "x.y", Version: ">=1.0.0"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if name, _ := doc.Get("name"); name != "Test" {
		t.Errorf("name = %v, want Test", name)
	}
	deps, _ := doc.Get(KeyDependencies)
	list, ok := deps.([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("dependencies = %#v", deps)
	}
	entry := list[0].(*Document)
	if got := entry.Keys(); len(got) != 2 {
		t.Errorf("dependency keys = %v, want [id version]", got)
	}
	if id, _ := entry.Get("id"); id != "x.y" {
		t.Errorf("id = %v", id)
	}
	if v, _ := entry.Get("version"); v != ">=1.0.0" {
		t.Errorf("version = %v", v)
	}

	// The template itself is not mutated.
	if tpl.Has(KeyDependencies) {
		t.Error("Generate mutated the template")
	}
}

func TestGenerateReservedKeysOverwrite(t *testing.T) {
	tpl, _ := ParseTemplate([]byte(`{"geode":"1.0.0","version":"v0.0.1","name":"Mod","dependencies":[{"id":"a.b","version":"1"}]}`))

	doc, err := Generate(Inputs{Template: tpl, ProjectVersion: "2.3.4", SDKVersion: "4.9.0", ModID: "me.mod"})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"geode", "version", "name", "dependencies", "id"}
	if got := strings.Join(doc.Keys(), ","); got != strings.Join(want, ",") {
		t.Errorf("keys = %s, want %s", got, strings.Join(want, ","))
	}
	if v, _ := doc.Get("version"); v != "v2.3.4" {
		t.Errorf("version = %v", v)
	}
	if v, _ := doc.Get("geode"); v != "4.9.0" {
		t.Errorf("geode = %v", v)
	}
	if deps, _ := doc.Get(KeyDependencies); len(deps.([]interface{})) != 0 {
		t.Errorf("dependencies not overwritten: %v", deps)
	}
}

func TestGenerateRejectsEmptyTemplate(t *testing.T) {
	if _, err := Generate(Inputs{Template: NewDocument()}); err == nil {
		t.Error("expected error for empty template")
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	tpl, _ := ParseTemplate([]byte("name: Test\nsettings:\n  b: 1\n  a: [true, null, 1.50]\n"))
	in := Inputs{
		Template:       tpl,
		ProjectVersion: "v1.0.0",
		Dependencies: []Dependency{
			{ID: "geode.node-ids", Version: ">=v1.12.0", Extra: []Field{{Key: "importance", Value: "required"}}},
			{ID: "x.y", Version: ">=1.0.0"},
		},
	}

	first, err := Generate(in)
	if err != nil {
		t.Fatal(err)
	}
	a, err := Render(first)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := Generate(in)
	b, _ := Render(second)

	if string(a) != string(b) {
		t.Fatalf("render not idempotent:\n%s\n---\n%s", a, b)
	}

	want := `{
    "name": "Test",
    "settings": {
        "b": 1,
        "a": [
            true,
            null,
            1.50
        ]
    },
    "version": "v1.0.0",
    "dependencies": [
        {
            "id": "geode.node-ids",
            "version": ">=v1.12.0",
            "importance": "required"
        },
        {
            "id": "x.y",
            "version": ">=1.0.0"
        }
    ]
}
`
	if string(a) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", a, want)
	}
}

func TestLoadTemplateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.json.in")
	if err := os.WriteFile(path, []byte(`{"name": "Z", "tags": ["a", "b"], "early-load": false}`), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := LoadTemplate(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(doc.Keys(), ","); got != "name,tags,early-load" {
		t.Errorf("keys = %s", got)
	}
	if v, _ := doc.Get("early-load"); v != false {
		t.Errorf("early-load = %#v", v)
	}

	if _, err := ParseTemplate([]byte(`[1, 2]`)); err == nil {
		t.Error("expected error for non-mapping template")
	}
	if _, err := LoadTemplate(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestGeneratePadsShortVersions(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in, want string
	}{
		{"1", "v1.0.0"},
		{"1.0", "v1.0.0"},
		{"v2.1", "v2.1.0"},
		{"1.2.3", "v1.2.3"},
		{"1.2.3.4", "v1.2.3.4"},
		{"1.0-beta", "v1.0.0-beta"},
	}
	for _, tt := range tests {
		doc, err := Generate(Inputs{
			Template:       FromMap(map[string]interface{}{"name": "Test"}),
			ProjectVersion: tt.in,
			SDKVersion:     "4.9.0",
		})
		if err != nil {
			t.Fatalf("Generate(%q) error = %v", tt.in, err)
		}
		if got, _ := doc.Get(KeyVersion); got != tt.want {
			t.Errorf("version for %q = %v, want %s", tt.in, got, tt.want)
		}
		if err := v.Validate(doc); err != nil {
			t.Errorf("Validate(%q) = %v", tt.in, err)
		}
	}
}

func TestValidator(t *testing.T) {
	v, err := NewValidator()
	if err != nil {
		t.Fatal(err)
	}

	good, _ := Generate(Inputs{
		Template:       FromMap(map[string]interface{}{"name": "Test"}),
		ProjectVersion: "1.0.0",
		SDKVersion:     "4.9.0",
		Dependencies:   []Dependency{{ID: "x.y", Version: ">=1.0.0"}},
	})
	if err := v.Validate(good); err != nil {
		t.Errorf("Validate(good) = %v", err)
	}

	bad, _ := Generate(Inputs{
		Template:       FromMap(map[string]interface{}{"name": "Test"}),
		ProjectVersion: "1.0.0",
		Dependencies:   []Dependency{{ID: "NotAnId", Version: ">=1.0.0"}},
	})
	if err := v.Validate(bad); err == nil {
		t.Error("expected validation error for malformed dependency id")
	}
}
