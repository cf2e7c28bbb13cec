package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Computed keys. They are owned by the generator and overwrite template values.
const (
	KeyID           = "id"
	KeyVersion      = "version"
	KeySDK          = "geode"
	KeyDependencies = "dependencies"
)

// ReservedKeys lists every key the generator may compute.
var ReservedKeys = []string{KeySDK, KeyID, KeyVersion, KeyDependencies}

// IsReserved reports whether key is owned by the generator.
func IsReserved(key string) bool {
	for _, k := range ReservedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Field is an extra key copied into a dependency entry.
type Field struct {
	Key   string
	Value interface{}
}

// Dependency is one manifest-level dependency.
type Dependency struct {
	ID      string
	Version string
	Extra   []Field
}

// Inputs are the computed values merged into a template.
type Inputs struct {
	Template *Document
	// ModID is written to "id" when set; otherwise the template's id is kept.
	ModID          string
	ProjectVersion string
	SDKVersion     string
	Dependencies   []Dependency
}

// Generate merges the computed fields into a copy of the template.
func Generate(in Inputs) (*Document, error) {
	if in.Template == nil || in.Template.Len() == 0 {
		return nil, fmt.Errorf("manifest template is empty")
	}

	doc := in.Template.Clone()

	if in.SDKVersion != "" {
		doc.Set(KeySDK, strings.TrimPrefix(in.SDKVersion, "v"))
	}
	if in.ModID != "" {
		doc.Set(KeyID, in.ModID)
	}
	if in.ProjectVersion != "" {
		doc.Set(KeyVersion, modVersion(in.ProjectVersion))
	}

	deps := make([]interface{}, 0, len(in.Dependencies))
	seen := make(map[string]bool, len(in.Dependencies))
	for _, dep := range in.Dependencies {
		if seen[dep.ID] {
			return nil, fmt.Errorf("duplicate dependency %q", dep.ID)
		}
		seen[dep.ID] = true

		entry := NewDocument()
		entry.Set("id", dep.ID)
		entry.Set("version", dep.Version)
		for _, f := range dep.Extra {
			if f.Key == "id" || f.Key == "version" {
				continue
			}
			entry.Set(f.Key, f.Value)
		}
		deps = append(deps, entry)
	}
	doc.Set(KeyDependencies, deps)

	return doc, nil
}

// Render encodes doc as 4-space indented JSON with a trailing newline. Equal documents
// always render to identical bytes.
func Render(doc *Document) ([]byte, error) {
	compact, err := doc.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "    "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// modVersion spells a CMake project version the way mod.json expects: v-prefixed
// with at least three numeric components ("1.0" becomes "v1.0.0").
func modVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return v
	}
	core, suffix := v, ""
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		core, suffix = v[:i], v[i:]
	}
	parts := strings.Split(core, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	return "v" + strings.Join(parts, ".") + suffix
}
