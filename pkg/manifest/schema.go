package manifest

import (
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// modSchema constrains the generated manifest. Unknown template keys are allowed.
const modSchema = `
#Dependency: {
	id:      string & =~"^[a-z0-9_\\-]+\\.[a-z0-9_\\-]+$"
	version: string & !=""
	...
}

#Manifest: {
	geode?:       string & =~"^v?[0-9]+\\.[0-9]+\\.[0-9]+"
	id?:          string & =~"^[a-z0-9_\\-]+\\.[a-z0-9_\\-]+$"
	version:      string & =~"^v[0-9]+\\.[0-9]+\\.[0-9]+"
	dependencies: [...#Dependency]
	...
}
`

// Validator checks generated manifests against the built-in schema.
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the built-in schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	val := ctx.CompileString(modSchema)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &Validator{
		ctx:    ctx,
		schema: val.LookupPath(cue.ParsePath("#Manifest")),
	}, nil
}

// Validate unifies doc with the schema.
func (v *Validator) Validate(doc *Document) error {
	data := v.ctx.Encode(numbersToFloat(doc.Plain()))
	if err := data.Err(); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	unified := v.schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	return nil
}

// numbersToFloat replaces json.Number literals so the encoder sees plain numbers.
func numbersToFloat(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			val[k] = numbersToFloat(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = numbersToFloat(item)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}
