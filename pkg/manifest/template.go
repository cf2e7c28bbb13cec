package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// LoadTemplate reads a template document from path. JSON and YAML are both accepted
// (JSON is parsed as YAML flow syntax); key order is preserved.
func LoadTemplate(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	doc, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", path, err)
	}
	return doc, nil
}

// ParseTemplate parses template bytes into a Document.
func ParseTemplate(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return NewDocument(), nil
	}

	v, err := fromNode(root.Content[0])
	if err != nil {
		return nil, err
	}
	doc, ok := v.(*Document)
	if !ok {
		return nil, fmt.Errorf("template must be a mapping, got %s", kindName(root.Content[0]))
	}
	return doc, nil
}

func fromNode(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.MappingNode:
		doc := NewDocument()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: keys must be scalars", k.Line)
			}
			val, err := fromNode(v)
			if err != nil {
				return nil, err
			}
			doc.Set(k.Value, val)
		}
		return doc, nil

	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			val, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil

	case yaml.ScalarNode:
		return scalarValue(n)

	case yaml.AliasNode:
		return fromNode(n.Alias)

	default:
		return nil, fmt.Errorf("line %d: unsupported node %s", n.Line, kindName(n))
	}
}

func scalarValue(n *yaml.Node) (interface{}, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			// YAML 1.1 spellings such as "yes" are still decoded by yaml.v3.
			var v bool
			if derr := n.Decode(&v); derr != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, derr)
			}
			return v, nil
		}
		return b, nil
	case "!!int", "!!float":
		// Keep the literal so numbers are written back exactly as authored.
		if json.Valid([]byte(n.Value)) {
			return json.Number(n.Value), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return f, nil
	default:
		return n.Value, nil
	}
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
