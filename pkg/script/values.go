package script

import (
	"fmt"
	"sort"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/manifest"
	"github.com/geobuild/geobuild/pkg/platform"
)

// fromStarlarkValue converts a script value into a manifest value. Dicts keep the
// script's insertion order.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer %s too large", val)
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		return fromIterable(val)
	case starlark.Tuple:
		return fromIterable(val)
	case *starlark.Dict:
		return toDocument(val)
	case *starlarkstruct.Struct:
		doc := manifest.NewDocument()
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				return nil, err
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			doc.Set(name, value)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported value of type %s", v.Type())
	}
}

func fromIterable(v starlark.Indexable) ([]interface{}, error) {
	list := make([]interface{}, v.Len())
	for i := 0; i < v.Len(); i++ {
		item, err := fromStarlarkValue(v.Index(i))
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		list[i] = item
	}
	return list, nil
}

func toDocument(d *starlark.Dict) (*manifest.Document, error) {
	doc := manifest.NewDocument()
	for _, item := range d.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("dict key %s is not a string", item[0])
		}
		value, err := fromStarlarkValue(item[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		doc.Set(string(key), value)
	}
	return doc, nil
}

// settingValue renders a dependency option the way CMake expects it.
func settingValue(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.Bool:
		if val {
			return "ON", nil
		}
		return "OFF", nil
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		return val.String(), nil
	case starlark.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("option value of type %s", v.Type())
	}
}

func toSettings(d *starlark.Dict) ([]build.Setting, error) {
	if d == nil {
		return nil, nil
	}
	out := make([]build.Setting, 0, d.Len())
	for _, item := range d.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("option name %s is not a string", item[0])
		}
		value, err := settingValue(item[1])
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", key, err)
		}
		out = append(out, build.Setting{Key: string(key), Value: value})
	}
	return out, nil
}

// optString unpacks a string argument that may be None.
func optString(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case nil, starlark.NoneType:
		return "", nil
	case starlark.String:
		return string(val), nil
	default:
		return "", fmt.Errorf("got %s, want string or None", v.Type())
	}
}

func stringArgs(fn string, args starlark.Tuple) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		s, ok := starlark.AsString(a)
		if !ok {
			return nil, fmt.Errorf("%s: argument %d is %s, want string", fn, i+1, a.Type())
		}
		out[i] = s
	}
	return out, nil
}

// platformValue is the script-side view of a target platform.
type platformValue struct {
	p platform.Platform
}

var (
	_ starlark.HasAttrs   = platformValue{}
	_ starlark.Comparable = platformValue{}
)

var platformPredicates = map[string]func(platform.Platform) bool{
	"is_windows": platform.Platform.IsWindows,
	"is_mac":     platform.Platform.IsMac,
	"is_ios":     platform.Platform.IsIOS,
	"is_android": platform.Platform.IsAndroid,
	"is_linux":   platform.Platform.IsLinux,
	"is_apple":   platform.Platform.IsApple,
	"is_desktop": platform.Platform.IsDesktop,
	"is_mobile":  platform.Platform.IsMobile,
	"is_64bit":   platform.Platform.Is64Bit,
	"is_32bit":   platform.Platform.Is32Bit,
}

func (v platformValue) String() string        { return v.p.Name(true) }
func (v platformValue) Type() string          { return "Platform" }
func (v platformValue) Freeze()               {}
func (v platformValue) Truth() starlark.Bool  { return starlark.True }
func (v platformValue) Hash() (uint32, error) { return uint32(v.p), nil }

func (v platformValue) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(platformValue)
	switch op {
	case syntax.EQL:
		return v.p == other.p, nil
	case syntax.NEQ:
		return v.p != other.p, nil
	default:
		return false, fmt.Errorf("%s %s %s not supported", v.Type(), op, y.Type())
	}
}

func (v platformValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(v.p.Name(false)), nil
	case "full_name":
		return starlark.String(v.p.Name(true)), nil
	}
	pred, ok := platformPredicates[name]
	if !ok {
		return nil, nil
	}
	p := v.p
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
			return nil, err
		}
		return starlark.Bool(pred(p)), nil
	}), nil
}

func (v platformValue) AttrNames() []string {
	names := []string{"full_name", "name"}
	for name := range platformPredicates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
