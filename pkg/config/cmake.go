package config

import (
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/platform"
)

// CMakeVars are the variables CMake hands over on stdin.
type CMakeVars map[string]string

// ParseCMakeVars parses the "KEY=VALUE;;KEY=VALUE" handoff format. Parts without an
// "=" are ignored; values may themselves contain "=" and single ";".
func ParseCMakeVars(s string) CMakeVars {
	vars := make(CMakeVars)
	s = strings.Trim(strings.TrimSpace(s), ";")
	if s == "" {
		return vars
	}
	for _, part := range strings.Split(s, ";;") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		vars[key] = value
	}
	return vars
}

// ReadCMakeVars reads and parses the handoff from r.
func ReadCMakeVars(r io.Reader) (CMakeVars, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read cmake variables: %w", err)
	}
	return ParseCMakeVars(string(data)), nil
}

// Lookup implements build.OverrideSource.
func (v CMakeVars) Lookup(name string) (string, bool) {
	value, ok := v[name]
	return value, ok
}

// Bool reads a CMake boolean with the model's truthy rules.
func (v CMakeVars) Bool(name string, def bool) bool {
	value, ok := v[name]
	if !ok {
		return def
	}
	return build.Truthy(value)
}

// Handoff is the validated view of the CMake variables one pass needs.
type Handoff struct {
	ProjectName      string `cmake:"CMAKE_PROJECT_NAME" validate:"required"`
	ProjectVersion   string `cmake:"CMAKE_PROJECT_VERSION" validate:"required"`
	SourceDir        string `cmake:"CMAKE_SOURCE_DIR" validate:"required"`
	BinaryDir        string `cmake:"CMAKE_BINARY_DIR" validate:"required"`
	CurrentBinaryDir string `cmake:"CMAKE_CURRENT_BINARY_DIR"`
	TargetPlatform   string `cmake:"GEODE_TARGET_PLATFORM" validate:"required,platform"`
	SDKDir           string `cmake:"geode-sdk_SOURCE_DIR" validate:"required"`
	SDKVersion       string `cmake:"GEODE_SDK_VERSION"`
	ModID            string `cmake:"GEODE_MOD_ID"`
	CompilerID       string `cmake:"CMAKE_CXX_COMPILER_ID"`
	CompilerVersion  string `cmake:"CMAKE_CXX_COMPILER_VERSION"`
	FrontendVariant  string `cmake:"CMAKE_CXX_COMPILER_FRONTEND_VARIANT"`
	CompilerPath     string `cmake:"CMAKE_CXX_COMPILER"`
	CXXStandard      string `cmake:"CMAKE_CXX_STANDARD" validate:"omitempty,numeric"`
}

var handoffValidator = newHandoffValidator()

func newHandoffValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("cmake")
	})
	_ = v.RegisterValidation("platform", func(fl validator.FieldLevel) bool {
		_, err := platform.ParsePlatform(fl.Field().String())
		return err == nil
	})
	return v
}

// NewHandoff fills a Handoff from vars and validates it. The error names every
// missing or malformed variable by its CMake name.
func NewHandoff(vars CMakeVars) (*Handoff, error) {
	h := &Handoff{}
	rv := reflect.ValueOf(h).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if key := rt.Field(i).Tag.Get("cmake"); key != "" {
			rv.Field(i).SetString(vars[key])
		}
	}

	if err := handoffValidator.Struct(h); err != nil {
		return nil, handoffError(err)
	}
	return h, nil
}

func handoffError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("required variable '%s' was not set in CMake", fe.Field()))
		case "platform":
			msgs = append(msgs, fmt.Sprintf("variable '%s' has unknown platform %q", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("variable '%s' is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

// Project returns the build project identity.
func (h *Handoff) Project() build.Project {
	return build.Project{
		Name:     h.ProjectName,
		Version:  h.ProjectVersion,
		Dir:      filepath.Clean(h.SourceDir),
		BuildDir: filepath.Clean(h.OutputDir()),
		ModID:    h.ModID,
	}
}

// OutputDir is where the generated include file goes: the current binary dir when
// CMake passed one, else the top-level binary dir.
func (h *Handoff) OutputDir() string {
	if h.CurrentBinaryDir != "" {
		return h.CurrentBinaryDir
	}
	return h.BinaryDir
}

// PlatformOptions returns the descriptor options for this handoff.
func (h *Handoff) PlatformOptions(git platform.GitRunner) platform.Options {
	std, _ := strconv.Atoi(h.CXXStandard)
	return platform.Options{
		Target:          h.TargetPlatform,
		CompilerID:      h.CompilerID,
		CompilerVersion: h.CompilerVersion,
		FrontendVariant: h.FrontendVariant,
		CompilerPath:    h.CompilerPath,
		CXXStandard:     std,
		SDKPath:         h.SDKDir,
		SDKVersion:      h.SDKVersion,
		Git:             git,
	}
}
