package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// DotEnvFile is read from the project directory when present.
const DotEnvFile = ".env"

// Overrides resolves option overrides from CMake variables first, then the process
// environment, then the project's .env file.
type Overrides struct {
	cmake  CMakeVars
	getenv func(string) (string, bool)
	dotenv map[string]string
}

// NewOverrides builds the override chain for a project. A missing .env is fine; an
// unreadable one is an error.
func NewOverrides(cmake CMakeVars, projectDir string) (*Overrides, error) {
	o := &Overrides{cmake: cmake, getenv: os.LookupEnv, dotenv: map[string]string{}}

	path := filepath.Join(projectDir, DotEnvFile)
	env, err := godotenv.Read(path)
	switch {
	case err == nil:
		o.dotenv = env
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return o, nil
}

// Lookup implements build.OverrideSource.
func (o *Overrides) Lookup(name string) (string, bool) {
	if v, ok := o.cmake.Lookup(name); ok {
		return v, true
	}
	if v, ok := o.getenv(name); ok {
		return v, true
	}
	v, ok := o.dotenv[name]
	return v, ok
}
