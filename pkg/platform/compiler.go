package platform

import (
	"path/filepath"
	"strings"
)

// Frontend is the compiler family that decides command-line flag syntax.
type Frontend string

const (
	FrontendClang Frontend = "clang"
	FrontendGCC   Frontend = "gcc"
	FrontendMSVC  Frontend = "msvc"
)

// FlagPrefix returns the option prefix the frontend expects ("-" or "/").
func (f Frontend) FlagPrefix() string {
	if f == FrontendMSVC {
		return "/"
	}
	return "-"
}

// symlinkResolver is swapped in tests.
var symlinkResolver = filepath.EvalSymlinks

// ResolveFrontend maps what CMake reports about the C++ compiler to a frontend family.
// frontendVariant (CMAKE_CXX_COMPILER_FRONTEND_VARIANT) wins when set, so clang-cl
// resolves to MSVC. Otherwise the executable name decides; generic driver names such as
// "c++" are followed through symlinks because toolchains install them pointing at the
// real compiler.
func ResolveFrontend(compilerID, frontendVariant, executable string) Frontend {
	isClang := strings.Contains(strings.ToLower(compilerID), "clang")

	switch strings.ToUpper(strings.TrimSpace(frontendVariant)) {
	case "MSVC":
		return FrontendMSVC
	case "GNU":
		if isClang {
			return FrontendClang
		}
		return FrontendGCC
	}

	if f, ok := frontendFromExecutable(executable); ok {
		return f
	}
	if executable != "" {
		if target, err := symlinkResolver(executable); err == nil && target != executable {
			if f, ok := frontendFromExecutable(target); ok {
				return f
			}
		}
	}

	switch id := strings.ToLower(compilerID); {
	case isClang:
		return FrontendClang
	case id == "msvc":
		return FrontendMSVC
	default:
		return FrontendGCC
	}
}

func frontendFromExecutable(path string) (Frontend, bool) {
	if path == "" {
		return "", false
	}
	name := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.TrimSuffix(name, ".exe")

	switch {
	case name == "cl" || name == "clang-cl" || strings.HasSuffix(name, "-clang-cl"):
		return FrontendMSVC, true
	case strings.Contains(name, "clang"):
		return FrontendClang, true
	case strings.Contains(name, "g++") || strings.Contains(name, "gcc"):
		return FrontendGCC, true
	}
	return "", false
}
