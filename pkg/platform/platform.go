// Package platform describes the host and the target a generation pass configures for:
// the target platform, the canonical compiler frontend family and the SDK location.
package platform

import (
	"fmt"
	"strings"
)

// Platform is a build target platform.
type Platform int

const (
	Windows Platform = iota + 1
	MacOS
	IOS
	Android32
	Android64
	Linux
)

// ParsePlatform parses a platform token as CMake hands it over.
func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "windows", "win", "win64":
		return Windows, nil
	case "macos", "mac", "darwin":
		return MacOS, nil
	case "ios":
		return IOS, nil
	case "android32":
		return Android32, nil
	case "android64", "android":
		return Android64, nil
	case "linux":
		return Linux, nil
	default:
		return 0, fmt.Errorf("unknown platform: %q", s)
	}
}

// String returns the platform name without bitness.
func (p Platform) String() string {
	return p.Name(false)
}

// Name returns the platform name; with bits set, Android variants carry "32"/"64".
func (p Platform) Name(bits bool) string {
	switch p {
	case Windows:
		return "windows"
	case MacOS:
		return "macos"
	case IOS:
		return "ios"
	case Android32:
		if bits {
			return "android32"
		}
		return "android"
	case Android64:
		if bits {
			return "android64"
		}
		return "android"
	case Linux:
		return "linux"
	default:
		return "unknown"
	}
}

func (p Platform) IsWindows() bool { return p == Windows }
func (p Platform) IsMac() bool     { return p == MacOS }
func (p Platform) IsIOS() bool     { return p == IOS }
func (p Platform) IsLinux() bool   { return p == Linux }
func (p Platform) IsAndroid() bool { return p == Android32 || p == Android64 }
func (p Platform) IsApple() bool   { return p == MacOS || p == IOS }

// IsDesktop reports whether p is a desktop platform.
func (p Platform) IsDesktop() bool {
	return p == Windows || p == MacOS || p == Linux
}

func (p Platform) IsMobile() bool { return !p.IsDesktop() }
func (p Platform) Is32Bit() bool  { return p == Android32 }
func (p Platform) Is64Bit() bool  { return p != Android32 && p != 0 }
