package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Options carries what the harness knows about the host, the compiler and the SDK.
type Options struct {
	Target          string
	CompilerID      string
	CompilerVersion string
	FrontendVariant string
	CompilerPath    string
	CXXStandard     int
	SDKPath         string
	// SDKVersion, when set, is used instead of reading <SDKPath>/VERSION.
	SDKVersion string
	// Git runs git commands for ancestry checks; defaults to ExecGit.
	Git GitRunner
}

// Descriptor is the immutable platform and compiler description shared by the Build
// Model and the resolver for one generation pass.
type Descriptor struct {
	hostTriple      string
	target          Platform
	compilerID      string
	compilerVersion string
	frontend        Frontend
	cxxStandard     int
	sdkPath         string
	git             GitRunner

	sdkOnce    sync.Once
	sdkVersion string
	sdkErr     error
	sdkPreset  string
}

// ErrSDKVersionUnknown is returned when neither the harness nor the SDK tree supplies a
// version string.
var ErrSDKVersionUnknown = errors.New("sdk version unknown")

// New builds a Descriptor. Only the target platform is mandatory.
func New(opts Options) (*Descriptor, error) {
	target, err := ParsePlatform(opts.Target)
	if err != nil {
		return nil, err
	}

	git := opts.Git
	if git == nil {
		git = ExecGit{}
	}

	return &Descriptor{
		hostTriple:      HostTriple(),
		target:          target,
		compilerID:      opts.CompilerID,
		compilerVersion: opts.CompilerVersion,
		frontend:        ResolveFrontend(opts.CompilerID, opts.FrontendVariant, opts.CompilerPath),
		cxxStandard:     opts.CXXStandard,
		sdkPath:         opts.SDKPath,
		sdkPreset:       strings.TrimSpace(opts.SDKVersion),
		git:             git,
	}, nil
}

func (d *Descriptor) HostTriple() string         { return d.hostTriple }
func (d *Descriptor) Target() Platform           { return d.target }
func (d *Descriptor) CompilerID() string         { return d.compilerID }
func (d *Descriptor) CompilerVersion() string    { return d.compilerVersion }
func (d *Descriptor) CompilerFrontend() Frontend { return d.frontend }
func (d *Descriptor) SDKPath() string            { return d.sdkPath }

// IsClang reports whether the compiler vendor is Clang, regardless of frontend.
func (d *Descriptor) IsClang() bool {
	return strings.Contains(strings.ToLower(d.compilerID), "clang")
}

// IsClangCL reports whether the compiler is Clang driven through the MSVC frontend.
func (d *Descriptor) IsClangCL() bool {
	return d.IsClang() && d.frontend == FrontendMSVC
}

// CXXStandardAtLeast reports whether the configured C++ standard is at least std.
func (d *Descriptor) CXXStandardAtLeast(std int) bool {
	return d.cxxStandard >= std
}

// SDKVersion returns the SDK version, resolving it on first use.
func (d *Descriptor) SDKVersion() (string, error) {
	d.sdkOnce.Do(func() {
		if d.sdkPreset != "" {
			d.sdkVersion = d.sdkPreset
			return
		}
		if d.sdkPath == "" {
			d.sdkErr = ErrSDKVersionUnknown
			return
		}
		raw, err := os.ReadFile(filepath.Join(d.sdkPath, "VERSION"))
		if err != nil {
			if os.IsNotExist(err) {
				d.sdkErr = ErrSDKVersionUnknown
				return
			}
			d.sdkErr = fmt.Errorf("read sdk VERSION: %w", err)
			return
		}
		d.sdkVersion = strings.TrimSpace(string(raw))
		if d.sdkVersion == "" {
			d.sdkErr = ErrSDKVersionUnknown
		}
	})
	return d.sdkVersion, d.sdkErr
}

// SDKRef returns the exact tag the SDK checkout sits on, or its HEAD commit. Empty when
// neither can be determined.
func (d *Descriptor) SDKRef(ctx context.Context) string {
	if d.sdkPath == "" {
		return ""
	}
	if code, out, err := d.git.Run(ctx, d.sdkPath, "describe", "--tags", "--exact-match"); err == nil && code == 0 && out != "" {
		return out
	}
	if code, out, err := d.git.Run(ctx, d.sdkPath, "rev-parse", "HEAD"); err == nil && code == 0 {
		return out
	}
	return ""
}

// SDKHasAncestor reports whether ref is HEAD or an ancestor of HEAD in the SDK checkout.
// detail carries git's own output when the answer is no.
func (d *Descriptor) SDKHasAncestor(ctx context.Context, ref string) (ok bool, detail string, err error) {
	if d.sdkPath == "" {
		return false, "", fmt.Errorf("sdk path unknown")
	}
	code, out, err := d.git.Run(ctx, d.sdkPath, "merge-base", "--is-ancestor", ref, "HEAD")
	if err != nil {
		return false, "", err
	}
	switch code {
	case 0:
		return true, "", nil
	case 1:
		return false, out, nil
	default:
		// 128 and friends: unknown revision, not a repository, shallow clone.
		return false, out, fmt.Errorf("git merge-base exited with %d: %s", code, out)
	}
}

// HostTriple returns "<arch>-<os>" for the machine running the pass.
func HostTriple() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	case "386":
		arch = "i686"
	}
	return arch + "-" + runtime.GOOS
}
