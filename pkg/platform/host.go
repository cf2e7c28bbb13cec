package platform

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// osReleasePath is swapped in tests.
var osReleasePath = "/etc/os-release"

// HostDesc returns a human-readable description of the host, such as
// "Ubuntu 24.04 LTS (x86_64)".
func HostDesc() string {
	arch := strings.SplitN(HostTriple(), "-", 2)[0]

	switch runtime.GOOS {
	case "linux":
		return fmt.Sprintf("%s (%s)", linuxName(), arch)
	case "darwin":
		if ver := commandOutput("sw_vers", "-productVersion"); ver != "" {
			return fmt.Sprintf("macOS %s (%s)", ver, arch)
		}
		return fmt.Sprintf("macOS (%s)", arch)
	case "windows":
		if ver := commandOutput("cmd", "/c", "ver"); ver != "" {
			return fmt.Sprintf("%s (%s)", ver, arch)
		}
		return fmt.Sprintf("Windows (%s)", arch)
	default:
		return "Unknown"
	}
}

// linuxName reads the distribution name from os-release, which uses the same
// KEY="value" syntax as a dotenv file.
func linuxName() string {
	vals, err := godotenv.Read(osReleasePath)
	if err != nil {
		return "Unknown Linux"
	}
	if name := vals["PRETTY_NAME"]; name != "" {
		return name
	}
	if name := vals["NAME"]; name != "" {
		return name
	}
	return "Unknown Linux"
}

func commandOutput(name string, args ...string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
