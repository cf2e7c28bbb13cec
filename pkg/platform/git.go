package platform

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// GitRunner runs git in a directory and returns its exit code and combined output.
// err is reserved for failures to run git at all.
type GitRunner interface {
	Run(ctx context.Context, dir string, args ...string) (code int, output string, err error)
}

// ExecGit runs the git binary found on PATH.
type ExecGit struct{}

// Run implements GitRunner.
func (ExecGit) Run(ctx context.Context, dir string, args ...string) (int, string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(out.String())

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), output, nil
	}
	if err != nil {
		return -1, output, err
	}
	return 0, output, nil
}
