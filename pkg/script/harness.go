// Package script runs a project's Starlark build script against a Build Model.
//
// The script is a Starlark file, geobuild.star by default, that defines
//
//	def main(build):
//	    build.add_source_dir("src")
//	    if build.platform.is_windows():
//	        build.add_definition("WIN32_LEAN_AND_MEAN")
//
// main is called exactly once. The build object exposes the model's operations and
// nothing else; there is no file or network access from scripts.
package script

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/geobuild/geobuild/pkg/build"
)

// DefaultTimeout bounds one script execution.
const DefaultTimeout = 30 * time.Second

const contextKey = "geobuild.context"

// Harness executes build scripts.
type Harness struct {
	logger  zerolog.Logger
	timeout time.Duration
	stdout  io.Writer
}

// Option configures a Harness.
type Option func(*Harness)

// WithTimeout sets the execution timeout.
func WithTimeout(d time.Duration) Option {
	return func(h *Harness) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithStdout sets where the script's print output goes.
func WithStdout(w io.Writer) Option {
	return func(h *Harness) {
		h.stdout = w
	}
}

// New creates a harness.
func New(logger zerolog.Logger, opts ...Option) *Harness {
	h := &Harness{
		logger:  logger.With().Str("component", "script").Logger(),
		timeout: DefaultTimeout,
		stdout:  os.Stdout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Result describes one script execution.
type Result struct {
	// Found is false when the project has no script; the model keeps its defaults.
	Found bool
	// MainCalled is false when the script defines no callable main.
	MainCalled bool
	Duration   time.Duration
}

// Run executes the script at path and calls its main with a build object bound to m.
// Failures caused by a model operation are returned as that operation's *build.Error;
// anything else the script does wrong becomes a ScriptAbortError.
func (h *Harness) Run(ctx context.Context, path string, m *build.Model) (*Result, error) {
	start := time.Now()
	res := &Result{}

	src, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		h.logger.Debug().Str("path", path).Msg("No build script, using defaults")
		return res, nil
	}
	if err != nil {
		return nil, build.Abort("script", fmt.Sprintf("cannot read %s: %v", path, err))
	}
	res.Found = true

	evalCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "geobuild",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(h.stdout, msg)
		},
	}
	thread.SetLocal(contextKey, evalCtx)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(evalCtx.Err().Error())
		case <-done:
		}
	}()

	globals, err := starlark.ExecFile(thread, path, src, prelude())
	if err != nil {
		return nil, h.convert(err)
	}

	mainFn, ok := globals["main"].(starlark.Callable)
	if !ok {
		h.logger.Warn().Str("path", path).Msg("Build script defines no main function")
		res.Duration = time.Since(start)
		return res, nil
	}

	if _, err := starlark.Call(thread, mainFn, starlark.Tuple{newBuildObject(m)}, nil); err != nil {
		return nil, h.convert(err)
	}
	res.MainCalled = true
	res.Duration = time.Since(start)

	h.logger.Debug().
		Str("path", path).
		Dur("duration", res.Duration).
		Msg("Build script completed")

	return res, nil
}

// convert maps a Starlark failure to a classified error without the Starlark stack.
func (h *Harness) convert(err error) error {
	var be *build.Error
	if errors.As(err, &be) {
		return be
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		h.logger.Debug().Str("backtrace", evalErr.Backtrace()).Msg("Script failed")
		return build.Abort("script", "unhandled error: "+firstLine(evalErr.Msg))
	}

	var synErr syntax.Error
	if errors.As(err, &synErr) {
		return build.Abort("script", fmt.Sprintf("syntax error at %s: %s", synErr.Pos, synErr.Msg))
	}

	return build.Abort("script", firstLine(err.Error()))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func contextOf(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}
