package commands

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/engine"
)

const watchDebounce = 250 * time.Millisecond

func newWatchCommand(version string) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run the pass whenever its inputs change",
		Long: `Run a generation pass, then watch the build script, geobuild.yaml, .env, the
manifest template and the policy directory, and run a new pass after each change.
The CMake handoff is read once, from --vars-file or stdin.`,
		Example: `  geobuild watch --vars-file build/geobuild-vars.txt

  # Expose pass metrics for Prometheus
  geobuild watch --vars-file build/geobuild-vars.txt --metrics-addr :9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vars, err := readVars(cmd)
			if err != nil {
				return err
			}

			tel, err := newTelemetry(projectDir(vars), version, metricsAddr)
			if err != nil {
				return err
			}
			defer shutdown(cmd.Context(), tel)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if metricsAddr != "" {
				go func() {
					if err := tel.Metrics.Serve(ctx); err != nil {
						log.Error().Err(err).Msg("Metrics server failed")
					}
				}()
			}

			e, err := newEngine(cmd, tel, version, false)
			if err != nil {
				return err
			}
			return watch(ctx, cmd, e, vars)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, e *engine.Engine, vars config.CMakeVars) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	inputs := initialInputs(vars)
	pass := func() {
		out, err := runPass(cmd, e, vars, false)
		if err == nil && out != nil {
			inputs = out.Inputs
		}
		addWatches(watcher, inputs)
	}
	pass()

	var (
		timer   *time.Timer
		trigger <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, inputs) {
				continue
			}
			log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("Input changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			trigger = timer.C

		case <-trigger:
			trigger = nil
			pass()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watch error")
		}
	}
}

// initialInputs are watched until the first pass succeeds.
func initialInputs(vars config.CMakeVars) []string {
	dir := projectDir(vars)
	return []string{
		filepath.Join(dir, config.DefaultScript),
		filepath.Join(dir, config.SettingsFile),
		filepath.Join(dir, config.DotEnvFile),
	}
}

// addWatches watches each input's directory; editors replace files by renaming, which
// a watch on the file itself would miss.
func addWatches(w *fsnotify.Watcher, inputs []string) {
	seen := make(map[string]bool)
	for _, in := range w.WatchList() {
		seen[in] = true
	}
	for _, in := range inputs {
		dir := in
		if info, err := os.Stat(in); err != nil || !info.IsDir() {
			dir = filepath.Dir(in)
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := w.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Cannot watch directory")
		}
	}
}

func relevant(ev fsnotify.Event, inputs []string) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	for _, in := range inputs {
		in = filepath.Clean(in)
		if name == in || filepath.Dir(name) == in {
			return true
		}
	}
	return false
}
