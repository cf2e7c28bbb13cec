package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/engine"
	"github.com/geobuild/geobuild/pkg/telemetry"
)

// readVars reads the CMake handoff from --vars-file or stdin.
func readVars(cmd *cobra.Command) (config.CMakeVars, error) {
	var r io.Reader = cmd.InOrStdin()
	if varsFile != "" {
		f, err := os.Open(varsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open vars file: %w", err)
		}
		defer f.Close()
		r = f
	}
	return config.ReadCMakeVars(r)
}

func projectDir(vars config.CMakeVars) string {
	if dir, ok := vars.Lookup("CMAKE_SOURCE_DIR"); ok && dir != "" {
		return dir
	}
	return "."
}

// newTelemetry builds process telemetry from the project's settings. Broken settings
// fall back to defaults here; the pass itself reports them. A non-empty metricsAddr
// is where Metrics.Serve listens.
func newTelemetry(dir, version, metricsAddr string) (*telemetry.Telemetry, error) {
	settings, err := config.LoadSettings(dir, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Using default telemetry settings")
		settings = config.DefaultSettings()
	}
	cfg := settings.TelemetryConfig(version)
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsAddr
	}

	if settings.Telemetry.LogLevel != "" && !verbose {
		zerolog.SetGlobalLevel(telemetry.ParseLevel(settings.Telemetry.LogLevel))
	}
	if cfg.Logging.Format == "json" {
		return telemetry.NewTelemetry(cfg)
	}
	return telemetry.NewTelemetryWithLogger(cfg, telemetry.Wrap(log.Logger))
}

func shutdown(ctx context.Context, tel *telemetry.Telemetry) {
	if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// runPass runs one pass and prints its result. A failed pass prints the halt banner
// and returns ErrHalted.
func runPass(cmd *cobra.Command, e *engine.Engine, vars config.CMakeVars, showAll bool) (*engine.Outcome, error) {
	out, err := e.Run(cmd.Context(), vars)
	if err != nil {
		engine.WriteFailure(cmd.ErrOrStderr(), err)
		return nil, ErrHalted
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return out, enc.Encode(out)
	}
	engine.WriteSuccess(cmd.OutOrStdout(), out, showAll || verbose)
	return out, nil
}

func newEngine(cmd *cobra.Command, tel *telemetry.Telemetry, version string, force bool) (*engine.Engine, error) {
	return engine.New(engine.Options{
		ToolVersion:      version,
		Telemetry:        tel,
		ForceUpdateCheck: force,
		Stdout:           cmd.OutOrStdout(),
	})
}
