package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/telemetry"
	"github.com/geobuild/geobuild/pkg/updates"
)

// SettingsFile is the optional tool settings file in the project directory.
const SettingsFile = "geobuild.yaml"

// DefaultScript is the build script run when the settings name none.
const DefaultScript = "geobuild.star"

// Settings are tool settings. They never change what a build declares; they control
// where the script lives, advisory update checks, linting and telemetry.
type Settings struct {
	Script    string            `yaml:"script" validate:"required"`
	StatePath string            `yaml:"state_path"`
	Updates   UpdateSettings    `yaml:"updates"`
	Policy    PolicySettings    `yaml:"policy"`
	Telemetry TelemetrySettings `yaml:"telemetry"`
}

// UpdateSettings control the advisory dependency update check.
type UpdateSettings struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
	Workers  int           `yaml:"workers" validate:"min=1,max=64"`
	Timeout  time.Duration `yaml:"timeout" validate:"gt=0"`
	APIURL   string        `yaml:"api_url" validate:"omitempty,url"`
	// Token authenticates GitHub API requests. Only read from GITHUB_TOKEN.
	Token string `yaml:"-"`
}

// PolicySettings control build linting.
type PolicySettings struct {
	// Dir holds extra .rego policies, relative to the project directory.
	Dir string `yaml:"dir"`
	// Enabled turns on policies whose definition leaves them off.
	Enabled  []string `yaml:"enabled"`
	Disabled []string `yaml:"disabled"`
}

// TelemetrySettings control logging, metrics and tracing.
type TelemetrySettings struct {
	LogLevel      string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error fatal"`
	LogFormat     string `yaml:"log_format" validate:"oneof=console json"`
	MetricsFile   string `yaml:"metrics_file"`
	TraceExporter string `yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	TraceEndpoint string `yaml:"trace_endpoint" validate:"required_if=TraceExporter otlp"`
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		Script: DefaultScript,
		Updates: UpdateSettings{
			Interval: updates.DefaultInterval,
			Workers:  updates.DefaultWorkers,
			Timeout:  updates.DefaultTimeout,
		},
		Telemetry: TelemetrySettings{
			LogFormat:     "console",
			TraceExporter: "none",
		},
	}
}

// LookupFunc finds a value by name, as os.LookupEnv does.
type LookupFunc func(name string) (string, bool)

// LoadSettings reads geobuild.yaml from projectDir when present, then applies the
// environment: GEOBUILD_UPDATE_CHECK, GEOBUILD_UPDATE_INTERVAL, GITHUB_TOKEN,
// GEOBUILD_STATE_DB, GEOBUILD_METRICS_FILE and LOG_LEVEL.
func LoadSettings(projectDir string, lookup LookupFunc) (*Settings, error) {
	s := DefaultSettings()

	path := filepath.Join(projectDir, SettingsFile)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := s.applyEnv(lookup); err != nil {
		return nil, err
	}

	if s.StatePath == "" {
		s.StatePath = defaultStatePath()
	}
	if s.Policy.Dir != "" && !filepath.IsAbs(s.Policy.Dir) {
		s.Policy.Dir = filepath.Join(projectDir, s.Policy.Dir)
	}

	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

func (s *Settings) applyEnv(lookup LookupFunc) error {
	if v, ok := lookup("GEOBUILD_UPDATE_CHECK"); ok {
		s.Updates.Enabled = build.Truthy(v)
	}
	if v, ok := lookup("GEOBUILD_UPDATE_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GEOBUILD_UPDATE_INTERVAL: %w", err)
		}
		s.Updates.Interval = d
	}
	if v, ok := lookup("GITHUB_TOKEN"); ok {
		s.Updates.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup("GEOBUILD_STATE_DB"); ok && v != "" {
		s.StatePath = v
	}
	if v, ok := lookup("GEOBUILD_METRICS_FILE"); ok && v != "" {
		s.Telemetry.MetricsFile = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		s.Telemetry.LogLevel = strings.ToLower(v)
	}
	return nil
}

// defaultStatePath places the state database in the user cache directory, falling
// back to the temp dir on hosts without one.
func defaultStatePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "geobuild", "state.db")
}

// ScriptPath resolves the build script against projectDir.
func (s *Settings) ScriptPath(projectDir string) string {
	if filepath.IsAbs(s.Script) {
		return s.Script
	}
	return filepath.Join(projectDir, s.Script)
}

// TelemetryConfig converts the settings into a telemetry configuration.
func (s *Settings) TelemetryConfig(serviceVersion string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if serviceVersion != "" {
		cfg.ServiceVersion = serviceVersion
	}
	if s.Telemetry.LogLevel != "" {
		cfg.Logging.Level = s.Telemetry.LogLevel
	}
	cfg.Logging.Format = s.Telemetry.LogFormat
	cfg.Metrics.TextfilePath = s.Telemetry.MetricsFile
	if s.Telemetry.TraceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = s.Telemetry.TraceExporter
		cfg.Tracing.Endpoint = s.Telemetry.TraceEndpoint
	}
	return cfg
}
