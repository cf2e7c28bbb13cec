package engine

import (
	"path/filepath"
	"time"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/platform"
	"github.com/geobuild/geobuild/pkg/policy"
	"github.com/geobuild/geobuild/pkg/script"
	"github.com/geobuild/geobuild/pkg/updates"
)

// Output file names.
const (
	// GeneratedFile is written to the CMake binary directory.
	GeneratedFile = "geobuild-gen.cmake"
	// ManifestFile is written to the project directory.
	ManifestFile = "mod.json"
)

// Pass is the state of one generation pass. Each stage fills in its own fields;
// stages that run concurrently never touch the same field.
type Pass struct {
	ID        string
	StartedAt time.Time

	Vars      config.CMakeVars
	Handoff   *config.Handoff
	Settings  *config.Settings
	Overrides *config.Overrides
	Platform  *platform.Descriptor
	Model     *build.Model
	Script    *script.Result
	Snapshot  *build.Snapshot

	// Findings are non-blocking policy violations, printed after success.
	Findings []policy.Violation

	CMake    []byte
	Manifest []byte

	// Written lists the output files whose content changed.
	Written []string

	Advisories []updates.Advisory

	store StateStore
}

// Outcome summarizes a successful pass for the caller.
type Outcome struct {
	PassID     string             `json:"pass_id"`
	Project    build.Project      `json:"project"`
	Script     *script.Result     `json:"script,omitempty"`
	Written    []string           `json:"written"`
	Unchanged  []string           `json:"unchanged"`
	Findings   []policy.Violation `json:"findings,omitempty"`
	Advisories []updates.Advisory `json:"advisories,omitempty"`
	// Inputs are the files and directories whose change should trigger a new pass.
	Inputs   []string      `json:"inputs"`
	Duration time.Duration `json:"duration_ns"`
}

func (p *Pass) outcome() *Outcome {
	o := &Outcome{
		PassID:     p.ID,
		Script:     p.Script,
		Written:    p.Written,
		Findings:   p.Findings,
		Advisories: p.Advisories,
		Duration:   time.Since(p.StartedAt),
	}
	if p.Handoff != nil {
		o.Project = p.Handoff.Project()
		o.Inputs = p.inputs()
	}
	for _, path := range p.outputs() {
		changed := false
		for _, w := range p.Written {
			if w == path {
				changed = true
				break
			}
		}
		if !changed {
			o.Unchanged = append(o.Unchanged, path)
		}
	}
	return o
}

func (p *Pass) inputs() []string {
	dir := p.Handoff.Project().Dir
	in := []string{
		p.Settings.ScriptPath(dir),
		filepath.Join(dir, config.SettingsFile),
		filepath.Join(dir, config.DotEnvFile),
	}
	if p.Snapshot != nil {
		in = append(in, p.Snapshot.ConfigureDeps...)
	}
	if p.Settings.Policy.Dir != "" {
		in = append(in, p.Settings.Policy.Dir)
	}
	return in
}
