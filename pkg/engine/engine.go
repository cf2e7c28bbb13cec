package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/cmakegen"
	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/fsutil"
	"github.com/geobuild/geobuild/pkg/manifest"
	"github.com/geobuild/geobuild/pkg/platform"
	"github.com/geobuild/geobuild/pkg/policy"
	"github.com/geobuild/geobuild/pkg/script"
	"github.com/geobuild/geobuild/pkg/stores"
	"github.com/geobuild/geobuild/pkg/telemetry"
	"github.com/geobuild/geobuild/pkg/updates"
)

// KeepPasses is how many pass records the state store retains.
const KeepPasses = 100

// Options configure an Engine. Zero values select the production collaborators.
type Options struct {
	ToolVersion string
	Telemetry   *telemetry.Telemetry
	Git         platform.GitRunner
	OpenStore   StoreOpener
	// UpdateSource replaces the GitHub API.
	UpdateSource updates.Source
	// ForceUpdateCheck checks every dependency regardless of settings and schedule.
	ForceUpdateCheck bool
	// Lookup reads the environment; defaults to os.LookupEnv.
	Lookup config.LookupFunc
	// Stdout receives the build script's print output.
	Stdout io.Writer
}

// Engine runs generation passes. One Engine may run many passes, one at a time.
type Engine struct {
	opts   Options
	tel    *telemetry.Telemetry
	logger zerolog.Logger
	graph  *Graph

	mu      sync.Mutex
	sources map[string]updates.Source

	policyMu  sync.Mutex
	policySet *policy.Engine
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.Nop()
	}
	if opts.Git == nil {
		opts.Git = platform.ExecGit{}
	}
	if opts.OpenStore == nil {
		opts.OpenStore = OpenSQLite
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	e := &Engine{
		opts:    opts,
		tel:     opts.Telemetry,
		logger:  opts.Telemetry.Logger.NewComponentLogger("engine").Zerolog(),
		sources: make(map[string]updates.Source),
	}

	graph, err := BuildGraph(e.stages())
	if err != nil {
		return nil, fmt.Errorf("invalid pass graph: %w", err)
	}
	e.graph = graph
	return e, nil
}

// Graph returns the pass stage graph.
func (e *Engine) Graph() *Graph { return e.graph }

// stages is the generation pass. Outputs are committed only after every stage that
// can fail the pass has succeeded; advisories run last and never fail it.
func (e *Engine) stages() []Stage {
	return []Stage{
		{Name: "handoff", Run: e.readHandoff},
		{Name: "settings", After: []string{"handoff"}, Run: e.loadSettings},
		{Name: "platform", After: []string{"handoff"}, Run: e.resolvePlatform},
		{Name: "state", After: []string{"settings"}, Run: e.openState},
		{Name: "script", After: []string{"platform", "state"}, Run: e.runScript},
		{Name: "finalize", After: []string{"script"}, Run: e.finalize},
		{Name: "lint", After: []string{"finalize"}, Run: e.lint},
		{Name: "render-cmake", After: []string{"finalize"}, Run: e.renderCMake},
		{Name: "render-manifest", After: []string{"finalize"}, Run: e.renderManifest},
		{Name: "write", After: []string{"lint", "render-cmake", "render-manifest"}, Run: e.write},
		{Name: "advisories", After: []string{"write"}, Run: e.checkUpdates},
	}
}

// Run executes one pass over the CMake variables handed in by the build tool.
func (e *Engine) Run(ctx context.Context, vars config.CMakeVars) (*Outcome, error) {
	p := &Pass{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Vars:      vars,
	}

	logger := e.tel.Logger.WithPassID(p.ID).WithProject(vars["CMAKE_PROJECT_NAME"], vars["CMAKE_SOURCE_DIR"])
	ctx = e.tel.WithContext(ctx)
	ctx = logger.WithContext(ctx)
	ctx, span := e.tel.Tracer.StartPassSpan(ctx, p.ID, vars["CMAKE_PROJECT_NAME"])
	defer span.End()

	e.tel.Metrics.RecordPassStarted()
	logger.Debug("Generation pass started")

	err := e.graph.execute(ctx, p)
	e.complete(ctx, p, err)

	status := "succeeded"
	if err != nil {
		status = "failed"
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	e.tel.Metrics.RecordPassCompleted(status, time.Since(p.StartedAt))

	if err != nil {
		return nil, classify(err)
	}
	return p.outcome(), nil
}

// complete records the pass result and closes the state store.
func (e *Engine) complete(ctx context.Context, p *Pass, err error) {
	if err != nil {
		kind := string(build.KindConfiguration)
		if k, ok := build.KindOf(err); ok {
			kind = string(k)
		}
		e.tel.Metrics.RecordError(kind)
	}

	if p.store == nil {
		return
	}
	defer func() {
		if cerr := p.store.Close(); cerr != nil {
			e.logger.Warn().Err(cerr).Msg("Failed to close state store")
		}
	}()

	// Record the outcome even when ctx was cancelled mid-pass.
	ctx = context.WithoutCancel(ctx)
	status, kind, msg := stores.PassStatusSucceeded, "", ""
	if err != nil {
		status = stores.PassStatusFailed
		msg = err.Error()
		if k, ok := build.KindOf(err); ok {
			kind = string(k)
		}
	}
	if cerr := p.store.CompletePass(ctx, p.ID, status, kind, msg); cerr != nil {
		e.logger.Warn().Err(cerr).Str("pass_id", p.ID).Msg("Failed to record pass")
	}
	if _, perr := p.store.PrunePasses(ctx, KeepPasses); perr != nil {
		e.logger.Warn().Err(perr).Msg("Failed to prune pass history")
	}
}

// classify makes every failure a *build.Error so the caller can print one diagnostic.
func classify(err error) error {
	var be *build.Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return build.Abort("generate", "interrupted: "+err.Error())
	}
	return &build.Error{Kind: build.KindConfiguration, Op: "generate", Err: err}
}

func (e *Engine) readHandoff(_ context.Context, p *Pass) error {
	h, err := config.NewHandoff(p.Vars)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "cmake", Err: err}
	}
	p.Handoff = h
	return nil
}

func (e *Engine) loadSettings(_ context.Context, p *Pass) error {
	dir := p.Handoff.Project().Dir

	overrides, err := config.NewOverrides(p.Vars, dir)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "overrides", Err: err}
	}
	p.Overrides = overrides

	lookup := e.opts.Lookup
	if lookup == nil {
		lookup = overrides.Lookup
	}
	s, err := config.LoadSettings(dir, lookup)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "settings", Err: err}
	}
	p.Settings = s
	return nil
}

func (e *Engine) resolvePlatform(ctx context.Context, p *Pass) error {
	d, err := platform.New(p.Handoff.PlatformOptions(e.opts.Git))
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "platform", Err: err}
	}
	p.Platform = d

	logger := telemetry.FromContext(ctx).Zerolog()
	logger.Debug().
		Str("target", d.Target().Name(true)).
		Str("compiler", d.CompilerID()).
		Str("frontend", string(d.CompilerFrontend())).
		Str("host", d.HostTriple()).
		Msg("Platform resolved")
	return nil
}

// openState opens the state store. It is best-effort: without it the pass keeps no
// history and skips scheduled update checks.
func (e *Engine) openState(ctx context.Context, p *Pass) error {
	logger := telemetry.FromContext(ctx).Zerolog()

	store, err := e.opts.OpenStore(ctx, p.Settings.StatePath)
	if err != nil {
		logger.Warn().Err(err).Str("path", p.Settings.StatePath).Msg("State store unavailable")
		return nil
	}
	if err := store.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Str("path", p.Settings.StatePath).Msg("State store unhealthy")
		_ = store.Close()
		return nil
	}

	project := p.Handoff.Project()
	if err := store.CreatePass(ctx, &stores.Pass{
		ID:         p.ID,
		Project:    project.Name,
		ProjectDir: project.Dir,
		StartedAt:  p.StartedAt,
	}); err != nil {
		logger.Warn().Err(err).Msg("Failed to record pass start")
		_ = store.Close()
		return nil
	}
	p.store = store
	return nil
}

func (e *Engine) runScript(ctx context.Context, p *Pass) error {
	p.Model = build.New(p.Platform, p.Handoff.Project(), p.Overrides)

	harness := script.New(telemetry.FromContext(ctx).Zerolog(), script.WithStdout(e.opts.Stdout))
	res, err := harness.Run(ctx, p.Settings.ScriptPath(p.Handoff.Project().Dir), p.Model)
	if err != nil {
		return err
	}
	p.Script = res
	return nil
}

func (e *Engine) finalize(_ context.Context, p *Pass) error {
	snap, err := p.Model.Finalize()
	if err != nil {
		return err
	}
	p.Snapshot = snap

	m := e.tel.Metrics
	m.SetDeclarations("options", len(snap.Options))
	m.SetDeclarations("definitions", len(snap.Definitions))
	m.SetDeclarations("sources", len(snap.Sources))
	m.SetDeclarations("compile_options", len(snap.CompileOptions))
	m.SetDeclarations("link_options", len(snap.LinkOptions))
	m.SetDeclarations("libraries", len(snap.Libraries))
	m.SetDeclarations("dependencies", len(snap.Dependencies))
	return nil
}

// lint evaluates the build policies. Blocking findings fail the pass before any file
// is written; the rest are reported after success.
func (e *Engine) lint(ctx context.Context, p *Pass) error {
	logger := telemetry.FromContext(ctx).Zerolog()

	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	pe, err := e.policies(ctx, p.Settings.Policy, logger)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "policy", Err: err}
	}

	input, err := policy.NewInput(p.Snapshot, p.Platform)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "policy", Err: err}
	}
	res, err := pe.Evaluate(ctx, input)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "policy", Err: err}
	}

	for _, v := range append(append([]policy.Violation(nil), res.Violations...), res.Warnings...) {
		e.tel.Metrics.RecordPolicyFinding(v.Policy, string(v.Severity))
	}
	if !res.Allowed {
		msgs := make([]string, len(res.Violations))
		for i, v := range res.Violations {
			msgs[i] = v.String()
		}
		return &build.Error{Kind: build.KindConfiguration, Op: "policy", Message: strings.Join(msgs, "; ")}
	}
	p.Findings = res.Warnings
	return nil
}

func (e *Engine) sdkVersion(p *Pass) string {
	v, err := p.Platform.SDKVersion()
	if err != nil {
		return ""
	}
	return v
}

func (e *Engine) renderCMake(_ context.Context, p *Pass) error {
	out, err := cmakegen.Render(p.Snapshot, cmakegen.Header{
		ToolVersion: e.opts.ToolVersion,
		Platform:    p.Platform.Target().Name(true),
		SDKVersion:  e.sdkVersion(p),
	})
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "render", Err: err}
	}
	p.CMake = out
	return nil
}

func (e *Engine) renderManifest(_ context.Context, p *Pass) error {
	const op = "mod_json"
	if p.Snapshot.Manifest == nil {
		return nil
	}

	sdk, err := p.Platform.SDKVersion()
	if err != nil {
		return &build.Error{Kind: build.KindUnsupportedSDK, Op: op, Message: "cannot determine the SDK version", Err: err}
	}

	doc, err := manifest.Generate(p.Snapshot.ManifestInputs(sdk))
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: op, Err: err}
	}
	v, err := manifest.NewValidator()
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: op, Err: err}
	}
	if err := v.Validate(doc); err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: op, Message: "generated manifest is invalid", Err: err}
	}
	out, err := manifest.Render(doc)
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: op, Err: err}
	}
	p.Manifest = out
	return nil
}

func (p *Pass) outputs() []string {
	if p.Handoff == nil {
		return nil
	}
	out := []string{filepath.Join(p.Handoff.OutputDir(), GeneratedFile)}
	if p.Manifest != nil {
		out = append(out, filepath.Join(p.Handoff.Project().Dir, ManifestFile))
	}
	return out
}

// write commits both outputs together; neither changes unless both can be written.
func (e *Engine) write(ctx context.Context, p *Pass) error {
	paths := p.outputs()
	batch := fsutil.NewBatch()
	batch.Add(paths[0], p.CMake, 0o644)
	if len(paths) > 1 {
		batch.Add(paths[1], p.Manifest, 0o644)
	}

	written, err := batch.Commit()
	if err != nil {
		return &build.Error{Kind: build.KindConfiguration, Op: "write", Err: err}
	}
	p.Written = written

	for range written {
		e.tel.Metrics.RecordFileWrite(true)
	}
	for i := len(written); i < batch.Len(); i++ {
		e.tel.Metrics.RecordFileWrite(false)
	}

	logger := telemetry.FromContext(ctx).Zerolog()
	logger.Debug().
		Strs("written", written).
		Int("unchanged", batch.Len()-len(written)).
		Msg("Outputs committed")
	return nil
}

// checkUpdates runs the update check. It never fails the pass.
func (e *Engine) checkUpdates(ctx context.Context, p *Pass) error {
	logger := telemetry.FromContext(ctx).Zerolog()
	cfg := p.Settings.Updates
	if !cfg.Enabled && !e.opts.ForceUpdateCheck {
		return nil
	}

	targets := updates.TargetsFrom(p.Snapshot.CPMDeps())
	if data, err := os.ReadFile(filepath.Join(p.Handoff.Project().Dir, "CMakeLists.txt")); err == nil {
		if self, ok := updates.SelfTarget(string(data)); ok {
			targets = append([]updates.Target{self}, targets...)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var sched *updates.Scheduler
	if !e.opts.ForceUpdateCheck {
		if p.store == nil {
			logger.Debug().Msg("No state store, skipping scheduled update check")
			return nil
		}
		sched = &updates.Scheduler{Store: p.store, Interval: cfg.Interval, Logger: logger}
	}

	src, err := e.updateSource(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Update check unavailable")
		return nil
	}

	timer := telemetry.NewTimer()
	checker := updates.NewChecker(src, logger, updates.WithWorkers(cfg.Workers), updates.WithTimeout(cfg.Timeout))
	p.Advisories = checker.Run(ctx, targets, sched)
	e.tel.Metrics.ObserveUpdateRound(timer.Duration())
	actionable := 0
	for _, a := range p.Advisories {
		e.tel.Metrics.RecordUpdateCheck(string(a.Kind))
		if a.Actionable() {
			actionable++
		}
	}
	logger.Debug().Int("checked", len(p.Advisories)).Int("updates", actionable).Msg("Update check finished")
	return nil
}

// updateSource returns a memoizing source per API endpoint and token so that watch
// mode does not refetch tag lists on every pass.
func (e *Engine) updateSource(cfg config.UpdateSettings) (updates.Source, error) {
	if e.opts.UpdateSource != nil {
		return e.opts.UpdateSource, nil
	}

	key := cfg.APIURL + "\x00" + cfg.Token
	e.mu.Lock()
	defer e.mu.Unlock()
	if src, ok := e.sources[key]; ok {
		return src, nil
	}

	gh := updates.NewGitHub(cfg.Token)
	if cfg.APIURL != "" {
		gh.BaseURL = strings.TrimSuffix(cfg.APIURL, "/")
	}
	if e.opts.ToolVersion != "" {
		gh.UserAgent = "geobuild/" + e.opts.ToolVersion
	}
	src, err := updates.WithCache(gh, 256)
	if err != nil {
		return nil, err
	}
	e.sources[key] = src
	return src, nil
}
