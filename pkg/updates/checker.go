// Package updates runs advisory update checks for pinned dependencies against their
// upstream tag lists. Results never fail a pass and never change a pin.
package updates

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/version"
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 10 * time.Second
)

// Target is a dependency whose upstream can be queried.
type Target struct {
	Name  string
	Owner string
	Repo  string
	Pin   string
}

// Key is the machine-wide identity used to schedule checks.
func (t Target) Key() string {
	return "github.com/" + t.Owner + "/" + t.Repo
}

// TargetsFrom selects the source package dependencies hosted on GitHub, in declaration
// order.
func TargetsFrom(deps []build.DependencyRef) []Target {
	var out []Target
	for _, d := range deps {
		owner, repo, ok := d.GitHubRepo()
		if !ok {
			continue
		}
		out = append(out, Target{Name: d.Name, Owner: owner, Repo: repo, Pin: d.Constraint})
	}
	return out
}

// Checker fetches upstream state for targets through a bounded worker pool.
type Checker struct {
	src     Source
	logger  zerolog.Logger
	workers int
	timeout time.Duration
}

// Option configures a Checker.
type Option func(*Checker)

// WithWorkers bounds the number of concurrent fetches.
func WithWorkers(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithTimeout bounds each dependency's fetch.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewChecker creates a checker reading from src.
func NewChecker(src Source, logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		src:     src,
		logger:  logger.With().Str("component", "updates").Logger(),
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check returns one advisory per target in the order of targets. A failing or slow
// upstream only affects its own advisory.
func (c *Checker) Check(ctx context.Context, targets []Target) []Advisory {
	results := make([]Advisory, len(targets))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = c.checkOne(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (c *Checker) checkOne(ctx context.Context, t Target) Advisory {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	log := c.logger.With().Str("dependency", t.Name).Str("repo", t.Owner+"/"+t.Repo).Logger()

	var adv Advisory
	if version.Classify(t.Pin).Kind == version.RefCommit {
		head, err := c.src.LatestCommit(ctx, t.Owner, t.Repo)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch latest commit")
			return skipped(t, "failed to fetch latest commit: "+err.Error())
		}
		adv = EvaluateCommit(t.Name, t.Pin, head)
	} else {
		tags, err := c.src.Tags(ctx, t.Owner, t.Repo)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch tags")
			return skipped(t, "failed to fetch tags: "+err.Error())
		}
		adv = Evaluate(t.Name, t.Pin, tags)
	}

	log.Debug().
		Str("kind", string(adv.Kind)).
		Str("latest", adv.Latest).
		Dur("duration", time.Since(start)).
		Msg("Update check finished")
	return adv
}

func skipped(t Target, reason string) Advisory {
	return Advisory{Dependency: t.Name, Kind: KindSkipped, Current: t.Pin, Reason: reason}
}

// Run checks the targets that sched reports as due and records the results. A nil
// sched checks everything.
func (c *Checker) Run(ctx context.Context, targets []Target, sched *Scheduler) []Advisory {
	if sched != nil {
		targets = sched.Due(ctx, targets)
	}
	if len(targets) == 0 {
		return nil
	}
	advisories := c.Check(ctx, targets)
	if sched != nil {
		sched.Record(ctx, targets, advisories)
	}
	return advisories
}
