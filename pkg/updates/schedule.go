package updates

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/geobuild/geobuild/pkg/stores"
)

// DefaultInterval is the minimum time between two checks of the same dependency.
const DefaultInterval = 24 * time.Hour

// ClaimStore persists last-check timestamps across processes.
type ClaimStore interface {
	ClaimCheck(ctx context.Context, key string, interval time.Duration) (bool, error)
	RecordCheckResult(ctx context.Context, key string, status stores.CheckStatus, latest string) error
}

// Scheduler limits checks to once per Interval per dependency identity.
type Scheduler struct {
	Store    ClaimStore
	Interval time.Duration
	Logger   zerolog.Logger
}

// Due returns the targets whose check may run now, claiming them in the store. When
// the store cannot be read the target is checked anyway.
func (s *Scheduler) Due(ctx context.Context, targets []Target) []Target {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	var due []Target
	for _, t := range targets {
		ok, err := s.Store.ClaimCheck(ctx, t.Key(), interval)
		if err != nil {
			s.Logger.Warn().Err(err).Str("key", t.Key()).Msg("Update-check state unavailable")
			ok = true
		}
		if ok {
			due = append(due, t)
		}
	}
	return due
}

// Record stores the outcome of each advisory. advisories[i] belongs to targets[i].
func (s *Scheduler) Record(ctx context.Context, targets []Target, advisories []Advisory) {
	for i, adv := range advisories {
		if i >= len(targets) {
			break
		}
		if err := s.Store.RecordCheckResult(ctx, targets[i].Key(), statusOf(adv), adv.Latest); err != nil {
			s.Logger.Warn().Err(err).Str("key", targets[i].Key()).Msg("Failed to record update check")
		}
	}
}

func statusOf(a Advisory) stores.CheckStatus {
	switch a.Kind {
	case KindUpdate, KindPrerelease:
		return stores.CheckStatusUpdate
	case KindSkipped:
		return stores.CheckStatusSkipped
	default:
		return stores.CheckStatusUpToDate
	}
}

// Repository that projects pin geobuild itself from.
const (
	SelfOwner = "dankmeme01"
	SelfRepo  = "geobuild"
)

// SelfTarget finds the project's own pin of geobuild in a CMakeLists.txt. Both the
// shorthand form "gh:dankmeme01/geobuild#v1.2.0" and a GIT_TAG argument following the
// repository URL are recognized.
func SelfTarget(cmakeLists string) (Target, bool) {
	needle := SelfOwner + "/" + SelfRepo
	i := strings.Index(cmakeLists, needle)
	if i < 0 {
		return Target{}, false
	}
	rest := strings.TrimPrefix(cmakeLists[i+len(needle):], ".git")

	pin := ""
	if rest != "" && strings.ContainsRune("#@", rune(rest[0])) {
		pin = rest[1:]
		if end := strings.IndexAny(pin, "\" \t\r\n)"); end >= 0 {
			pin = pin[:end]
		}
	} else if j := strings.Index(rest, "GIT_TAG"); j >= 0 {
		fields := strings.Fields(rest[j+len("GIT_TAG"):])
		if len(fields) > 0 {
			pin = strings.Trim(fields[0], "\"()")
		}
	}
	if pin == "" {
		return Target{}, false
	}
	return Target{Name: SelfRepo, Owner: SelfOwner, Repo: SelfRepo, Pin: pin}, true
}
