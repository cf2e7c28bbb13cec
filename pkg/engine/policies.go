package engine

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/geobuild/geobuild/pkg/config"
	"github.com/geobuild/geobuild/pkg/policy"
)

// LoadPolicies builds a policy engine holding the built-ins and the project's
// policy directory, with the settings' enable and disable lists applied.
func LoadPolicies(ctx context.Context, logger zerolog.Logger, s config.PolicySettings) (*policy.Engine, error) {
	pe, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if err := configurePolicies(ctx, pe, s, logger); err != nil {
		return nil, err
	}
	return pe, nil
}

func configurePolicies(ctx context.Context, pe *policy.Engine, s config.PolicySettings, logger zerolog.Logger) error {
	if s.Dir != "" {
		if _, err := os.Stat(s.Dir); err != nil {
			logger.Warn().Str("dir", s.Dir).Msg("Policy directory not found")
		} else if err := pe.LoadPolicies(ctx, []string{s.Dir}); err != nil {
			return err
		}
	}
	for _, name := range s.Enabled {
		if err := pe.EnablePolicy(name); err != nil {
			logger.Warn().Err(err).Msg("Cannot enable policy")
		}
	}
	for _, name := range s.Disabled {
		if err := pe.DisablePolicy(name); err != nil {
			logger.Warn().Err(err).Msg("Cannot disable policy")
		}
	}
	return nil
}

// policies returns the engine's policy set refreshed for this pass. The set lives
// across passes so unchanged policy files are not re-parsed. Callers hold policyMu.
func (e *Engine) policies(ctx context.Context, s config.PolicySettings, logger zerolog.Logger) (*policy.Engine, error) {
	if e.policySet == nil {
		pe, err := LoadPolicies(ctx, e.logger, s)
		if err != nil {
			return nil, err
		}
		e.policySet = pe
		return pe, nil
	}
	if err := e.policySet.ReloadPolicies(ctx); err != nil {
		return nil, err
	}
	if err := configurePolicies(ctx, e.policySet, s, logger); err != nil {
		return nil, err
	}
	return e.policySet, nil
}
