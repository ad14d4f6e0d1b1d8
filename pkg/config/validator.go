package config

import (
	stderrors "errors"
	"fmt"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
	"github.com/AccelByte/extend-questboard-common/pkg/errors"
)

// Validator validates quest board configuration.
// It ensures all business rules are met before the application starts.
type Validator struct{}

// NewValidator creates a new Validator instance.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of the configuration.
// It checks for:
// - A positive cache TTL
// - Rank tiers starting at 0 with strictly increasing, uniquely named thresholds
// - A positive multiplier for every difficulty, each listed exactly once
// - A positive base experience
// - A known payout mode
//
// Returns a CONFIG_INVALID error wrapping the first validation failure encountered.
func (v *Validator) Validate(config *Config) error {
	if err := v.validate(config); err != nil {
		return errors.ErrConfigInvalid(err)
	}
	return nil
}

func (v *Validator) validate(config *Config) error {
	if config.Cache.TTLSeconds <= 0 {
		return stderrors.New("cache.ttl_seconds must be positive")
	}
	if config.Cache.SweepInterval < 0 {
		return stderrors.New("cache.sweep_interval must not be negative")
	}
	if err := v.validateProgression(config.Progression); err != nil {
		return err
	}
	if config.Payout.Mode != PayoutModeLog {
		return fmt.Errorf("unsupported payout.mode: %q", config.Payout.Mode)
	}
	return nil
}

// ValidateProgression checks the rank and difficulty tables on their own.
func (v *Validator) ValidateProgression(p ProgressionConfig) error {
	if err := v.validateProgression(p); err != nil {
		return errors.ErrConfigInvalid(err)
	}
	return nil
}

func (v *Validator) validateProgression(p ProgressionConfig) error {
	if err := v.validateRanks(p.Ranks); err != nil {
		return fmt.Errorf("invalid progression.ranks: %w", err)
	}
	if err := v.validateDifficulties(p.Difficulties); err != nil {
		return fmt.Errorf("invalid progression.difficulties: %w", err)
	}
	if p.BaseExperience <= 0 {
		return stderrors.New("progression.base_experience must be positive")
	}
	return nil
}

func (v *Validator) validateRanks(ranks []RankTier) error {
	if len(ranks) == 0 {
		return stderrors.New("at least one rank is required")
	}
	if ranks[0].MinExperience != 0 {
		return fmt.Errorf("lowest rank '%s' must start at 0 experience (got %d)", ranks[0].Name, ranks[0].MinExperience)
	}

	names := make(map[string]bool)
	for i, rank := range ranks {
		if rank.Name == "" {
			return fmt.Errorf("rank #%d has an empty name", i)
		}
		if names[rank.Name] {
			return fmt.Errorf("duplicate rank name: %s", rank.Name)
		}
		names[rank.Name] = true

		if i > 0 && rank.MinExperience <= ranks[i-1].MinExperience {
			return fmt.Errorf("rank '%s' threshold %d must be greater than '%s' threshold %d",
				rank.Name, rank.MinExperience, ranks[i-1].Name, ranks[i-1].MinExperience)
		}
	}
	return nil
}

func (v *Validator) validateDifficulties(diffs []DifficultyMultiplier) error {
	if len(diffs) == 0 {
		return stderrors.New("at least one difficulty is required")
	}

	seen := make(map[string]bool)
	for _, d := range diffs {
		if !d.Difficulty.IsValid() {
			return fmt.Errorf("unknown difficulty '%s'", d.Difficulty)
		}
		if seen[string(d.Difficulty)] {
			return fmt.Errorf("duplicate difficulty: %s", d.Difficulty)
		}
		seen[string(d.Difficulty)] = true

		if d.Multiplier <= 0 {
			return fmt.Errorf("difficulty '%s' multiplier must be positive", d.Difficulty)
		}
	}
	// Quests may use any known difficulty, so each one needs a multiplier.
	for _, d := range domain.Difficulties {
		if !seen[string(d)] {
			return fmt.Errorf("missing multiplier for difficulty '%s'", d)
		}
	}
	return nil
}
