// Package progression converts experience into ranks and scales rewards and
// experience by difficulty and rank. Every function is pure: the lookup tables
// are fixed when the Calculator is built.
package progression

import (
	"fmt"
	"math"

	"github.com/AccelByte/extend-questboard-common/pkg/config"
	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

// Rank is the name of a rank tier, e.g. "C".
type Rank string

// Tier is one rank with its minimum experience.
type Tier struct {
	Rank          Rank
	MinExperience int
}

const (
	// rankRewardStep is the reward bonus added per rank index.
	rankRewardStep = 0.1

	fullBonusMinutes  = 30.0
	bonusDecayMinutes = 120.0
)

// Calculator holds the rank and difficulty tables.
type Calculator struct {
	tiers          []Tier
	rankIndex      map[Rank]int
	multipliers    map[domain.Difficulty]float64
	baseExperience int
}

// NewCalculator builds a Calculator from validated progression configuration.
// Tables are copied, so later changes to cfg do not affect the calculator.
func NewCalculator(cfg config.ProgressionConfig) (*Calculator, error) {
	if err := config.NewValidator().ValidateProgression(cfg); err != nil {
		return nil, err
	}

	c := &Calculator{
		tiers:          make([]Tier, len(cfg.Ranks)),
		rankIndex:      make(map[Rank]int, len(cfg.Ranks)),
		multipliers:    make(map[domain.Difficulty]float64, len(cfg.Difficulties)),
		baseExperience: cfg.BaseExperience,
	}
	for i, r := range cfg.Ranks {
		c.tiers[i] = Tier{Rank: Rank(r.Name), MinExperience: r.MinExperience}
		c.rankIndex[Rank(r.Name)] = i
	}
	for _, d := range cfg.Difficulties {
		c.multipliers[d.Difficulty] = d.Multiplier
	}
	return c, nil
}

// Default returns a Calculator over the built-in tables.
func Default() *Calculator {
	c, err := NewCalculator(config.Default().Progression)
	if err != nil {
		panic(fmt.Sprintf("progression: default tables are invalid: %v", err))
	}
	return c
}

// Tiers returns a copy of the rank table, lowest first.
func (c *Calculator) Tiers() []Tier {
	return append([]Tier(nil), c.tiers...)
}

// BaseExperience returns the configured base experience for a completion.
func (c *Calculator) BaseExperience() int {
	return c.baseExperience
}

// ExperienceToRank returns the highest tier whose threshold is <= experience.
// Negative experience is treated as 0.
func (c *Calculator) ExperienceToRank(experience int) Rank {
	return c.tiers[c.tierIndex(experience)].Rank
}

// ExperienceToNextRank returns how much experience is missing to reach the next tier,
// or 0 at the top tier.
func (c *Calculator) ExperienceToNextRank(experience int) int {
	i := c.tierIndex(experience)
	if i == len(c.tiers)-1 {
		return 0
	}
	if experience < 0 {
		experience = 0
	}
	return c.tiers[i+1].MinExperience - experience
}

// Level is the 1-based position of the experience's rank.
func (c *Calculator) Level(experience int) int {
	return c.tierIndex(experience) + 1
}

// RankIndex returns the position of rank in the tier table.
// It panics on an unknown rank.
func (c *Calculator) RankIndex(rank Rank) int {
	i, ok := c.rankIndex[rank]
	if !ok {
		panic(fmt.Sprintf("progression: unknown rank %q", rank))
	}
	return i
}

// Multiplier returns the difficulty multiplier. It panics on an unknown difficulty.
func (c *Calculator) Multiplier(difficulty domain.Difficulty) float64 {
	m, ok := c.multipliers[difficulty]
	if !ok {
		panic(fmt.Sprintf("progression: unknown difficulty %q", difficulty))
	}
	return m
}

// HasRank reports whether rank is in the tier table.
func (c *Calculator) HasRank(rank Rank) bool {
	_, ok := c.rankIndex[rank]
	return ok
}

// HasDifficulty reports whether difficulty has a configured multiplier.
func (c *Calculator) HasDifficulty(difficulty domain.Difficulty) bool {
	_, ok := c.multipliers[difficulty]
	return ok
}

// ComputeReward returns round(base * multiplier(difficulty) * (1 + 0.1 * rankIndex(rank))).
func (c *Calculator) ComputeReward(baseReward float64, difficulty domain.Difficulty, rank Rank) float64 {
	return math.Round(baseReward * c.Multiplier(difficulty) * (1 + rankRewardStep*float64(c.RankIndex(rank))))
}

// ComputeExperience returns round(base * multiplier(difficulty) * (1 + timeBonus)).
// The time bonus is 1 up to 30 minutes and decays linearly to 0 at 150 minutes.
func (c *Calculator) ComputeExperience(difficulty domain.Difficulty, completionMinutes float64, baseExperience int) int {
	return int(math.Round(float64(baseExperience) * c.Multiplier(difficulty) * (1 + TimeBonus(completionMinutes))))
}

// TimeBonus returns the speed bonus for a completion time in minutes, clamped to [0, 1].
func TimeBonus(completionMinutes float64) float64 {
	bonus := 1 - (completionMinutes-fullBonusMinutes)/bonusDecayMinutes
	return math.Max(0, math.Min(1, bonus))
}

// CompletionRate returns round(100 * completed / total) as a percentage, or 0 when total is 0.
func CompletionRate(completed, total int) int {
	if total <= 0 {
		return 0
	}
	rate := int(math.Round(100 * float64(completed) / float64(total)))
	if rate > 100 {
		return 100
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// Profile builds the public view of a user with derived rank, level and completion rate.
func (c *Calculator) Profile(u domain.User) domain.PublicProfile {
	u = u.Clone()
	return domain.PublicProfile{
		ID:                  u.ID,
		Name:                u.Name,
		AvatarURL:           u.AvatarURL,
		Level:               c.Level(u.Experience),
		Rank:                string(c.ExperienceToRank(u.Experience)),
		ExperienceToNext:    c.ExperienceToNextRank(u.Experience),
		Skills:              u.Skills,
		QuestCompletionRate: CompletionRate(u.CompletedQuests, u.AcceptedQuests),
	}
}

func (c *Calculator) tierIndex(experience int) int {
	idx := 0
	for i, t := range c.tiers {
		if experience >= t.MinExperience {
			idx = i
		} else {
			break
		}
	}
	return idx
}
