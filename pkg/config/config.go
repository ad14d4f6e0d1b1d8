package config

import (
	"time"

	"github.com/AccelByte/extend-questboard-common/pkg/domain"
)

// Config represents the top-level configuration loaded from questboard.yaml.
// This structure is parsed by viper and validated during application startup.
type Config struct {
	Cache       CacheConfig       `mapstructure:"cache"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Payout      PayoutConfig      `mapstructure:"payout"`
}

// CacheConfig controls the read-through cache.
type CacheConfig struct {
	TTLSeconds    int           `mapstructure:"ttl_seconds"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 disables the background sweeper
}

// TTL returns the entry time-to-live as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// RankTier is one named rank and the experience needed to reach it.
type RankTier struct {
	Name          string `mapstructure:"name"`
	MinExperience int    `mapstructure:"min_experience"`
}

// DifficultyMultiplier scales rewards and experience for one difficulty tier.
type DifficultyMultiplier struct {
	Difficulty domain.Difficulty `mapstructure:"difficulty"`
	Multiplier float64           `mapstructure:"multiplier"`
}

// ProgressionConfig holds the lookup tables used by the progression calculator.
type ProgressionConfig struct {
	Ranks          []RankTier             `mapstructure:"ranks"`        // ordered, lowest first
	Difficulties   []DifficultyMultiplier `mapstructure:"difficulties"` // ordered, easiest first
	BaseExperience int                    `mapstructure:"base_experience"`
}

// RedisConfig configures the cross-process change feed relay.
// An empty Addr disables the relay.
type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// PayoutMode selects the payout client implementation.
type PayoutMode string

const (
	// PayoutModeLog logs payouts without contacting any payment backend.
	PayoutModeLog PayoutMode = "log"
)

// PayoutConfig configures how quest rewards are paid out.
type PayoutConfig struct {
	Mode PayoutMode `mapstructure:"mode"`
}
