package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. QUESTBOARD_CACHE_TTL_SECONDS.
const EnvPrefix = "QUESTBOARD"

// ConfigLoader loads and validates quest board configuration from a YAML, JSON or TOML file.
// It performs file reading, defaulting, environment overrides and validation.
type ConfigLoader struct {
	configPath string
	validator  *Validator
	logger     *slog.Logger
}

// NewConfigLoader creates a new ConfigLoader instance.
//
// Parameters:
//   - configPath: Path to the config file, format taken from its extension (YAML when it has none);
//     empty means defaults plus environment only
//   - logger: Structured logger for operational logging, nil means slog.Default()
func NewConfigLoader(configPath string, logger *slog.Logger) *ConfigLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigLoader{
		configPath: configPath,
		validator:  NewValidator(),
		logger:     logger,
	}
}

// LoadConfig loads the configuration and returns a validated Config.
// Invalid configuration prevents startup: the caller should exit on error.
func (l *ConfigLoader) LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.configPath != "" {
		v.SetConfigFile(l.configPath)
		if filepath.Ext(l.configPath) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := l.validator.Validate(&config); err != nil {
		return nil, err
	}

	l.logger.Info("Config loaded successfully",
		"ranks", len(config.Progression.Ranks),
		"difficulties", len(config.Progression.Difficulties),
		"cache_ttl_seconds", config.Cache.TTLSeconds,
		"redis_enabled", config.Redis.Addr != "",
		"config_path", l.configPath,
	)

	return &config, nil
}

// Default returns the built-in configuration without reading any file or environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cache.ttl_seconds", 300)
	v.SetDefault("cache.sweep_interval", "1m")

	v.SetDefault("progression.base_experience", 100)
	v.SetDefault("progression.ranks", []map[string]any{
		{"name": "F", "min_experience": 0},
		{"name": "E", "min_experience": 1000},
		{"name": "D", "min_experience": 3000},
		{"name": "C", "min_experience": 7000},
		{"name": "B", "min_experience": 15000},
		{"name": "A", "min_experience": 30000},
		{"name": "S", "min_experience": 60000},
		{"name": "SS", "min_experience": 100000},
	})
	v.SetDefault("progression.difficulties", []map[string]any{
		{"difficulty": "easy", "multiplier": 1.0},
		{"difficulty": "medium", "multiplier": 1.5},
		{"difficulty": "hard", "multiplier": 2.5},
		{"difficulty": "expert", "multiplier": 4.0},
		{"difficulty": "legendary", "multiplier": 6.0},
	})

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "questboard")

	v.SetDefault("payout.mode", string(PayoutModeLog))
}

// Load is shorthand for NewConfigLoader(path, logger).LoadConfig().
func Load(path string, logger *slog.Logger) (*Config, error) {
	return NewConfigLoader(path, logger).LoadConfig()
}
