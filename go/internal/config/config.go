// Package config loads server settings from the environment and the game
// defaults from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration
type Config struct {
	Port        string
	CORSOrigins []string
	NATSURL     string
	LogLevel    string
	LogFormat   string
	Workers     int

	Game GameConfig
}

// GameConfig holds the match defaults and round timing
type GameConfig struct {
	DurationSec       int           `yaml:"duration_sec"`
	PointLimit        int           `yaml:"point_limit"`
	RoundLimit        int           `yaml:"round_limit"`
	QuorumPolicy      string        `yaml:"quorum_policy"`
	CountdownInterval time.Duration `yaml:"countdown_interval"`
	FinalizeRetry     time.Duration `yaml:"finalize_retry"`
	RecoveryInterval  time.Duration `yaml:"recovery_interval"`
	StartCountdownSec int           `yaml:"start_countdown_sec"`
	NextRoundDelay    time.Duration `yaml:"next_round_delay"`
}

// DefaultGameConfig returns the classic table rules.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		DurationSec:       60,
		PointLimit:        1500,
		RoundLimit:        7,
		QuorumPolicy:      "half_categories",
		CountdownInterval: time.Second,
		FinalizeRetry:     2 * time.Second,
		RecoveryInterval:  15 * time.Second,
		StartCountdownSec: 3,
	}
}

// Load reads the environment and, when path (or GAME_CONFIG) names a file,
// the game defaults in it. A missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		NATSURL:   os.Getenv("NATS_URL"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
		Workers:   getEnvAsInt("ORCHESTRATOR_WORKERS", 4),
		Game:      DefaultGameConfig(),
	}
	for _, o := range strings.Split(getEnv("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	explicit := true
	if path == "" {
		path = os.Getenv("GAME_CONFIG")
	}
	if path == "" {
		path, explicit = "config.yaml", false
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg.Game); err != nil {
			return nil, fmt.Errorf("failed to parse game config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read game config: %w", err)
	}

	if err := cfg.Game.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the game defaults against the ranges the API accepts.
func (g GameConfig) Validate() error {
	switch {
	case g.DurationSec < 15 || g.DurationSec > 300:
		return fmt.Errorf("duration_sec must be between 15 and 300, got %d", g.DurationSec)
	case g.PointLimit < 100 || g.PointLimit > 5000:
		return fmt.Errorf("point_limit must be between 100 and 5000, got %d", g.PointLimit)
	case g.RoundLimit < 1 || g.RoundLimit > 20:
		return fmt.Errorf("round_limit must be between 1 and 20, got %d", g.RoundLimit)
	case g.QuorumPolicy != "half_categories" && g.QuorumPolicy != "any_valid":
		return fmt.Errorf("unknown quorum_policy %q", g.QuorumPolicy)
	case g.CountdownInterval < 0 || g.FinalizeRetry <= 0 || g.RecoveryInterval < 0 || g.NextRoundDelay < 0:
		return errors.New("timer intervals must not be negative and finalize_retry must be positive")
	case g.StartCountdownSec < 0 || g.StartCountdownSec > 30:
		return fmt.Errorf("start_countdown_sec must be between 0 and 30, got %d", g.StartCountdownSec)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
