// Package config loads engine configuration from caucus.yaml and the
// environment. Every knob has a default; an empty config file (or none
// at all) yields a runnable engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	// Socket is the control socket path the engine listens on
	Socket string `yaml:"socket"`

	// Database is the SQLite path for the transcript, path memory, and
	// results. Empty disables persistence; everything runs in memory.
	Database string `yaml:"database"`

	Redis   RedisConfig   `yaml:"redis"`
	Memory  MemoryConfig  `yaml:"memory"`
	Pruning PruningConfig `yaml:"pruning"`
	Gate    GateConfig    `yaml:"gate"`
	Auction AuctionConfig `yaml:"auction"`
	Runner  RunnerConfig  `yaml:"runner"`
	Budget  BudgetConfig  `yaml:"budget"`
	Mission MissionConfig `yaml:"mission"`
	AI      AIConfig      `yaml:"ai"`

	// Stages overrides the default pipeline when non-empty
	Stages []StageConfig `yaml:"stages"`
}

// RedisConfig selects the durable queue backend. An empty address keeps
// the queue in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MemoryConfig tunes path memory.
type MemoryConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PruningConfig tunes the novelty evaluator.
type PruningConfig struct {
	Window              int           `yaml:"window"`
	NoveltyThreshold    float64       `yaml:"novelty_threshold"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	ConsecutiveLow      int           `yaml:"consecutive_low"`
	SuggestionTTL       time.Duration `yaml:"suggestion_ttl"`
}

// GateConfig tunes the critic gate.
type GateConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold"`
	VetoFloor       float64 `yaml:"veto_floor"`
}

// AuctionConfig tunes the task router.
type AuctionConfig struct {
	Window            time.Duration `yaml:"window"`
	DefaultSpecialist string        `yaml:"default_specialist"`
}

// RunnerConfig tunes team invocation.
type RunnerConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// BudgetConfig caps cumulative team invocation spend. A zero limit
// disables enforcement.
type BudgetConfig struct {
	Limit        float64 `yaml:"limit"`
	WarnFraction float64 `yaml:"warn_fraction"`
}

// MissionConfig tunes the mission executive.
type MissionConfig struct {
	StepCap int `yaml:"step_cap"`
}

// AIConfig selects the model backend for teams and critics. Scripted
// teams are used when Enabled is false, so the engine runs without an
// API key.
type AIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Model     string `yaml:"model"`
	MaxTokens int64  `yaml:"max_tokens"`
}

// StageConfig mirrors one orchestrator pipeline stage.
type StageConfig struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"` // "pair", "solo", "broadcast"
	Teams   []string `yaml:"teams"`
	Gated   bool     `yaml:"gated"`
	Auction bool     `yaml:"auction"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Socket:   filepath.Join(os.TempDir(), "caucus.sock"),
		Database: "",
		Memory: MemoryConfig{
			TTL:           24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Pruning: PruningConfig{
			Window:              5,
			NoveltyThreshold:    0.3,
			SimilarityThreshold: 0.85,
			ConsecutiveLow:      2,
			SuggestionTTL:       30 * time.Minute,
		},
		Gate: GateConfig{
			AcceptThreshold: 0.5,
			VetoFloor:       0.4,
		},
		Auction: AuctionConfig{
			Window: 2 * time.Second,
		},
		Runner: RunnerConfig{
			Timeout:       60 * time.Second,
			MaxRetries:    2,
			MaxConcurrent: 4,
		},
		Budget: BudgetConfig{
			WarnFraction: 0.8,
		},
		Mission: MissionConfig{
			StepCap: 25,
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. Unset fields keep their defaults, so a partial
// file only overrides what it names.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of the file.
func applyEnv(cfg *Config) {
	if socket := os.Getenv("CAUCUS_SOCKET"); socket != "" {
		cfg.Socket = socket
	}
	if database := os.Getenv("CAUCUS_DB"); database != "" {
		cfg.Database = database
	}
	if addr := os.Getenv("CAUCUS_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if model := os.Getenv("CAUCUS_MODEL"); model != "" {
		cfg.AI.Model = model
	}
}

// Validate checks ranges on the knobs a file can break.
func (c *Config) Validate() error {
	if c.Socket == "" {
		return fmt.Errorf("socket path is required")
	}
	if c.Pruning.Window <= 0 {
		return fmt.Errorf("pruning window must be positive (got %d)", c.Pruning.Window)
	}
	if c.Pruning.NoveltyThreshold < 0 || c.Pruning.NoveltyThreshold > 1 {
		return fmt.Errorf("novelty threshold must be between 0.0 and 1.0 (got %.2f)", c.Pruning.NoveltyThreshold)
	}
	if c.Pruning.SimilarityThreshold < 0 || c.Pruning.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be between 0.0 and 1.0 (got %.2f)", c.Pruning.SimilarityThreshold)
	}
	if c.Gate.AcceptThreshold < 0 || c.Gate.AcceptThreshold > 1 {
		return fmt.Errorf("accept threshold must be between 0.0 and 1.0 (got %.2f)", c.Gate.AcceptThreshold)
	}
	if c.Gate.VetoFloor < 0 || c.Gate.VetoFloor > 1 {
		return fmt.Errorf("veto floor must be between 0.0 and 1.0 (got %.2f)", c.Gate.VetoFloor)
	}
	if c.Runner.Timeout <= 0 {
		return fmt.Errorf("runner timeout must be positive (got %v)", c.Runner.Timeout)
	}
	if c.Budget.Limit < 0 {
		return fmt.Errorf("budget limit cannot be negative (got %.2f)", c.Budget.Limit)
	}
	if c.Budget.WarnFraction <= 0 || c.Budget.WarnFraction >= 1 {
		return fmt.Errorf("budget warn fraction must be between 0.0 and 1.0 exclusive (got %.2f)", c.Budget.WarnFraction)
	}
	if c.Runner.MaxConcurrent <= 0 {
		return fmt.Errorf("runner max_concurrent must be positive (got %d)", c.Runner.MaxConcurrent)
	}
	if c.Mission.StepCap <= 0 {
		return fmt.Errorf("mission step_cap must be positive (got %d)", c.Mission.StepCap)
	}
	for i, stage := range c.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage %d is missing a name", i)
		}
		switch stage.Kind {
		case "pair", "solo", "broadcast":
		default:
			return fmt.Errorf("stage %s has unknown kind %q", stage.Name, stage.Kind)
		}
	}
	return nil
}
