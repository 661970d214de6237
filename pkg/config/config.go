// Package config loads the engine's tunables from YAML, with
// environment variable overrides applied after parsing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// HeatWeights are the linear-combiner weights for heat scoring.
// MUST sum to 1.0 — validated by Validate().
type HeatWeights struct {
	Posture float64 `yaml:"posture"`
	Recency float64 `yaml:"recency"`
	Volume  float64 `yaml:"volume"`
}

// DepthUnits are budget units consumed per pull depth.
type DepthUnits struct {
	Shallow int `yaml:"shallow"`
	Deep    int `yaml:"deep"`
}

// PullBudget are the daily pull caps. Zero disables the corresponding cap.
type PullBudget struct {
	MaxPerDay          int `yaml:"max_per_day"`
	MaxPerConnectorDay int `yaml:"max_per_connector_per_day"`
}

// TierPolicy is the per-tier cadence/depth/cooldown policy.
type TierPolicy struct {
	Cadence            time.Duration `yaml:"cadence"`
	DefaultDepth        string        `yaml:"default_depth"`
	DemotionCooldown    time.Duration `yaml:"demotion_cooldown"`
}

// RetryPolicy governs the INVOKE_TOOL transient-retry loop.
type RetryPolicy struct {
	Attempts        int           `yaml:"attempts"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	Factor          float64       `yaml:"factor"`
}

// Config is the engine's full tunable surface.
type Config struct {
	HeatWeights         HeatWeights            `yaml:"heat_weights"`
	DepthUnits          DepthUnits             `yaml:"depth_units"`
	PullBudget          PullBudget             `yaml:"pull_budget"`
	TierPolicy          map[string]TierPolicy  `yaml:"tier_policy"`
	RulesetVersion      string                 `yaml:"ruleset_version"`
	SignalTTLDays       map[string]*int        `yaml:"signal_ttl_days"` // nil value = permanent
	StateMachineTimeout time.Duration          `yaml:"state_machine_timeout"`
	Retry               RetryPolicy            `yaml:"retry"`
}

// Default returns the documented default configuration.
func Default() *Config {
	one := 1
	return &Config{
		HeatWeights: HeatWeights{Posture: 0.5, Recency: 0.3, Volume: 0.2},
		DepthUnits:  DepthUnits{Shallow: 1, Deep: 3},
		PullBudget:  PullBudget{MaxPerDay: 0, MaxPerConnectorDay: 0},
		TierPolicy: map[string]TierPolicy{
			"HOT":  {Cadence: time.Hour, DefaultDepth: "DEEP", DemotionCooldown: 4 * time.Hour},
			"WARM": {Cadence: 6 * time.Hour, DefaultDepth: "SHALLOW", DemotionCooldown: 24 * time.Hour},
			"COLD": {Cadence: 72 * time.Hour, DefaultDepth: "SHALLOW", DemotionCooldown: 48 * time.Hour},
		},
		RulesetVersion:      "v1",
		SignalTTLDays:       map[string]*int{"RENEWAL_WINDOW_ENTERED": &one},
		StateMachineTimeout: time.Hour,
		Retry:               RetryPolicy{Attempts: 3, InitialBackoff: 2 * time.Second, Factor: 2.0},
	}
}

// Load reads a YAML config file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets deployment-specific knobs bypass the checked-in
// YAML without a redeploy — ENGINE_RULESET_VERSION is the one most often
// flipped during a rule rollout.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGINE_RULESET_VERSION"); v != "" {
		cfg.RulesetVersion = v
	}
	if v := os.Getenv("ENGINE_PULL_MAX_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PullBudget.MaxPerDay = n
		}
	}
}

// Validate checks invariants that aren't otherwise spelled out as code.
func (c *Config) Validate() error {
	sum := c.HeatWeights.Posture + c.HeatWeights.Recency + c.HeatWeights.Volume
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("heat_weights must sum to 1.0, got %f", sum)
	}
	if c.RulesetVersion == "" {
		return fmt.Errorf("ruleset_version is required")
	}
	if c.DepthUnits.Shallow <= 0 || c.DepthUnits.Deep <= 0 {
		return fmt.Errorf("depth_units must be positive")
	}
	return nil
}
