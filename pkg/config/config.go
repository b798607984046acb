// Package config loads daemon configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Providers ProvidersConfig `yaml:"providers"`
	Hybrid    HybridConfig    `yaml:"hybrid"`
	Anomaly   AnomalyConfig   `yaml:"anomaly"`
	Plan      PlanConfig      `yaml:"plan"`
	Engine    EngineConfig    `yaml:"engine"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// RedisConfig points at the consensus cache backend. Empty Addr means
// in-memory caching only.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PostgresConfig points at the run store. Empty DSN disables
// persistence.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// ProvidersConfig tunes the opinion providers and their consensus.
type ProvidersConfig struct {
	Weights  map[string]float64 `yaml:"weights"`
	Timeout  time.Duration      `yaml:"timeout"`
	CacheTTL time.Duration      `yaml:"cache_ttl"`
}

// HybridConfig tunes the tier synthesizer.
type HybridConfig struct {
	TierWeights   map[string]float64 `yaml:"tier_weights"`
	MaxConcurrent int                `yaml:"max_concurrent"`
}

// AnomalyConfig tunes market divergence detection.
type AnomalyConfig struct {
	MinDivergence float64 `yaml:"min_divergence"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// PlanConfig tunes marking and budget reduction. Preset is one of
// default, aggressive, conservative; explicit fields override it.
type PlanConfig struct {
	Preset            string  `yaml:"preset"`
	SingleConfidence  float64 `yaml:"single_confidence"`
	SingleProbability float64 `yaml:"single_probability"`
	DoubleProbability float64 `yaml:"double_probability"`
	Budget            float64 `yaml:"budget"`
	UnitCost          float64 `yaml:"unit_cost"`
	PriceMargin       float64 `yaml:"price_margin"`
	MaxStakeFraction  float64 `yaml:"max_stake_fraction"`
	UpsetCover        *bool   `yaml:"upset_cover"`
}

// EngineConfig tunes the pipeline loop.
type EngineConfig struct {
	RunInterval time.Duration `yaml:"run_interval"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
	SlateFile   string        `yaml:"slate_file"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log:  LogConfig{Level: "info"},
		Plan: PlanConfig{Preset: "default"},
	}
}

// Load reads the YAML file at path (if non-empty) over defaults, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SLATEPICK_HTTP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SLATEPICK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SLATEPICK_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("SLATEPICK_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SLATEPICK_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
	if v := os.Getenv("SLATEPICK_SLATE_FILE"); v != "" {
		c.Engine.SlateFile = v
	}
	if v := os.Getenv("SLATEPICK_PLAN_PRESET"); v != "" {
		c.Plan.Preset = v
	}
	if v := os.Getenv("SLATEPICK_BUDGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Plan.Budget = f
		}
	}
	if v := os.Getenv("SLATEPICK_RUN_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Engine.RunInterval = d
		}
	}
}

func (c *Config) validate() error {
	switch c.Plan.Preset {
	case "", "default", "aggressive", "conservative":
	default:
		return fmt.Errorf("unknown plan preset %q", c.Plan.Preset)
	}
	if len(c.Providers.Weights) > 0 {
		positive := false
		for name, w := range c.Providers.Weights {
			if w < 0 {
				return fmt.Errorf("provider %q has negative weight", name)
			}
			if w > 0 {
				positive = true
			}
		}
		if !positive {
			return fmt.Errorf("provider weights are all zero")
		}
	}
	for name, w := range c.Hybrid.TierWeights {
		if w < 0 {
			return fmt.Errorf("tier %q has negative weight", name)
		}
	}
	if c.Anomaly.MinConfidence < 0 || c.Anomaly.MinConfidence > 1 {
		return fmt.Errorf("anomaly min_confidence must be in [0,1]")
	}
	return nil
}
