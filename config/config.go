// Package config carries runtime configuration for the workflow engine
// and its capabilities, with YAML loading over sane defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level runtime configuration.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	LLM    LLMConfig    `yaml:"llm"`
	Store  StoreConfig  `yaml:"store"`
	Log    LogConfig    `yaml:"log"`
}

// EngineConfig tunes run execution.
type EngineConfig struct {
	MaxAttempts         int           `yaml:"max_attempts"`
	InitialBackoff      time.Duration `yaml:"initial_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff"`
	BackoffMultiplier   float64       `yaml:"backoff_multiplier"`
	BottleneckThreshold float64       `yaml:"bottleneck_threshold"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
}

// LLMConfig tunes the provider capability wrapper.
type LLMConfig struct {
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	RateLimitRPS  float64 `yaml:"rate_limit_rps"`
	RateBurst     int     `yaml:"rate_burst"`
	TokenEncoding string  `yaml:"token_encoding"`
}

// StoreConfig selects record persistence. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig tunes structured logging.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing is provided.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxAttempts:         3,
			InitialBackoff:      1 * time.Second,
			MaxBackoff:          30 * time.Second,
			BackoffMultiplier:   2.0,
			BottleneckThreshold: 0.5,
			RunTimeout:          10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:      "openai",
			Model:         "gpt-4o-mini",
			RateLimitRPS:  5,
			RateBurst:     10,
			TokenEncoding: "cl100k_base",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("engine.max_attempts must be >= 1, got %d", c.Engine.MaxAttempts)
	}
	if c.Engine.BackoffMultiplier < 1.0 {
		return fmt.Errorf("engine.backoff_multiplier must be >= 1.0, got %g", c.Engine.BackoffMultiplier)
	}
	if c.Engine.BottleneckThreshold <= 0 || c.Engine.BottleneckThreshold >= 1 {
		return fmt.Errorf("engine.bottleneck_threshold must be in (0, 1), got %g", c.Engine.BottleneckThreshold)
	}
	if c.LLM.RateLimitRPS < 0 {
		return fmt.Errorf("llm.rate_limit_rps must not be negative, got %g", c.LLM.RateLimitRPS)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}
