package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration file over the defaults, applies
// FLOWGRAPH_* environment overrides, and validates the result. A missing
// path returns the defaults with overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides individual settings from the environment. Variables
// win over both defaults and the file.
func (c *Config) applyEnv() error {
	if v := os.Getenv("FLOWGRAPH_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("FLOWGRAPH_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FLOWGRAPH_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("FLOWGRAPH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FLOWGRAPH_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLOWGRAPH_MAX_ATTEMPTS: %w", err)
		}
		c.Engine.MaxAttempts = n
	}
	return nil
}

// BuildLogger constructs the zap logger described by the log section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
