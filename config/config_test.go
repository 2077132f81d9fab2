package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowgraph.yaml")
	doc := []byte(`
engine:
  max_attempts: 5
  bottleneck_threshold: 0.3
  run_timeout: 2m
llm:
  provider: anthropic
  model: claude-sonnet-4-5
log:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 0.3, cfg.Engine.BottleneckThreshold)
	assert.Equal(t, 2*time.Minute, cfg.Engine.RunTimeout)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1*time.Second, cfg.Engine.InitialBackoff)
	assert.Equal(t, "cl100k_base", cfg.LLM.TokenEncoding)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowgraph.yaml")
	doc := []byte("llm:\n  model: gpt-4o\nengine:\n  max_attempts: 5\n")
	require.NoError(t, os.WriteFile(path, doc, 0o600))

	t.Setenv("FLOWGRAPH_LLM_MODEL", "gpt-4.1")
	t.Setenv("FLOWGRAPH_MAX_ATTEMPTS", "7")
	t.Setenv("FLOWGRAPH_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, 7, cfg.Engine.MaxAttempts)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MalformedEnvInteger(t *testing.T) {
	t.Setenv("FLOWGRAPH_MAX_ATTEMPTS", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOWGRAPH_MAX_ATTEMPTS")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero attempts", func(c *Config) { c.Engine.MaxAttempts = 0 }},
		{"shrinking backoff", func(c *Config) { c.Engine.BackoffMultiplier = 0.5 }},
		{"threshold at one", func(c *Config) { c.Engine.BottleneckThreshold = 1 }},
		{"negative rate limit", func(c *Config) { c.LLM.RateLimitRPS = -1 }},
		{"unknown log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBuildLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "warn"
	logger, err := cfg.BuildLogger()
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
