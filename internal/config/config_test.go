package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("PORTQUERY_CONFIG", "/nonexistent/config.json")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "30s", cfg.LLM.Timeout)
	assert.Equal(t, 1000, cfg.Database.MaxResultRows)
	assert.Equal(t, 20, cfg.Formatter.PageSize)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Formatter.MaskPII)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORTQUERY_CONFIG", "/nonexistent/config.json")
	t.Setenv("PORTQUERY_LLM_PROVIDER", "azure")
	t.Setenv("PORTQUERY_LLM_DEPLOYMENT", "gpt-4o-settlement")
	t.Setenv("PORTQUERY_DB_MAX_RESULT_ROWS", "250")
	t.Setenv("PORTQUERY_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "azure", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-settlement", cfg.LLM.Deployment)
	assert.Equal(t, 250, cfg.Database.MaxResultRows)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		value string
	}{
		{"invalid log level", "PORTQUERY_LOG_LEVEL", "verbose"},
		{"invalid log format", "PORTQUERY_LOG_FORMAT", "xml"},
		{"invalid provider", "PORTQUERY_LLM_PROVIDER", "bard"},
		{"invalid query timeout", "PORTQUERY_DB_QUERY_TIMEOUT", "soon"},
		{"invalid llm timeout", "PORTQUERY_LLM_TIMEOUT", "whenever"},
		{"non-positive row cap", "PORTQUERY_DB_MAX_RESULT_ROWS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PORTQUERY_CONFIG", "/nonexistent/config.json")
			t.Setenv(tt.env, tt.value)

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigWithOverrides(t *testing.T) {
	t.Setenv("PORTQUERY_CONFIG", "/nonexistent/config.json")

	cfg, err := LoadConfigWithOverrides(map[string]interface{}{
		"db-path":     "/tmp/settlement.db",
		"schema-path": "/tmp/schema.yaml",
		"provider":    "ollama",
		"no-cache":    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/settlement.db", cfg.Database.Path)
	assert.Equal(t, "/tmp/schema.yaml", cfg.Schema.Path)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.False(t, cfg.Cache.Enabled)
}

func TestTimeoutDurations(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{QueryTimeout: "5s"},
		LLM:      LLMConfig{Timeout: "90s"},
	}

	assert.Equal(t, 5*time.Second, cfg.QueryTimeoutDuration())
	assert.Equal(t, 90*time.Second, cfg.LLMTimeoutDuration())
}

func TestTimeoutDurationFallback(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{QueryTimeout: "garbage"},
		LLM:      LLMConfig{Timeout: ""},
	}

	assert.Equal(t, 30*time.Second, cfg.QueryTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.LLMTimeoutDuration())
}

func TestExpandPath(t *testing.T) {
	assert.Equal(t, "/absolute/path", expandPath("/absolute/path"))
	assert.Equal(t, "relative/path", expandPath("relative/path"))

	expanded := expandPath("~/data.db")
	assert.NotContains(t, expanded, "~")
}
