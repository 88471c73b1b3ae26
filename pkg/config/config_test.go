package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no config.yaml or .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, 1000, cfg.Grounding.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Grounding.Temperature, 0.0001)
	assert.Equal(t, 5, cfg.LLM.BreakerFailures)
	assert.Zero(t, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, 120, cfg.Server.IdleWorkspaceMins)
}

func TestLoad_EnvOverridesAndProviderKey(t *testing.T) {
	chdir(t)
	t.Setenv("GENAI_LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "sk-ignored")
	t.Setenv("GENAI_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "g-key", cfg.LLM.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdir(t)
	yaml := "storage:\n  backend: redis\nredis:\n  host: cache.internal\n  ttlHours: 24\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache.internal", cfg.Redis.Host)
	assert.Equal(t, 24, cfg.Redis.TTLHours)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "sqlite"}, LLM: LLMConfig{Provider: "openai"}}
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "mongo"
	assert.Error(t, cfg.Validate())

	cfg.Storage.Backend = "postgres"
	assert.Error(t, cfg.Validate(), "postgres needs a dsn")
	cfg.Postgres.DSN = "postgres://localhost/genai"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "anthropic"
	assert.Error(t, cfg.Validate())
}
