package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
server:
  port: 9090
models:
  default: test-model
  endpoints:
    - name: primary
      base_url: http://localhost:9999/v1
      api_key: test-key
      models:
        - id: test-model
          name: Test Model
rate_limit:
  enabled: true
  categories:
    chat:
      max_requests: 3
      window: 30s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.Server.TokenTTL)
	assert.Equal(t, "json", cfg.Users.Type)
	assert.Equal(t, "memory", cfg.Users.Tokens.Type)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.Equal(t, 3, cfg.Knowledge.TopK)
}

func TestLoadConfigBudgetOverride(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	// The file overrides chat, the rest come from the defaults
	assert.Equal(t, CategoryBudget{MaxRequests: 3, Window: 30 * time.Second}, cfg.RateLimit.Categories["chat"])
	assert.Equal(t, DefaultBudgets()["default"], cfg.RateLimit.Categories["default"])
	assert.Equal(t, DefaultBudgets()["auth"], cfg.RateLimit.Categories["auth"])
}

func TestLoadConfigRequiresEndpoint(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
}

func TestLoadConfigRejectsBadBudget(t *testing.T) {
	bad := minimalConfig + `
    file_upload:
      max_requests: 0
      window: 1m
`
	_, err := LoadConfig(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file_upload")
}

func TestDefaultBudgetsCoverKnownCategories(t *testing.T) {
	budgets := DefaultBudgets()
	for _, category := range []string{"default", "chat", "file_upload", "audio", "auth"} {
		budget, ok := budgets[category]
		require.True(t, ok, category)
		assert.Positive(t, budget.MaxRequests)
		assert.Positive(t, budget.Window)
	}
}
