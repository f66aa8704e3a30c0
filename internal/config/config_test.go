package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

database:
  url: "postgres://localhost/studio_test?sslmode=disable"
  max_open_conns: 10

sendgrid:
  api_key: "test-api-key"
  timeout_seconds: 45
  enabled: true

auth:
  admin_emails:
    - "coach@innerpath.studio"
    - "ops@innerpath.studio"
  magic_link_ttl_mins: 30
  session_ttl_hours: 48

drainer:
  cron_spec: "*/2 * * * *"
  batch_size: 25
  max_attempts: 3
  backoff_base_mins: 5

brand:
  site_name: "Innerpath Studio"
  base_url: "https://innerpath.studio"
  from_email: "hello@innerpath.studio"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Test database config
	assert.Equal(t, "postgres://localhost/studio_test?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)

	// Test SendGrid config
	assert.Equal(t, "test-api-key", cfg.SendGrid.APIKey)
	assert.Equal(t, 45, cfg.SendGrid.TimeoutSeconds)
	assert.True(t, cfg.SendGrid.Enabled)

	// Test auth config
	assert.Len(t, cfg.Auth.AdminEmails, 2)
	assert.Equal(t, 30, cfg.Auth.MagicLinkTTLMins)
	assert.Equal(t, 48, cfg.Auth.SessionTTLHours)

	// Test drainer config
	assert.Equal(t, "*/2 * * * *", cfg.Drainer.CronSpec)
	assert.Equal(t, 25, cfg.Drainer.BatchSize)
	assert.Equal(t, 3, cfg.Drainer.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Drainer.BackoffBase())

	// Test brand config
	assert.Equal(t, "https://innerpath.studio", cfg.Brand.BaseURL)
	assert.Equal(t, "hello@innerpath.studio", cfg.Brand.FromEmail)
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
sendgrid:
  api_key: "test-key"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.SendGrid.TimeoutSeconds)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 15, cfg.Auth.MagicLinkTTLMins)
	// Admin sessions last a day unless the deployment says otherwise
	assert.Equal(t, 24, cfg.Auth.SessionTTLHours)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTTL())
	assert.Equal(t, "admin_session", cfg.Auth.CookieName)
	assert.Equal(t, "*/1 * * * *", cfg.Drainer.CronSpec)
	assert.Equal(t, 50, cfg.Drainer.BatchSize)
	assert.Equal(t, 5, cfg.Drainer.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.Drainer.Staleness())
	assert.Equal(t, "Innerpath Studio", cfg.Brand.SiteName)
	assert.Equal(t, "Innerpath Studio", cfg.Brand.FromName)
}

func TestLoadFromEnv(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
database:
  url: "postgres://file-host/studio"
sendgrid:
  api_key: "file-key"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variables
	os.Setenv("DATABASE_URL", "postgres://env-host/studio")
	os.Setenv("SENDGRID_API_KEY", "env-key")
	os.Setenv("ADMIN_EMAILS", "coach@innerpath.studio, ops@innerpath.studio")
	defer func() {
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("SENDGRID_API_KEY")
		os.Unsetenv("ADMIN_EMAILS")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "postgres://env-host/studio", cfg.Database.URL)
	assert.Equal(t, "env-key", cfg.SendGrid.APIKey)
	assert.True(t, cfg.SendGrid.Enabled)
	assert.Equal(t, []string{"coach@innerpath.studio", "ops@innerpath.studio"}, cfg.Auth.AdminEmails)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "admin_session", cfg.Auth.CookieName)
}

func TestIsAdmin(t *testing.T) {
	cfg := AuthConfig{AdminEmails: []string{"Coach@Innerpath.Studio"}}
	assert.True(t, cfg.IsAdmin("coach@innerpath.studio"))
	assert.True(t, cfg.IsAdmin("  COACH@INNERPATH.STUDIO "))
	assert.False(t, cfg.IsAdmin("stranger@example.com"))
	assert.False(t, cfg.IsAdmin(""))
}

func TestTimeout(t *testing.T) {
	cfg := SendGridConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}
