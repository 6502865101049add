package goCartes

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 300*time.Second, cfg.Session.RefreshLead)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 20*time.Second, cfg.API.EffectiveTimeout())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{"https base url", func(c *Config) { c.API.BaseURL = "https://cartes.example.org" }, true},
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, false},
		{"ftp base url", func(c *Config) { c.API.BaseURL = "ftp://cartes.example.org" }, false},
		{"blank base url", func(c *Config) { c.API.BaseURL = "  " }, false},
		{"negative timeout", func(c *Config) { c.API.Timeout = -time.Second }, false},
		{"unknown profile", func(c *Config) { c.API.Profile = "staging" }, false},
		{"blank app name", func(c *Config) { c.App.Name = "" }, false},
		{"same storage keys", func(c *Config) { c.Session.UserKey = c.Session.TokenKey }, false},
		{"zero min refresh delay", func(c *Config) { c.Session.MinRefreshDelay = 0 }, false},
		{"zero refresh lead", func(c *Config) { c.Session.RefreshLead = 0 }, true},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }, false},
		{"no retry attempts", func(c *Config) { c.Retry.Attempts = 0 }, false},
		{"too many retry attempts", func(c *Config) { c.Retry.Attempts = 11 }, false},
		{"extension without dot", func(c *Config) { c.Import.AllowedExtensions = []string{"xlsx"} }, false},
		{"no extensions", func(c *Config) { c.Import.AllowedExtensions = nil }, false},
		{"async events without buffer", func(c *Config) { c.Events.BufferSize = 0 }, false},
		{"inline events without buffer", func(c *Config) {
			c.Events.Async = false
			c.Events.BufferSize = 0
		}, true},
		{"histograms without metrics", func(c *Config) {
			c.Metrics.Enabled = false
			c.Metrics.EnableLatencyHistograms = true
		}, false},
		{"tracing without service name", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.ServiceName = ""
		}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestProfileTimeouts(t *testing.T) {
	assert.Equal(t, 30*time.Second, ProfileDevelopment.Timeout())
	assert.Equal(t, 20*time.Second, ProfileDefault.Timeout())
	assert.Equal(t, 10*time.Second, ProfileProduction.Timeout())

	cfg := APIConfig{Profile: ProfileProduction, Timeout: 3 * time.Second}
	assert.Equal(t, 3*time.Second, cfg.EffectiveTimeout())
}

func TestCloneConfigCopiesSlices(t *testing.T) {
	cfg := DefaultConfig()
	clone := cloneConfig(cfg)
	clone.Import.AllowedExtensions[0] = ".csv"
	assert.Equal(t, ".xlsx", cfg.Import.AllowedExtensions[0])
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvAPIURL, "https://cartes.example.org/")
	t.Setenv(EnvProfile, "Production")
	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvAppName, "guichet")
	t.Setenv(EnvOTLPEndpoint, " localhost:4317 ")

	cfg, err := ConfigFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, "https://cartes.example.org", cfg.API.BaseURL)
	assert.Equal(t, ProfileProduction, cfg.API.Profile)
	assert.Equal(t, 10*time.Second, cfg.API.EffectiveTimeout())
	assert.True(t, cfg.API.Debug)
	assert.Equal(t, "guichet", cfg.App.Name)
	assert.Equal(t, "localhost:4317", cfg.Tracing.Endpoint)
	assert.False(t, cfg.Tracing.Insecure)
}

func TestConfigFromEnvTimeoutForms(t *testing.T) {
	t.Setenv(EnvTimeout, "15000")
	cfg, err := ConfigFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.API.EffectiveTimeout())

	t.Setenv(EnvTimeout, "2m")
	cfg, err = ConfigFromEnv("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, cfg.API.EffectiveTimeout())

	t.Setenv(EnvTimeout, "soon")
	_, err = ConfigFromEnv("")
	assert.ErrorContains(t, err, EnvTimeout)
}

func TestConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cartes.env")
	require.NoError(t, os.WriteFile(path, []byte("CARTES_APP_VERSION=2.4.0\nCARTES_METRICS=false\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv(EnvAppVersion)
		os.Unsetenv(EnvMetrics)
	})

	cfg, err := ConfigFromEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "2.4.0", cfg.App.Version)
	assert.False(t, cfg.Metrics.Enabled)

	_, err = ConfigFromEnv(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestConfigFromEnvRejectsUnknownProfile(t *testing.T) {
	t.Setenv(EnvProfile, "staging")
	_, err := ConfigFromEnv("")
	assert.ErrorContains(t, err, "unknown profile")
}

func TestParseConfigYAML(t *testing.T) {
	doc := []byte(`
api:
  baseURL: https://cartes.example.org
  profile: development
session:
  refreshLead: 2m
  validateOnRestore: false
cache:
  ttl: 30s
retry:
  attempts: 5
import:
  allowedExtensions: [".xlsx"]
events:
  async: false
tracing:
  enabled: true
  endpoint: otel-collector:4317
  insecure: true
`)
	cfg, err := ParseConfigYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "https://cartes.example.org", cfg.API.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.API.EffectiveTimeout())
	assert.Equal(t, 2*time.Minute, cfg.Session.RefreshLead)
	assert.False(t, cfg.Session.ValidateOnRestore)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Retry.Attempts)
	assert.Equal(t, []string{".xlsx"}, cfg.Import.AllowedExtensions)
	assert.False(t, cfg.Events.Async)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	// untouched fields keep their defaults
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "goCartes", cfg.App.Name)
}

func TestParseConfigYAMLErrors(t *testing.T) {
	_, err := ParseConfigYAML([]byte("cache:\n  ttl: forever\n"))
	assert.ErrorContains(t, err, "cache.ttl")

	_, err = ParseConfigYAML([]byte("cache:\n  size: 3\n"))
	assert.Error(t, err, "unknown fields are rejected")

	_, err = ParseConfigYAML([]byte("retry:\n  attempts: 40\n"))
	assert.Error(t, err)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
