package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp moves the test into an empty directory so no stray config.yaml is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "https://api.coingecko.com/api/v3", cfg.Provider.BaseURL)
	assert.Equal(t, "10s", cfg.Provider.Timeout)
	assert.Equal(t, 3, cfg.Ingestion.Retries)
	assert.Equal(t, "60s", cfg.Ingestion.BaseDelay)
	assert.Equal(t, 3, cfg.Ingestion.LookbackDays)
	assert.Equal(t, 10, cfg.Ingestion.UniverseSize)
	assert.Equal(t, 5, cfg.Ingestion.BatchSize)
	assert.Equal(t, "5m", cfg.Ingestion.BatchDelay)
	assert.Equal(t, "30m", cfg.Ingestion.CacheTTL)
	assert.True(t, cfg.Ingestion.RetryPermanentErrors)
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, 60, cfg.API.HistoryLimit)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INGESTION_BATCH_SIZE", "2")
	t.Setenv("INGESTION_INTERVAL", "1h")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ENVIRONMENT", "PRODUCTION")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Ingestion.BatchSize)
	assert.Equal(t, "1h", cfg.Ingestion.Interval)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	content := []byte(`
environment: development
ingestion:
  retries: 5
  cache_ttl: 60m
  stagger_delay: 12s
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Ingestion.Retries)
	assert.Equal(t, "60m", cfg.Ingestion.CacheTTL)
	assert.Equal(t, "12s", cfg.Ingestion.StaggerDelay)
	// untouched keys keep defaults
	assert.Equal(t, 5, cfg.Ingestion.BatchSize)
}

func TestLoad_RequiresJWTSecretOutsideDevelopment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENVIRONMENT", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Environment: "development",
			Provider:    ProviderConfig{Timeout: "10s"},
			Ingestion: IngestionConfig{
				Interval:     "30m",
				Retries:      3,
				BaseDelay:    "60s",
				LookbackDays: 3,
				UniverseSize: 10,
				BatchSize:    5,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad duration", mutate: func(c *Config) { c.Ingestion.BaseDelay = "soon" }, wantErr: "ingestion.base_delay"},
		{name: "zero retries", mutate: func(c *Config) { c.Ingestion.Retries = 0 }, wantErr: "ingestion.retries"},
		{name: "too many retries", mutate: func(c *Config) { c.Ingestion.Retries = MaxIngestionRetries + 1 }, wantErr: "ingestion.retries"},
		{name: "zero batch size", mutate: func(c *Config) { c.Ingestion.BatchSize = 0 }, wantErr: "ingestion.batch_size"},
		{name: "zero universe", mutate: func(c *Config) { c.Ingestion.UniverseSize = 0 }, wantErr: "ingestion.universe_size"},
		{name: "zero lookback", mutate: func(c *Config) { c.Ingestion.LookbackDays = 0 }, wantErr: "ingestion.lookback_days"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 5*time.Minute, Duration("5m", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("garbage", time.Second))
}
