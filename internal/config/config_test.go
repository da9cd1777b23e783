package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("RAPIDAPI_HOST", "sneakers.example")
	t.Setenv("RAPIDAPI_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "sneakers.example", cfg.API.Host)
	require.Equal(t, "secret", cfg.API.Key)
	require.Equal(t, 15, cfg.API.TimeoutSeconds)
	require.Equal(t, 4.0, cfg.API.RateLimitRPS)
	require.Equal(t, "_cache", cfg.Cache.Dir)
	require.Equal(t, 100, cfg.Loader.PageSize)
	require.Equal(t, 1, cfg.Loader.Concurrency, "sequential by default")
	require.Equal(t, "sneakers.db", cfg.Store.Output)
	require.Empty(t, cfg.Metrics.ListenAddr)
	require.True(t, cfg.Logging.Development)
}

func TestLoadWithFileOverrides(t *testing.T) {
	setCredentials(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
api:
  timeout_seconds: 30
  rate_limit_rps: 2.5
cache:
  dir: /tmp/sneaker-cache
loader:
  page_size: 50
  concurrency: 4
  page_retries: 2
  retry_backoff_ms: 250
store:
  output: out/sneakers.db
metrics:
  listen_addr: ":9102"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 30, cfg.API.TimeoutSeconds)
	require.Equal(t, 2.5, cfg.API.RateLimitRPS)
	require.Equal(t, "/tmp/sneaker-cache", cfg.Cache.Dir)
	require.Equal(t, 50, cfg.Loader.PageSize)
	require.Equal(t, 4, cfg.Loader.Concurrency)
	require.Equal(t, 2, cfg.Loader.PageRetries)
	require.Equal(t, "out/sneakers.db", cfg.Store.Output)
	require.Equal(t, ":9102", cfg.Metrics.ListenAddr)
	require.False(t, cfg.Logging.Development)
}

func TestValidate(t *testing.T) {
	setCredentials(t)

	base, err := Load("")
	require.NoError(t, err)

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.API.Host = "" },
			wantErr: "api.host",
		},
		{
			name:    "missing key",
			mutate:  func(c *Config) { c.API.Key = "" },
			wantErr: "api.key",
		},
		{
			name:    "zero page size",
			mutate:  func(c *Config) { c.Loader.PageSize = 0 },
			wantErr: "loader.page_size",
		},
		{
			name:    "excess concurrency",
			mutate:  func(c *Config) { c.Loader.Concurrency = 8 },
			wantErr: "loader.concurrency",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Loader.PageRetries = -1 },
			wantErr: "loader.page_retries",
		},
		{
			name:    "missing output",
			mutate:  func(c *Config) { c.Store.Output = "" },
			wantErr: "store.output",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("RAPIDAPI_HOST", "")
	t.Setenv("RAPIDAPI_KEY", "")
	t.Setenv("SNEAKERDB_API_HOST", "")
	t.Setenv("SNEAKERDB_API_KEY", "")

	_, err := Load("")
	require.Error(t, err)
}
