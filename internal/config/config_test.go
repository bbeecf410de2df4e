package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("AZURE_DEVOPS_TOKEN", "secret")
	t.Setenv("THROTTLING_INTERVAL_MS", "250")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pat", c.AuthType)
	assert.Equal(t, 100, c.PageSize)
	assert.Equal(t, 90, c.OnboardingDays)
	assert.Equal(t, 5, c.MaxScanAttempts)
	assert.Equal(t, 250*time.Millisecond, c.ThrottlingInterval)
	assert.Equal(t, time.Minute, c.HTTPTimeout)
	assert.Equal(t, "sqlite", c.StorageType)
	assert.NoError(t, c.Validate())
}

func TestLoadRejectsBadInteger(t *testing.T) {
	t.Setenv("PAGE_SIZE", "lots")

	_, err := Load()
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "PAGE_SIZE", ce.Field)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Token: "t", AuthType: "pat", PageSize: 100, OnboardingDays: 90, MaxScanAttempts: 5,
			TenantID: "acme", IntegrationID: "1", StorageType: "sqlite",
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing token", func(c *Config) { c.Token = "" }, "AZURE_DEVOPS_TOKEN"},
		{"bad auth", func(c *Config) { c.AuthType = "basic" }, "AZURE_DEVOPS_AUTH"},
		{"bad page size", func(c *Config) { c.PageSize = 0 }, "PAGE_SIZE"},
		{"bad storage", func(c *Config) { c.StorageType = "mysql" }, "STORAGE_TYPE"},
		{"postgres without url", func(c *Config) { c.StorageType = "postgres" }, "POSTGRES_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			var ce *ConfigError
			require.ErrorAs(t, c.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
	assert.NoError(t, valid().Validate())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "integration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadIntegration(t *testing.T) {
	t.Run("lists", func(t *testing.T) {
		in, err := LoadIntegration(writeFile(t, `
organizations: [org1, org2]
projects:
  - org1/alpha
  - org2/beta, org2/gamma
flags:
  fetch_commits: false
  fetch_releases: true
fetch_all_iterations: true
`))
		require.NoError(t, err)
		assert.Equal(t, StringList{"org1", "org2"}, in.Organizations)
		assert.Equal(t, StringList{"org1/alpha", "org2/beta", "org2/gamma"}, in.Projects)
		assert.Equal(t, map[string]bool{"fetch_commits": false, "fetch_releases": true}, in.Flags)
		assert.True(t, in.FetchAllIterations)
	})

	t.Run("comma string", func(t *testing.T) {
		in, err := LoadIntegration(writeFile(t, "projects: \"org1/alpha, org1/beta\"\n"))
		require.NoError(t, err)
		assert.Equal(t, StringList{"org1/alpha", "org1/beta"}, in.Projects)
	})

	t.Run("empty path", func(t *testing.T) {
		in, err := LoadIntegration("")
		require.NoError(t, err)
		assert.Empty(t, in.Projects)
	})

	t.Run("bad flag", func(t *testing.T) {
		_, err := LoadIntegration(writeFile(t, "flags:\n  commits: true\n"))
		var ce *ConfigError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("unqualified project", func(t *testing.T) {
		_, err := LoadIntegration(writeFile(t, "projects: alpha\n"))
		assert.Error(t, err)
	})
}
