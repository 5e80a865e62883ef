package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: beacon-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "America/Toronto", cfg.Timezone)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, 10*time.Minute, cfg.Tracker.Window())
	assert.Equal(t, PolicyIdentityAware, cfg.Tracker.SuppressionPolicy)
	assert.Equal(t, 0, cfg.Tracker.RetentionDays)
	assert.Equal(t, "http://ip-api.com", cfg.GeoIP.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.GeoIP.Timeout())
	assert.InDelta(t, 45.5017, cfg.Map.OriginLat, 0.0001)
	assert.InDelta(t, -73.5673, cfg.Map.OriginLon, 0.0001)
	assert.Zero(t, cfg.Map.CacheTTL())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
port: 8080
env: production
timezone: Europe/Paris
auth:
  secret: s3cret
tracker:
  window_minutes: 5
  suppression_policy: ip_only
  retention_days: 90
map:
  cache_ttl_seconds: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "Europe/Paris", cfg.Timezone)
	assert.Equal(t, 5*time.Minute, cfg.Tracker.Window())
	assert.Equal(t, PolicyIPOnly, cfg.Tracker.SuppressionPolicy)
	assert.Equal(t, 90, cfg.Tracker.RetentionDays)
	assert.Equal(t, time.Minute, cfg.Map.CacheTTL())
}

func TestLoad_LegacyKeys(t *testing.T) {
	path := writeConfig(t, `
node_env: production
tz: America/Toronto
authorization: legacy-secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.IsDev())
	assert.Equal(t, "legacy-secret", cfg.Auth.Secret)
}

func TestLoad_MissingSecret(t *testing.T) {
	path := writeConfig(t, `
port: 3000
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "auth.secret")
}

func TestLoad_InvalidPolicy(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: s
tracker:
  suppression_policy: sometimes
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "suppression_policy")
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
auth:
  secret: s
surprise: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestDSNValue(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 3306, User: "u", Password: "p",
		Name: "tracker", Charset: "utf8mb4", Loc: "Local",
	}
	dsn := c.DSNValue()
	assert.Contains(t, dsn, "u:p@tcp(db:3306)/tracker")
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestRedisURLValue(t *testing.T) {
	c := RedisConfig{Host: "cache", Port: 6380, Password: "pw", DB: 2}
	url := c.URLValue()
	assert.Contains(t, url, "redis://")
	assert.Contains(t, url, "cache:6380")
}
