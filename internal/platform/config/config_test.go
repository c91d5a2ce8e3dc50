package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
addr: ":9090"
packages:
  - /opt/taxonomies/eba
offline_roots:
  - url_prefix: "http://www.eba.europa.eu/xbrl/"
    local_root: "/opt/mirror/eba"
flags:
  enable_dts_first: true
worker:
  mode: local
  timeout: 30s
redis:
  ttl: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"/opt/taxonomies/eba"}, cfg.Packages)
	require.Len(t, cfg.OfflineRoots, 1)
	assert.Equal(t, "/opt/mirror/eba", cfg.OfflineRoots[0].LocalRoot)
	assert.True(t, cfg.Flags.EnableDTSFirst)
	assert.False(t, cfg.Flags.AllowInstanceRewrite)
	assert.Equal(t, "local", cfg.Worker.Mode)
	assert.Equal(t, 30*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)

	// Defaults survive when the file is silent.
	assert.Equal(t, "cache", cfg.CacheDir)
	assert.Equal(t, "stub", cfg.Engine.Binding)
	assert.Contains(t, cfg.Profiles, "full")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestFromEnvWinsOverFile(t *testing.T) {
	t.Setenv("VERITAX_ADDR", ":7070")
	t.Setenv("VERITAX_POSTGRES_DSN", "postgres://env")
	t.Setenv("VERITAX_KAFKA_BROKERS", "a:9092,b:9092")

	cfg := FromEnv(Default())

	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "postgres://env", cfg.Postgres.DSN)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestProfileNamedFallsBackToFast(t *testing.T) {
	cfg := Default()

	name, p := cfg.ProfileNamed("full")
	assert.Equal(t, "full", name)
	assert.True(t, p.Formulas)

	name, p = cfg.ProfileNamed("nonsense")
	assert.Equal(t, "fast", name)
	assert.False(t, p.Formulas)
}
