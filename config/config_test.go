package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"charting-systemv1/internal/indicator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"SERVICE_NAME", "LOG_LEVEL", "INDENGINE_HTTP_ADDR", "BAR_CAPACITY", "SHUTDOWN_TIMEOUT",
	"FANOUT_BUFFER", "SQLITE_PATH", "ARCHIVE_BATCH_SIZE", "ARCHIVE_RETENTION", "REDIS_ADDR",
	"REDIS_PASSWORD", "REDIS_DB", "COMMAND_CHANNEL", "PUBLISH_PREFIX", "INDICATOR_CONFIGS", "CONFIG_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "indengine", cfg.ServiceName)
	assert.Equal(t, ":9095", cfg.HTTPAddr)
	assert.Equal(t, 1000, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "data/bars.db", cfg.SQLitePath)
	assert.Empty(t, cfg.RedisAddr, "redis is opt-in")
	assert.Equal(t, "cmd:indicators", cfg.CommandChannel)
	assert.Equal(t, "pub:ind", cfg.PublishPrefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAR_CAPACITY", "250")
	t.Setenv("ARCHIVE_RETENTION", "0")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("FANOUT_BUFFER", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Capacity)
	assert.Equal(t, 0, cfg.ArchiveRetention)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 256, cfg.FanoutBuffer, "unparsable values fall back to the default")
}

func TestLoad_YAMLOverlay(t *testing.T) {
	clearEnv(t)
	t.Setenv("BAR_CAPACITY", "300")
	path := filepath.Join(t.TempDir(), "indengine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
capacity: 500
archive_retention: 0
shutdown_timeout: 2s
sqlite_path: ""
indicator_configs: "SMA:200"
indicators:
  - id: BB_50
    name: Bollinger (50, 2.5)
    kind: BB
    params: {period: 50, stdDevMultiplier: 2.5}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Capacity, "file wins over env")
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.SQLitePath)

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "BB_50", defs[0].ID)
	assert.Equal(t, indicator.KindBB, defs[0].Kind)
	assert.Equal(t, indicator.BBParams{Period: 50, Multiplier: 2.5}, defs[0].Spec)
	assert.Equal(t, "SMA_200", defs[1].ID)

	_, err = indicator.DefaultCatalog(defs...)
	assert.NoError(t, err)
}

func TestLoad_ConfigFileFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http_addr: \":7000\"\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("capacity: [1, 2"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv("BAR_CAPACITY", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "capacity")
}

func TestValidate_RetentionBelowCapacity(t *testing.T) {
	cfg := &Config{HTTPAddr: ":1", Capacity: 100, FanoutBuffer: 1, ArchiveRetention: 50}
	assert.ErrorContains(t, cfg.Validate(), "archive_retention")
}

func TestDefinitions_Errors(t *testing.T) {
	cfg := &Config{Indicators: []IndicatorConfig{{ID: "X", Kind: "NOPE"}}}
	_, err := cfg.Definitions()
	assert.Error(t, err)

	cfg = &Config{Indicators: []IndicatorConfig{{ID: "SMA_0", Kind: "SMA", Params: map[string]float64{"period": 0}}}}
	_, err = cfg.Definitions()
	assert.Error(t, err)
}
