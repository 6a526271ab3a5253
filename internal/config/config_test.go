package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mabhi256/jprof/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsWithoutFile(t *testing.T) {
	l := NewLoader(WithEnvPrefix("JPROF_TEST_NONE_"))
	l.filePath = filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Sampler.IntervalMS)
	assert.Equal(t, "jcmd", cfg.Sampler.Jcmd)
	assert.Equal(t, int64(512<<20), cfg.Snapshot.MaxSection())
	assert.True(t, cfg.Snapshot.AutoOpen)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, settings.NoFilter, cfg.Sampler.SimpleFilter())
}

func TestExplicitFileMustExist(t *testing.T) {
	_, err := NewLoader(WithFile(filepath.Join(t.TempDir(), "absent.yaml"))).Load()
	assert.Error(t, err)
}

func TestFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
snapshot:
  dir: /tmp/snaps
  max_section_mb: 16
sampler:
  interval_ms: 20
  ignored_threads: [Signal Dispatcher, Finalizer]
  filter:
    type: inclusive
    value: com.shop.
log:
  level: debug
`)
	t.Setenv("JPROF_SAMPLER_INTERVAL_MS", "5")
	t.Setenv("JPROF_LOG_FORMAT", "json")
	t.Setenv("JPROF_SAMPLER_FILTER_VALUE", "com.acme.")
	t.Setenv("JPROF_SNAPSHOT_AUTO_SAVE", "true")

	cfg, err := NewLoader(WithFile(path)).Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/snaps", cfg.Snapshot.Dir)
	assert.Equal(t, int64(16<<20), cfg.Snapshot.MaxSection())
	assert.Equal(t, 5*time.Millisecond, cfg.Sampler.Interval())
	assert.Equal(t, []string{"Signal Dispatcher", "Finalizer"}, cfg.Sampler.IgnoredThreads)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	f := cfg.Sampler.SimpleFilter()
	assert.Equal(t, settings.FilterInclusive, f.Type)
	assert.Equal(t, "com.acme.", f.Value)
	assert.True(t, f.Passes("com.acme.Cart"))
	assert.False(t, f.Passes("com.shop.Cart"))
	assert.True(t, cfg.Snapshot.AutoSave)
}

func TestEnvSetsNestedFilterKeys(t *testing.T) {
	l := NewLoader(WithEnvPrefix("JPROF_NESTED_"))
	l.filePath = filepath.Join(t.TempDir(), "absent.yaml")
	t.Setenv("JPROF_NESTED_SAMPLER_FILTER_TYPE", "exclusive")
	t.Setenv("JPROF_NESTED_SAMPLER_FILTER_VALUE", "java.")
	t.Setenv("JPROF_NESTED_SAMPLER_INTERVAL_MS", "7")

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "exclusive", cfg.Sampler.Filter.Type)
	assert.Equal(t, "java.", cfg.Sampler.Filter.Value)
	assert.Equal(t, 7, cfg.Sampler.IntervalMS)

	f := cfg.Sampler.SimpleFilter()
	assert.Equal(t, settings.FilterExclusive, f.Type)
	assert.False(t, f.Passes("java.lang.String"))
}

func TestIntervalFloor(t *testing.T) {
	assert.Equal(t, time.Millisecond, SamplerConfig{IntervalMS: 0}.Interval())
}

func TestMarshalEffectiveConfig(t *testing.T) {
	path := writeConfig(t, "sampler:\n  jcmd: /opt/jdk/bin/jcmd\n")
	l := NewLoader(WithFile(path))
	_, err := l.Load()
	require.NoError(t, err)

	out, err := l.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(out), "jcmd: /opt/jdk/bin/jcmd")
	assert.Contains(t, string(out), "interval_ms: 100")
	assert.Equal(t, path, l.Path())
}
