package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/mabhi256/jprof/internal/settings"
)

const appName = "jprof"

type Config struct {
	Snapshot SnapshotConfig `koanf:"snapshot"`
	Sampler  SamplerConfig  `koanf:"sampler"`
	Log      LogConfig      `koanf:"log"`
}

type SnapshotConfig struct {
	Dir          string `koanf:"dir"`
	AutoOpen     bool   `koanf:"auto_open"`
	AutoSave     bool   `koanf:"auto_save"`
	MaxSectionMB int64  `koanf:"max_section_mb"`
}

type SamplerConfig struct {
	IntervalMS     int          `koanf:"interval_ms"`
	Jcmd           string       `koanf:"jcmd"`
	IgnoredThreads []string     `koanf:"ignored_threads"`
	Filter         FilterConfig `koanf:"filter"`
}

type FilterConfig struct {
	Type  string `koanf:"type"` // none, inclusive, exclusive
	Value string `koanf:"value"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Interval is the sampling interval, never below one millisecond
func (c SamplerConfig) Interval() time.Duration {
	return max(time.Duration(c.IntervalMS)*time.Millisecond, time.Millisecond)
}

func (c SamplerConfig) SimpleFilter() settings.SimpleFilter {
	t := settings.ParseFilterType(c.Filter.Type)
	if t == settings.FilterNone || c.Filter.Value == "" {
		return settings.NoFilter
	}
	return settings.SimpleFilter{Name: "Quick filter", Type: t, Value: c.Filter.Value}
}

// MaxSection is the per-section byte budget for the snapshot codec
func (c SnapshotConfig) MaxSection() int64 {
	if c.MaxSectionMB <= 0 {
		return 0
	}
	return c.MaxSectionMB << 20
}

// defaults is the lowest-priority layer, nested the way the YAML file is
func defaults() map[string]any {
	return map[string]any{
		"snapshot": map[string]any{
			"dir":            filepath.Join(baseDir(), "snapshots"),
			"auto_open":      true,
			"auto_save":      false,
			"max_section_mb": 512,
		},
		"sampler": map[string]any{
			"interval_ms":     100,
			"jcmd":            "jcmd",
			"ignored_threads": []string{},
			"filter": map[string]any{
				"type":  "none",
				"value": "",
			},
		},
		"log": map[string]any{
			"level":  "warn",
			"format": "text",
		},
	}
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "."+appName)
	}
	return filepath.Join(dir, appName)
}

// DefaultPath is where the config file is looked up without --config
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}
