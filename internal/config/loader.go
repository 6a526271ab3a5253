package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "JPROF_"

// Loader layers defaults, the YAML file and JPROF_ environment variables,
// later sources winning
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	explicit  bool // a missing file is an error only when asked for
}

type Option func(*Loader)

func WithFile(path string) Option {
	return func(l *Loader) {
		if path != "" {
			l.filePath = path
			l.explicit = true
		}
	}
}

func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: EnvPrefix,
		filePath:  DefaultPath(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loader) Path() string {
	return l.filePath
}

func (l *Loader) Load() (*Config, error) {
	if err := l.k.Load(mapProvider(defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if err := l.loadFile(); err != nil {
		return nil, err
	}

	if err := l.loadEnv(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) loadFile() error {
	if _, err := os.Stat(l.filePath); errors.Is(err, os.ErrNotExist) && !l.explicit {
		return nil
	}
	if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
		return fmt.Errorf("load config file %s: %w", l.filePath, err)
	}
	return nil
}

// loadEnv maps JPROF_SAMPLER_FILTER_TYPE to the known key sampler.filter.type.
// Unknown names split at the first underscore, JPROF_SECTION_SOME_KEY
// becoming section.some_key.
func (l *Loader) loadEnv() error {
	known := make(map[string]string)
	for _, key := range l.k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		if key, ok := known[s]; ok {
			return key
		}
		return strings.Replace(s, "_", ".", 1)
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as YAML
func (l *Loader) Marshal() ([]byte, error) {
	return l.k.Marshal(yaml.Parser())
}
