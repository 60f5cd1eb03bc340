// pkg/config/source.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read by EnvSource.
const EnvPrefix = "SLIMJOB_"

// Load priorities of the built-in sources. A source with a higher priority
// overrides keys set by a lower one.
const (
	PriorityDefaults = 10
	PriorityFile     = 20
	PriorityEnv      = 30
	PriorityFlags    = 40
)

// ConfigSource loads a layer of configuration into k. LoadWithSources applies
// sources in ascending Priority order.
type ConfigSource interface {
	Name() string
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSource seeds every key with the values from DefaultConfig.
type DefaultSource struct{}

func (*DefaultSource) Name() string  { return "defaults" }
func (*DefaultSource) Priority() int { return PriorityDefaults }

func (*DefaultSource) Load(k *koanf.Koanf) error {
	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	return nil
}

// FileSource reads a YAML config file. An empty Path or a missing file adds
// nothing, so a fresh install runs on defaults.
type FileSource struct {
	Path string
}

func (s *FileSource) Name() string { return "file:" + s.Path }
func (*FileSource) Priority() int  { return PriorityFile }

func (s *FileSource) Load(k *koanf.Koanf) error {
	if s.Path == "" {
		return nil
	}

	info, err := os.Stat(s.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat config file %s: %w", s.Path, err)
	case info.IsDir():
		return fmt.Errorf("config file %s is a directory", s.Path)
	}

	if err := k.Load(file.Provider(s.Path), yaml.Parser()); err != nil {
		return fmt.Errorf("parse config file %s: %w", s.Path, err)
	}
	return nil
}

// EnvSource maps prefixed environment variables onto config keys with
// envKey.
type EnvSource struct {
	Prefix string // defaults to EnvPrefix
}

func (*EnvSource) Name() string  { return "env" }
func (*EnvSource) Priority() int { return PriorityEnv }

func (s *EnvSource) Load(k *koanf.Koanf) error {
	prefix := s.Prefix
	if prefix == "" {
		prefix = EnvPrefix
	}
	if err := k.Load(env.Provider(prefix, ".", func(name string) string {
		return envKey(prefix, name)
	}), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}

// envKey turns an environment variable name into a config key. Section names
// never contain an underscore, so only the first one after the prefix
// becomes a dot and the rest stay part of the field name:
//
//	SLIMJOB_LOG_LEVEL            -> log.level
//	SLIMJOB_ENGINE_NAME          -> engine.name
//	SLIMJOB_ENGINE_DEFAULT_DELAY -> engine.default_delay
//	SLIMJOB_WATCH_DEBOUNCE       -> watch.debounce
//	SLIMJOB_WATCH_METRICS_ADDR   -> watch.metrics_addr
func envKey(prefix, name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, prefix))
	return strings.Replace(key, "_", ".", 1)
}

// FlagSource reads the flags bound by BindFlags and BindWatchFlags.
// Flags the user did not set fall back to whatever lower sources loaded.
// --debug is shorthand for --log.level=debug.
type FlagSource struct {
	Flags *pflag.FlagSet
}

func (*FlagSource) Name() string  { return "flags" }
func (*FlagSource) Priority() int { return PriorityFlags }

func (s *FlagSource) Load(k *koanf.Koanf) error {
	if s.Flags == nil {
		return nil
	}
	if err := k.Load(posflag.Provider(s.Flags, ".", k), nil); err != nil {
		return fmt.Errorf("load flags: %w", err)
	}
	if debug, err := s.Flags.GetBool("debug"); err == nil && debug {
		if err := k.Set("log.level", "debug"); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}
	return nil
}

// DefaultSources returns defaults, configPath, SLIMJOB_* variables and flags,
// lowest priority first.
func DefaultSources(configPath string, flags *pflag.FlagSet) []ConfigSource {
	return []ConfigSource{
		&DefaultSource{},
		&FileSource{Path: configPath},
		&EnvSource{Prefix: EnvPrefix},
		&FlagSource{Flags: flags},
	}
}
