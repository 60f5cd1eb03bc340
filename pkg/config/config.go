// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ErrInvalidConfig indicates the merged configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var validate = validator.New()

// Manager handles loading and accessing application configuration.
type Manager struct {
	currentConfig Config
	mu            sync.RWMutex // protects currentConfig
}

// NewManager creates a Manager holding the default configuration.
func NewManager() *Manager {
	return &Manager{
		currentConfig: DefaultConfig(),
	}
}

// DefaultConfig returns a new Config populated with hardcoded defaults.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			Name:         "slimjob",
			DefaultDelay: 0,
			Metrics:      false,
		},
		Watch: DefaultWatchConfig(),
	}
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys for the confmap
// provider, so that every key is known before flags are applied.
func DefaultConfigAsMap() map[string]interface{} {
	def := DefaultConfig()
	return map[string]interface{}{
		"log.level":    def.Log.Level,
		"log.format":   def.Log.Format,
		"log.no_color": def.Log.NoColor,

		"engine.name":          def.Engine.Name,
		"engine.default_delay": def.Engine.DefaultDelay,
		"engine.metrics":       def.Engine.Metrics,

		"watch.debounce":     def.Watch.Debounce,
		"watch.recursive":    def.Watch.Recursive,
		"watch.lock":         def.Watch.Lock,
		"watch.metrics_addr": def.Watch.MetricsAddr,
	}
}

// Load loads configuration from defaults, configPath, SLIMJOB_* environment
// variables and flags, in that order of precedence.
func (m *Manager) Load(flags *pflag.FlagSet, configPath string) error {
	return m.LoadWithSources(DefaultSources(configPath, flags))
}

// LoadWithSources loads the given sources in ascending priority order into a
// fresh koanf instance, then unmarshals and validates the result. The
// current configuration is replaced only if every step succeeds.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	ordered := make([]ConfigSource, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})

	k := koanf.New(".")
	for _, src := range ordered {
		if err := src.Load(k); err != nil {
			return fmt.Errorf("config source %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	postProcessConfig(&cfg)

	if err := Validate(cfg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentConfig = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

func postProcessConfig(cfg *Config) {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Engine.Name = strings.TrimSpace(cfg.Engine.Name)
	if cfg.Watch.Debounce > 0 && cfg.Watch.Debounce < time.Millisecond {
		// Sub-millisecond debounce is almost always a unitless value read
		// as nanoseconds.
		cfg.Watch.Debounce = time.Millisecond
	}
}

// Validate checks cfg against its struct tags.
func Validate(cfg Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", keyFor(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// keyFor turns a validator namespace like "Config.Watch.Debounce" into the
// koanf key users actually type ("watch.debounce").
func keyFor(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BindFlags defines the global command-line flags that map onto
// configuration keys. It should be called on the root command's persistent
// flags.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()

	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")

	flags.String("log.level", defaults.Log.Level, "Log level (trace, debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "Log format (text, json)")
	flags.Bool("log.no_color", defaults.Log.NoColor, "Disable colored console output")
	flags.String("engine.name", defaults.Engine.Name, "Engine name used in logs and metrics")
	flags.Bool("engine.metrics", defaults.Engine.Metrics, "Record Prometheus metrics")
}
