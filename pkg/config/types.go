// pkg/config/types.go
package config

import "time"

// Config is the root configuration structure for slimjob.
type Config struct {
	Log    LogConfig    `description:"Logging configuration" koanf:"log"`
	Engine EngineConfig `description:"Job engine configuration" koanf:"engine"`
	Watch  WatchConfig  `description:"Directory watcher configuration" koanf:"watch"`
}

// LogConfig holds logging related configuration.
type LogConfig struct {
	Level   string `description:"Log level" koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format  string `description:"Log format: json | text" koanf:"format" validate:"oneof=json text"`
	NoColor bool   `description:"Disable colored console output" koanf:"no_color"`
}

// EngineConfig holds settings shared by every job engine the CLI creates.
type EngineConfig struct {
	Name string `description:"Engine name used in logs and metrics" koanf:"name" validate:"required,max=64"`

	// DefaultDelay is applied to script steps that do not set their own delay.
	DefaultDelay time.Duration `description:"Default delay for script steps" koanf:"default_delay" validate:"gte=0"`

	Metrics bool `description:"Record Prometheus metrics for engines" koanf:"metrics"`
}

// WatchConfig holds configuration for 'slimjob watch'.
type WatchConfig struct {
	Debounce    time.Duration `description:"Quiet period before a change is reported" koanf:"debounce" validate:"gt=0"`
	Recursive   bool          `description:"Watch subdirectories" koanf:"recursive"`
	Lock        bool          `description:"Hold a lock file so only one watcher runs per directory" koanf:"lock"`
	MetricsAddr string        `description:"Address to serve /metrics on (empty disables)" koanf:"metrics_addr" validate:"omitempty,hostname_port"`
}
