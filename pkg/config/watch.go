package config

import (
	"time"

	"github.com/spf13/pflag"
)

// DefaultWatchConfig returns the default watcher configuration.
func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Debounce:  200 * time.Millisecond,
		Recursive: false,
		Lock:      true,
	}
}

// BindWatchFlags binds watcher flags to the provided FlagSet.
//
// Flags are namespaced under 'watch.' so posflag maps them straight onto
// koanf keys, e.g. --watch.debounce 500ms.
func BindWatchFlags(flags *pflag.FlagSet) {
	defaults := DefaultWatchConfig()

	flags.Duration("watch.debounce", defaults.Debounce, "Quiet period before a change is reported")
	flags.Bool("watch.recursive", defaults.Recursive, "Watch subdirectories")
	flags.Bool("watch.lock", defaults.Lock, "Hold a lock file so only one watcher runs per directory")
	flags.String("watch.metrics_addr", defaults.MetricsAddr, "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
}
