// Package config loads runtime configuration for psylog.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file selected with -c, -config or --config. Files
//     ending in .yaml or .yml are read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Directories left empty are derived from the data directory after all
// sources are applied, then the whole Config is validated.
//
// # File schema
//
// Durations use timex.Duration, so values can be either strings like "12h"
// or integer nanoseconds:
//
//	{
//	  "data_dir": "/var/lib/psylog",
//	  "store_backend": "sqlite",
//	  "max_backups": 7,
//	  "auto_backup_interval": "12h",
//	  "prompt_debounce": "800ms",
//	  "audio_extensions": [".m4a"],
//	  "log_level": "info"
//	}
package config
