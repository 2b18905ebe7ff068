package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/psylog/internal/flagx"
)

// Flag names shared with the command tree, which declares them too so its
// own parser accepts them.
const (
	FlagDataDir     = "data-dir"
	FlagBackend     = "backend"
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"
	FlagMetricsAddr = "metrics-addr"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	--data-dir string      root directory for store, backups and media
//	--backend string       store backend, sqlite or badger
//	--log-level string     debug, info, warn or error
//	--log-format string    text or json
//	--metrics-addr string  listen address of the daemon's metrics endpoint
//
// Everything else in args is filtered out with flagx.FilterArgs so the
// command tree can parse the rest.
func parseFlags(cfg *Config, args []string) error {
	names := []string{FlagDataDir, FlagBackend, FlagLogLevel, FlagLogFormat, FlagMetricsAddr}
	allowed := make([]string, 0, 2*len(names))
	for _, n := range names {
		allowed = append(allowed, "-"+n, "--"+n)
	}
	filtered := flagx.FilterArgs(args, allowed)

	fs := flag.NewFlagSet("psylog", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, FlagDataDir, cfg.DataDir, "data directory")
	fs.StringVar(&cfg.StoreBackend, FlagBackend, cfg.StoreBackend, "store backend")
	fs.StringVar(&cfg.LogLevel, FlagLogLevel, cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, FlagLogFormat, cfg.LogFormat, "log format")
	fs.StringVar(&cfg.MetricsAddr, FlagMetricsAddr, cfg.MetricsAddr, "metrics listen address")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
