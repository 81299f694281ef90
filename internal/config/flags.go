package config

import (
	"flag"
	"os"
)

// ParseFlags parses command-line flags and returns a Config
func ParseFlags() (Config, error) {
	return Parse(os.Args[1:], os.LookupEnv)
}

// Parse layers defaults, the optional TOML file, the environment and the
// explicitly set flags, in that order.
func Parse(args []string, lookup func(string) (string, bool)) (Config, error) {
	fs := flag.NewFlagSet("meshping", flag.ContinueOnError)

	var (
		configPath = fs.String("config", "", "Path to TOML config file")
		listen     = fs.String("listen", "", "HTTP listen address")
		dbPath     = fs.String("db", "", "Database path")
		interval   = fs.Duration("interval", 0, "Ping interval")
		timeout    = fs.Duration("timeout", 0, "Ping timeout")
		pingMode   = fs.String("ping-mode", "", "Prober: exec or icmp")
		targets    = fs.String("targets", "", "Comma-separated name@addr or host targets")
		peers      = fs.String("peers", "", "Comma-separated peer base URLs")
		logDir     = fs.String("log-dir", "", "Directory for rotated JSON logs")
		logLevel   = fs.String("log-level", "", "Log level")
	)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if *configPath != "" {
		if err := LoadFile(*configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	ApplyEnv(&cfg, lookup)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Listen = *listen
		case "db":
			cfg.DatabasePath = *dbPath
		case "interval":
			cfg.Interval = *interval
		case "timeout":
			cfg.Timeout = *timeout
		case "ping-mode":
			cfg.PingMode = *pingMode
		case "targets":
			cfg.Targets = splitList(*targets)
		case "peers":
			cfg.Peers = splitList(*peers)
		case "log-dir":
			cfg.Logging.Dir = *logDir
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})

	return cfg, nil
}

