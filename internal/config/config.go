package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Ping modes understood by the engine.
const (
	PingModeExec = "exec"
	PingModeICMP = "icmp"
)

const defaultPrometheusQuery = `increase(meshping_pings_bucket{instance="%(pingnode)s",name="%(name)s",target="%(addr)s"}[1h])`

// Config holds all configuration for a meshping node
type Config struct {
	Listen          string        `toml:"listen"`
	DatabasePath    string        `toml:"database"`
	Interval        time.Duration `toml:"interval"`
	Timeout         time.Duration `toml:"timeout"`
	PingMode        string        `toml:"ping_mode"`
	Targets         []string      `toml:"targets"`
	Peers           []string      `toml:"peers"`
	PeerInterval    time.Duration `toml:"peer_interval"`
	PrometheusURL   string        `toml:"prometheus_url"`
	PrometheusQuery string        `toml:"prometheus_query"`
	Nameservers     []string      `toml:"nameservers"`
	ResolveTimeout  time.Duration `toml:"resolve_timeout"`
	Logging         LoggingConfig `toml:"logging"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	Dir      string `toml:"dir"`
	MaxMB    int    `toml:"max_mb"`
	MaxFiles int    `toml:"max_files"`
	Level    string `toml:"level"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		Listen:          ":9922",
		DatabasePath:    "meshping.db",
		Interval:        1 * time.Second,
		Timeout:         5 * time.Second,
		PingMode:        PingModeExec,
		PeerInterval:    30 * time.Second,
		PrometheusQuery: defaultPrometheusQuery,
		ResolveTimeout:  5 * time.Second,
		Logging: LoggingConfig{
			MaxMB:    10,
			MaxFiles: 5,
			Level:    "info",
		},
	}
}

// LoadFile decodes a TOML file on top of cfg.
func LoadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file not found: %w", err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with MESHPING_* environment variables.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup("MESHPING_PROMETHEUS_URL"); ok {
		cfg.PrometheusURL = v
	}
	if v, ok := lookup("MESHPING_PROMETHEUS_QUERY"); ok {
		cfg.PrometheusQuery = v
	}
	if v, ok := lookup("MESHPING_DATABASE"); ok {
		cfg.DatabasePath = v
	}
	if v, ok := lookup("MESHPING_PEERS"); ok {
		cfg.Peers = splitList(v)
	}
}

// HaveProm reports whether chart rendering is backed by Prometheus.
func (c *Config) HaveProm() bool {
	return c.PrometheusURL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []string

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("listen address %q is invalid", c.Listen))
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, "database path cannot be empty")
	}
	if c.Interval <= 0 {
		errs = append(errs, "interval must be positive")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.PingMode != PingModeExec && c.PingMode != PingModeICMP {
		errs = append(errs, fmt.Sprintf("ping_mode must be %q or %q", PingModeExec, PingModeICMP))
	}
	if len(c.Peers) > 0 && c.PeerInterval <= 0 {
		errs = append(errs, "peer_interval must be positive when peers are configured")
	}
	if c.ResolveTimeout <= 0 {
		errs = append(errs, "resolve_timeout must be positive")
	}
	if c.Logging.Dir != "" {
		if c.Logging.MaxMB <= 0 {
			errs = append(errs, "logging.max_mb must be > 0")
		}
		if c.Logging.MaxFiles <= 0 {
			errs = append(errs, "logging.max_files must be > 0")
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
