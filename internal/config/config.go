// Package config manages bgpwatch configuration using koanf/v2.
//
// Supports an optional YAML file, environment variables, and CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete bgpwatch configuration.
type Config struct {
	// Target selects the router implementation. Empty means GoBGP.
	Target    string          `koanf:"target"    yaml:"target"`
	GoBGP     GoBGPConfig     `koanf:"gobgp"     yaml:"gobgp"`
	FRR       FRRConfig       `koanf:"frr"       yaml:"frr"`
	BIRD      BIRDConfig      `koanf:"bird"      yaml:"bird"`
	OpenBGPD  OpenBGPDConfig  `koanf:"openbgpd"  yaml:"openbgpd"`
	Preflight PreflightConfig `koanf:"preflight" yaml:"preflight"`
	Metrics   MetricsConfig   `koanf:"metrics"   yaml:"metrics"`
	Log       LogConfig       `koanf:"log"       yaml:"log"`
}

// GoBGPConfig holds the GoBGP management API settings.
type GoBGPConfig struct {
	// Addr is the gRPC address of the local GoBGP daemon.
	Addr string `koanf:"addr" yaml:"addr"`
	// PeerPort is the management port dialed on each peer by rib-summary.
	PeerPort int `koanf:"peer_port" yaml:"peer_port"`
}

// FRRConfig holds the FRRouting tool path.
type FRRConfig struct {
	Vtysh string `koanf:"vtysh" yaml:"vtysh"`
}

// BIRDConfig holds the BIRD tool path.
type BIRDConfig struct {
	Birdc string `koanf:"birdc" yaml:"birdc"`
}

// OpenBGPDConfig holds the OpenBGPD tool path.
type OpenBGPDConfig struct {
	Bgpctl string `koanf:"bgpctl" yaml:"bgpctl"`
}

// PreflightConfig controls the firewall step that precedes polling.
type PreflightConfig struct {
	// Enabled runs the iptables rule removal before polling.
	Enabled bool `koanf:"enabled" yaml:"enabled"`
	// Sudo is "auto", "always", or "never".
	Sudo string `koanf:"sudo" yaml:"sudo"`
	// Iptables is the iptables binary.
	Iptables string `koanf:"iptables" yaml:"iptables"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address (e.g., ":9100"). Empty disables it.
	Addr string `koanf:"addr" yaml:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path" yaml:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level" yaml:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format" yaml:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with defaults. Logs default to
// text because bgpwatch is usually run from a terminal next to a benchmark.
func DefaultConfig() *Config {
	return &Config{
		GoBGP: GoBGPConfig{
			Addr:     "127.0.0.1:50051",
			PeerPort: 50051,
		},
		FRR:      FRRConfig{Vtysh: "vtysh"},
		BIRD:     BIRDConfig{Birdc: "birdc"},
		OpenBGPD: OpenBGPDConfig{Bgpctl: "bgpctl"},
		Preflight: PreflightConfig{
			Enabled:  true,
			Sudo:     "auto",
			Iptables: "iptables",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for bgpwatch configuration.
// Variables are named BGPWATCH_<section>_<key>, e.g., BGPWATCH_GOBGP_ADDR.
const envPrefix = "BGPWATCH_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (BGPWATCH_ prefix), and merges on top of
// DefaultConfig(). An empty path skips the file layer.
//
// Environment variable mapping:
//
//	BGPWATCH_TARGET            -> target
//	BGPWATCH_GOBGP_ADDR        -> gobgp.addr
//	BGPWATCH_GOBGP_PEER_PORT   -> gobgp.peer_port
//	BGPWATCH_PREFLIGHT_ENABLED -> preflight.enabled
//	BGPWATCH_METRICS_ADDR      -> metrics.addr
//	BGPWATCH_LOG_LEVEL         -> log.level
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms BGPWATCH_GOBGP_PEER_PORT -> gobgp.peer_port.
// Only the first underscore separates section from key, so keys keep
// their own underscores.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"target":             defaults.Target,
		"gobgp.addr":         defaults.GoBGP.Addr,
		"gobgp.peer_port":    defaults.GoBGP.PeerPort,
		"frr.vtysh":          defaults.FRR.Vtysh,
		"bird.birdc":         defaults.BIRD.Birdc,
		"openbgpd.bgpctl":    defaults.OpenBGPD.Bgpctl,
		"preflight.enabled":  defaults.Preflight.Enabled,
		"preflight.sudo":     defaults.Preflight.Sudo,
		"preflight.iptables": defaults.Preflight.Iptables,
		"metrics.addr":       defaults.Metrics.Addr,
		"metrics.path":       defaults.Metrics.Path,
		"log.level":          defaults.Log.Level,
		"log.format":         defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyGoBGPAddr indicates the GoBGP API address is empty.
	ErrEmptyGoBGPAddr = errors.New("gobgp.addr must not be empty")

	// ErrInvalidPeerPort indicates gobgp.peer_port is outside 1..65535.
	ErrInvalidPeerPort = errors.New("gobgp.peer_port must be in 1..65535")

	// ErrInvalidSudoMode indicates an unrecognized preflight.sudo value.
	ErrInvalidSudoMode = errors.New("preflight.sudo must be auto, always, or never")

	// ErrInvalidMetricsAddr indicates metrics.addr is not host:port.
	ErrInvalidMetricsAddr = errors.New("metrics.addr must be host:port")

	// ErrInvalidMetricsPath indicates metrics.path does not start with '/'.
	ErrInvalidMetricsPath = errors.New("metrics.path must start with /")

	// ErrInvalidLogFormat indicates an unrecognized log.format value.
	ErrInvalidLogFormat = errors.New("log.format must be json or text")

	// ErrEmptyToolPath indicates a router CLI path is empty.
	ErrEmptyToolPath = errors.New("tool path must not be empty")
)

// ValidSudoModes lists the recognized preflight.sudo strings.
var ValidSudoModes = map[string]bool{
	"auto":   true,
	"always": true,
	"never":  true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered. The target is checked
// by the caller, since an unknown target is a usage hint rather than an
// error.
func Validate(cfg *Config) error {
	if cfg.GoBGP.Addr == "" {
		return ErrEmptyGoBGPAddr
	}

	if cfg.GoBGP.PeerPort < 1 || cfg.GoBGP.PeerPort > 65535 {
		return fmt.Errorf("gobgp.peer_port %d: %w", cfg.GoBGP.PeerPort, ErrInvalidPeerPort)
	}

	tools := []struct{ key, val string }{
		{"frr.vtysh", cfg.FRR.Vtysh},
		{"bird.birdc", cfg.BIRD.Birdc},
		{"openbgpd.bgpctl", cfg.OpenBGPD.Bgpctl},
		{"preflight.iptables", cfg.Preflight.Iptables},
	}
	for _, tool := range tools {
		if tool.val == "" {
			return fmt.Errorf("%s: %w", tool.key, ErrEmptyToolPath)
		}
	}

	if !ValidSudoModes[cfg.Preflight.Sudo] {
		return fmt.Errorf("preflight.sudo %q: %w", cfg.Preflight.Sudo, ErrInvalidSudoMode)
	}

	if cfg.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics.addr %q: %w: %w", cfg.Metrics.Addr, ErrInvalidMetricsAddr, err)
		}
		if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			return fmt.Errorf("metrics.path %q: %w", cfg.Metrics.Path, ErrInvalidMetricsPath)
		}
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: %w", cfg.Log.Format, ErrInvalidLogFormat)
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
