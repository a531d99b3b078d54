// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"hostgate/internal/proxy"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/hostgate/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Listen    string `kong:"short='l',help='Listen address host:port (overrides config).',env='LISTEN_ADDR'"`
	Target    string `kong:"short='t',help='Upstream target address host:port (overrides config).',env='TARGET_ADDR'"`
	Workers   int    `kong:"help='Worker thread count (overrides config).',env='WORKERS'"`
	ChunkSize int    `kong:"help='Body streaming chunk size in bytes (overrides config).',env='CHUNK_SIZE'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Proxy   ProxyConfig   `toml:"proxy"`
	Ops     OpsConfig     `toml:"ops"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ProxyConfig holds the forwarding settings.
type ProxyConfig struct {
	Listen                string          `toml:"listen"`
	Target                string          `toml:"target"`
	Workers               int             `toml:"workers"` // 0 means "use default" (4); TOML cannot distinguish 0 from unset
	ChunkSize             int             `toml:"chunk_size"`
	BodyMaxBytes          int64           `toml:"body_max_bytes"`
	ConnectTimeoutSeconds int             `toml:"connect_timeout_seconds"`
	ReadTimeoutSeconds    int             `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds   int             `toml:"write_timeout_seconds"`
	GatewayDelayMillis    int             `toml:"gateway_delay_ms"`
	RateLimit             RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls accept-loop rate limiting.
type RateLimitConfig struct {
	Enabled          bool    `toml:"enabled"`
	AcceptsPerSecond float64 `toml:"accepts_per_second"`
}

// OpsConfig holds the operational HTTP server settings.
type OpsConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/hostgate/config.toml then configs/config.toml; running without any
// config file is fine and yields pure defaults plus flags. An explicit path
// that cannot be read is an error.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Listen != "" {
		c.Proxy.Listen = cli.Listen
	}
	if cli.Target != "" {
		c.Proxy.Target = cli.Target
	}
	if cli.Workers != 0 {
		c.Proxy.Workers = cli.Workers
	}
	if cli.ChunkSize != 0 {
		c.Proxy.ChunkSize = cli.ChunkSize
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Addresses must be host:port when set.
	if c.Proxy.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Proxy.Listen); err != nil {
			return fmt.Errorf("proxy.listen must be host:port; got %q: %w", c.Proxy.Listen, err)
		}
	}
	if c.Proxy.Target != "" {
		if _, _, err := net.SplitHostPort(c.Proxy.Target); err != nil {
			return fmt.Errorf("proxy.target must be host:port; got %q: %w", c.Proxy.Target, err)
		}
	}

	// Numeric bounds.
	if c.Proxy.Workers < 0 {
		return fmt.Errorf("proxy.workers must be non-negative; got %d", c.Proxy.Workers)
	}
	if c.Proxy.ChunkSize < 0 {
		return fmt.Errorf("proxy.chunk_size must be non-negative; got %d", c.Proxy.ChunkSize)
	}
	if c.Proxy.BodyMaxBytes < 0 {
		return fmt.Errorf("proxy.body_max_bytes must be non-negative; got %d", c.Proxy.BodyMaxBytes)
	}
	if c.Proxy.ConnectTimeoutSeconds < 0 || c.Proxy.ReadTimeoutSeconds < 0 || c.Proxy.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("proxy timeouts must be non-negative")
	}
	if c.Proxy.GatewayDelayMillis < 0 {
		return fmt.Errorf("proxy.gateway_delay_ms must be non-negative; got %d", c.Proxy.GatewayDelayMillis)
	}
	if c.Proxy.RateLimit.Enabled && c.Proxy.RateLimit.AcceptsPerSecond <= 0 {
		return fmt.Errorf("proxy.rate_limit.accepts_per_second must be > 0 when rate limiting is enabled; got %v", c.Proxy.RateLimit.AcceptsPerSecond)
	}
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be 0–65535; got %d", c.Ops.Port)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/healthz", "/proxy/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Proxy.Listen == "" {
		c.Proxy.Listen = proxy.DefaultListenAddr
	}
	if c.Proxy.Target == "" {
		c.Proxy.Target = proxy.DefaultTargetAddr
	}
	if c.Proxy.Workers == 0 {
		c.Proxy.Workers = proxy.DefaultWorkers
	}
	if c.Proxy.ChunkSize == 0 {
		c.Proxy.ChunkSize = proxy.DefaultChunkSize
	}
	if c.Proxy.BodyMaxBytes == 0 {
		c.Proxy.BodyMaxBytes = int64(proxy.DefaultBodyMaxBytes)
	}
	if c.Proxy.ConnectTimeoutSeconds == 0 {
		c.Proxy.ConnectTimeoutSeconds = int(proxy.DefaultConnectTimeout / time.Second)
	}
	if c.Proxy.ReadTimeoutSeconds == 0 {
		c.Proxy.ReadTimeoutSeconds = int(proxy.DefaultReadTimeout / time.Second)
	}
	if c.Proxy.WriteTimeoutSeconds == 0 {
		c.Proxy.WriteTimeoutSeconds = int(proxy.DefaultWriteTimeout / time.Second)
	}
	if c.Proxy.GatewayDelayMillis == 0 {
		c.Proxy.GatewayDelayMillis = int(proxy.DefaultGatewayDelay / time.Millisecond)
	}
	if c.Ops.Host == "" {
		c.Ops.Host = "127.0.0.1"
	}
	if c.Ops.Port == 0 {
		c.Ops.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ProxyValue maps the file/CLI settings onto the immutable proxy.Config
// value that gets copied into every connection job.
func (c *Config) ProxyValue() proxy.Config {
	pc := proxy.Config{
		ListenAddr:     c.Proxy.Listen,
		TargetAddr:     c.Proxy.Target,
		Workers:        c.Proxy.Workers,
		ChunkSize:      c.Proxy.ChunkSize,
		BodyMaxBytes:   uint64(c.Proxy.BodyMaxBytes),
		ConnectTimeout: time.Duration(c.Proxy.ConnectTimeoutSeconds) * time.Second,
		ReadTimeout:    time.Duration(c.Proxy.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:   time.Duration(c.Proxy.WriteTimeoutSeconds) * time.Second,
		GatewayDelay:   time.Duration(c.Proxy.GatewayDelayMillis) * time.Millisecond,
	}
	if c.Proxy.RateLimit.Enabled {
		pc.AcceptPerSecond = c.Proxy.RateLimit.AcceptsPerSecond
	}
	return pc
}

// Addr returns the ops server listen address as host:port.
func (c *OpsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
