package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"blocksync/internal/support"
)

const (
	DefaultEndpoint       = "https://en.wikipedia.org/w/api.php"
	DefaultUserAgent      = "blocksync/1.0 (block list mirror)"
	DefaultRequestTimeout = 30 * time.Second
	DefaultLockKey        = "blocksync:lock:sync"
	DefaultLogLevel       = "info"
)

// ErrMissingDatabase is returned when no store location was configured.
var ErrMissingDatabase = errors.New("config: store location is required (--db or BLOCKSYNC_DB)")

type Config struct {
	// Database is a SQLite path/DSN or a postgres:// URL.
	Database string

	Endpoint          string
	UserAgent         string
	RequestTimeout    time.Duration
	RequestsPerSecond float64

	// Interval re-runs the sync on a schedule; zero runs once and exits.
	Interval      time.Duration
	MetricsListen string

	RedisURL string
	LockKey  string
	LockTTL  time.Duration

	LogLevel string
}

// Load builds the configuration from environment variables, overridden by
// command-line flags in args (without the program name).
func Load(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("blocksync", flag.ContinueOnError)
	fs.StringVar(&cfg.Database, "db", support.GetEnv("BLOCKSYNC_DB", ""), "SQLite database path or postgres:// DSN")
	fs.StringVar(&cfg.Endpoint, "endpoint", support.GetEnv("BLOCKSYNC_ENDPOINT", DefaultEndpoint), "MediaWiki API endpoint")
	fs.StringVar(&cfg.UserAgent, "user-agent", support.GetEnv("BLOCKSYNC_USER_AGENT", DefaultUserAgent), "User-Agent sent with feed requests")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", support.GetEnvDuration("BLOCKSYNC_REQUEST_TIMEOUT", DefaultRequestTimeout), "Timeout for a single page request")
	fs.Float64Var(&cfg.RequestsPerSecond, "rps", support.GetEnvFloat("BLOCKSYNC_RPS", 0), "Maximum page requests per second (0 = unlimited)")
	fs.DurationVar(&cfg.Interval, "interval", support.GetEnvDuration("BLOCKSYNC_INTERVAL", 0), "Re-run the sync at this interval (0 = run once)")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", support.GetEnv("METRICS_LISTEN", ""), "Address serving Prometheus /metrics")
	fs.StringVar(&cfg.RedisURL, "redis-url", support.GetEnv("REDIS_URL", ""), "Redis URL for the cross-process run lock")
	fs.StringVar(&cfg.LockKey, "lock-key", support.GetEnv("BLOCKSYNC_LOCK_KEY", DefaultLockKey), "Redis key of the run lock")
	fs.DurationVar(&cfg.LockTTL, "lock-ttl", support.GetEnvDuration("BLOCKSYNC_LOCK_TTL", support.DefaultLockTTL), "TTL of the run lock")
	fs.StringVar(&cfg.LogLevel, "log-level", support.GetEnv("LOG_LEVEL", DefaultLogLevel), "Log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Database = strings.TrimSpace(cfg.Database)
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database == "" {
		return ErrMissingDatabase
	}

	endpoint, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("config: invalid endpoint %q: %w", c.Endpoint, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" || endpoint.Host == "" {
		return fmt.Errorf("config: endpoint %q must be an absolute http(s) URL", c.Endpoint)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("config: rps must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.Interval < 0 {
		return fmt.Errorf("config: interval must not be negative, got %s", c.Interval)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Level returns the parsed log level; Validate guarantees it parses.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}
