// Package config provides daemon configuration and session settings resolution.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the host daemon configuration.
type Config struct {
	Port           string
	GRPCPort       string
	AllowedOrigin  string
	DBPath         string
	SettingsPath   string
	WatchSettings  bool
	Journal        JournalConfig
	ShutdownWindow time.Duration
}

// JournalConfig controls how notifications are queued and retained.
type JournalConfig struct {
	QueueSize       int
	RecentSize      int
	Retention       time.Duration
	CleanupInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("COLLABD_NOTIFY_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}
	recentSize := getEnvInt("COLLABD_RECENT_EVENTS", 100)
	if recentSize <= 0 {
		recentSize = 100
	}

	cfg := &Config{
		Port:          getEnv("COLLABD_PORT", "8090"),
		GRPCPort:      getEnv("COLLABD_GRPC_PORT", "8091"),
		AllowedOrigin: getEnv("COLLABD_ALLOWED_ORIGIN", "*"),
		DBPath:        getEnv("COLLABD_DB_PATH", "./data/collabd.db"),
		SettingsPath:  getEnv("COLLABD_SETTINGS", "./collab.yaml"),
		WatchSettings: getEnvBool("COLLABD_WATCH_SETTINGS", true),
		Journal: JournalConfig{
			QueueSize:       queueSize,
			RecentSize:      recentSize,
			Retention:       getEnvDuration("COLLABD_JOURNAL_RETENTION", 7*24*time.Hour),
			CleanupInterval: getEnvDuration("COLLABD_JOURNAL_CLEANUP_INTERVAL", time.Hour),
		},
		ShutdownWindow: 10 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("COLLABD_PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("COLLABD_DB_PATH cannot be empty")
	}
	if c.SettingsPath == "" {
		return fmt.Errorf("COLLABD_SETTINGS cannot be empty")
	}
	if c.Journal.QueueSize <= 0 {
		return fmt.Errorf("COLLABD_NOTIFY_QUEUE_SIZE must be > 0")
	}
	if c.Journal.Retention <= 0 {
		return fmt.Errorf("COLLABD_JOURNAL_RETENTION must be > 0")
	}
	if c.Journal.CleanupInterval <= 0 {
		return fmt.Errorf("COLLABD_JOURNAL_CLEANUP_INTERVAL must be > 0")
	}
	return nil
}

// GRPCEnabled reports whether the gRPC health endpoint should be served.
func (c *Config) GRPCEnabled() bool {
	return c.GRPCPort != "" && c.GRPCPort != "0"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return parseBool(value, fallback)
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
