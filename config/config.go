// ABOUTME: Service configuration loaded from .env files and environment variables
// ABOUTME: Provides defaults for data paths via XDG and validates required secrets
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config holds everything the service needs at startup. Values come from the
// environment, optionally seeded from a .env file in the working directory.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":8080".
	ListenAddr string

	// DatabasePath is the SQLite database file location.
	DatabasePath string

	// QueuePath is the Badger directory backing the sync job queue.
	QueuePath string

	// BaseURL is the externally reachable URL of this service, used to build
	// OAuth redirect and webhook callback URLs.
	BaseURL string

	// GoogleClientID / GoogleClientSecret identify the OAuth app.
	GoogleClientID     string
	GoogleClientSecret string

	// VaultSecret keys token encryption at rest. Required.
	VaultSecret string

	// CronSecret authorizes the cron HTTP endpoints. Required when serving.
	CronSecret string

	// StaleAfter is the staleness threshold for scheduled syncs.
	StaleAfter time.Duration

	// LogJSON switches slog output to JSON.
	LogJSON bool
}

// Load reads configuration from the environment. A .env file, if present, is
// loaded first but never overrides variables already set in the process.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:         envOr("HEARTH_LISTEN", ":8080"),
		DatabasePath:       envOr("HEARTH_DB_PATH", filepath.Join(xdg.DataHome, "hearth", "hearth.db")),
		QueuePath:          envOr("HEARTH_QUEUE_PATH", filepath.Join(xdg.DataHome, "hearth", "queue")),
		BaseURL:            envOr("HEARTH_BASE_URL", "http://localhost:8080"),
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		VaultSecret:        os.Getenv("HEARTH_VAULT_SECRET"),
		CronSecret:         os.Getenv("HEARTH_CRON_SECRET"),
		StaleAfter:         5 * time.Minute,
		LogJSON:            boolEnv("HEARTH_LOG_JSON"),
	}

	if v := os.Getenv("HEARTH_STALE_AFTER"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HEARTH_STALE_AFTER: %w", err)
		}
		cfg.StaleAfter = d
	}

	return cfg, nil
}

// Validate checks the settings that serving cannot proceed without.
func (c *Config) Validate() error {
	if c.VaultSecret == "" {
		return fmt.Errorf("HEARTH_VAULT_SECRET is not set")
	}
	if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
		return fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables")
	}
	if c.CronSecret == "" {
		return fmt.Errorf("HEARTH_CRON_SECRET is not set")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func boolEnv(key string) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
