// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cliparse

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	DatabaseType     string
	RedisAddr        string
	DriverKeySalt    string
	CSRFTokenSalt    string
	TrackerBaseURL   string
	TrackerToken     string
	InactivityWindow time.Duration
}

// ParseFlags validates flags and fills the configuration from CLI
// arguments, the environment, and an optional .env file (lowest
// precedence).
func ParseFlags(args []string) (Config, error) {
	// Best-effort: a missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	var inactivityMinutes int

	fs := flag.NewFlagSet("roundsync", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.RedisAddr, "redis", "", "Redis address for cross-instance fan-out (optional)")
	fs.IntVar(&inactivityMinutes, "inactivity", 0, "Minutes of inactivity before a round auto-finishes")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.DriverKeySalt, "driver-salt", "", "Driver key salt (prefer env)")
	fs.StringVar(&cfg.CSRFTokenSalt, "csrf-salt", "", "CSRF token salt (prefer env)")

	// Tracker boundary
	fs.StringVar(&cfg.TrackerBaseURL, "tracker-url", "", "Issue tracker API base URL")
	fs.StringVar(&cfg.TrackerToken, "tracker-token", "", "Issue tracker API token (prefer env)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Fall back to environment variables
	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 3319 // default
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}
	if cfg.DatabaseType != "sqlite" && cfg.DatabaseType != "postgres" {
		return Config{}, errors.New("database type must be sqlite or postgres")
	}

	if cfg.RedisAddr == "" {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	}

	if inactivityMinutes == 0 {
		if s := os.Getenv("INACTIVITY_MINUTES"); s != "" {
			m, err := strconv.Atoi(s)
			if err != nil {
				return Config{}, errors.New("invalid INACTIVITY_MINUTES env variable")
			}
			inactivityMinutes = m
		} else {
			inactivityMinutes = 30
		}
	}
	if inactivityMinutes < 1 {
		return Config{}, errors.New("inactivity window must be at least 1 minute")
	}
	cfg.InactivityWindow = time.Duration(inactivityMinutes) * time.Minute

	// Secrets - MUST be provided
	if cfg.DriverKeySalt == "" {
		cfg.DriverKeySalt = os.Getenv("DRIVER_KEY_SALT")
	}
	if cfg.DriverKeySalt == "" {
		return Config{}, errors.New("DRIVER_KEY_SALT required")
	}

	if cfg.CSRFTokenSalt == "" {
		cfg.CSRFTokenSalt = os.Getenv("CSRF_TOKEN_SALT")
	}
	if cfg.CSRFTokenSalt == "" {
		return Config{}, errors.New("CSRF_TOKEN_SALT required")
	}

	// Tracker access is optional: without it, issue listing and write-back
	// endpoints report "tracker not configured".
	if cfg.TrackerBaseURL == "" {
		cfg.TrackerBaseURL = os.Getenv("TRACKER_BASE_URL")
	}
	if cfg.TrackerToken == "" {
		cfg.TrackerToken = os.Getenv("TRACKER_TOKEN")
	}

	return cfg, nil
}
