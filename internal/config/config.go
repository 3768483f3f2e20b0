// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

type AppConfig struct {
	ListenAddr string

	// AuthBaseURL points at the external identity service used to verify
	// connection tokens. When AuthRequired is false, unauthenticated
	// connections are admitted as guests.
	AuthBaseURL  string
	AuthRequired bool

	RedisURL    string
	DatabaseURL string

	AllowedOrigins []string

	BonusMultiplier float64
	SessionIDLength int
	MaxSessions     int

	ActivityLogFile string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:      ":8080",
		BonusMultiplier: 1.0,
		SessionIDLength: 6,
		MaxSessions:     500,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	cfg.AuthBaseURL = strings.TrimSpace(os.Getenv("AUTH_BASE_URL"))
	if v := strings.TrimSpace(os.Getenv("AUTH_REQUIRED")); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.AuthRequired = b
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ActivityLogFile = strings.TrimSpace(os.Getenv("ACTIVITY_LOG_FILE"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("BONUS_MULTIPLIER")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.BonusMultiplier = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_ID_LENGTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 4 && n <= 32 {
			cfg.SessionIDLength = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSessions = n
		}
	}

	if cfg.AuthRequired && cfg.AuthBaseURL == "" {
		return nil, errors.New("AUTH_BASE_URL is required when AUTH_REQUIRED=true")
	}

	return cfg, nil
}
