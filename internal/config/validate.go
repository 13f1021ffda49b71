package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// Gemini
	if c.Gemini.APIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}

	// Counter store
	switch c.Store.Backend {
	case StoreRedis:
	case StorePostgres:
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be %q or %q, got %q", StoreRedis, StorePostgres, c.Store.Backend))
	}

	// Postgres is needed for the postgres backend and for persisting quota events
	if (c.Store.Backend == StorePostgres || c.NATS.URL != "") && c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required when STORE_BACKEND=postgres or NATS_URL is set")
	}

	// Quota limits
	for name, l := range map[string]KindLimits{
		"CHAT":     c.Quota.Chat,
		"ROLEPLAY": c.Quota.Roleplay,
		"JOURNAL":  c.Quota.Journal,
	} {
		if l.PerMinute < 0 || l.PerDay < 0 {
			errs = append(errs, fmt.Sprintf("QUOTA_%s limits must be non-negative, got %d/min %d/day", name, l.PerMinute, l.PerDay))
		}
	}
	if c.Quota.MaxAttempts < 1 || c.Quota.MaxAttempts > 20 {
		errs = append(errs, fmt.Sprintf("QUOTA_MAX_ATTEMPTS must be 1–20, got %d", c.Quota.MaxAttempts))
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// NATS: warn only
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, quota denial events will not be recorded")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
