package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secret: required to validate tokens issued by the external auth service
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
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

	// Upstream endpoints
	if _, err := url.ParseRequestURI(c.Generator.BaseURL); err != nil {
		errs = append(errs, "GENERATOR_BASE_URL must be a valid URL")
	}
	if _, err := url.ParseRequestURI(c.Source.BaseURL); err != nil {
		errs = append(errs, "SOURCE_BASE_URL must be a valid URL")
	}
	if c.Generator.Timeout <= 0 {
		errs = append(errs, "GENERATOR_TIMEOUT must be positive")
	}

	// Batch policy
	if c.Batch.InterJobDelay < time.Second {
		errs = append(errs, "BATCH_INTER_JOB_DELAY must be at least 1s")
	}
	if c.Batch.MaxFiles < 1 {
		errs = append(errs, "BATCH_MAX_FILES must be at least 1")
	}

	// Tier ceilings: -1 is the unlimited sentinel, anything else must be positive
	for _, tier := range []struct {
		name string
		cfg  TierConfig
	}{
		{"anonymous", c.Tiers.Anonymous},
		{"free", c.Tiers.Free},
		{"pro", c.Tiers.Pro},
		{"enterprise", c.Tiers.Enterprise},
	} {
		if tier.cfg.Daily < -1 || tier.cfg.Daily == 0 {
			errs = append(errs, fmt.Sprintf("tier %s: daily limit must be positive or -1, got %d", tier.name, tier.cfg.Daily))
		}
		if tier.cfg.Monthly < -1 || tier.cfg.Monthly == 0 {
			errs = append(errs, fmt.Sprintf("tier %s: monthly limit must be positive or -1, got %d", tier.name, tier.cfg.Monthly))
		}
	}

	if !c.NATS.Enabled {
		slog.Warn("NATS is disabled — lifecycle events will not be published")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
