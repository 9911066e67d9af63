// Copyright (c) 2026 Confira. All rights reserved.
// Author: dev@confira.app

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// # Configuration Schema

// Config holds all runtime configuration for the Confira API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// JWTSecret is the shared HMAC signing secret for access tokens.
	JWTSecret string `env:"JWT_SECRET,required"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	RememberMeTTL   time.Duration `env:"REMEMBER_ME_TTL"   envDefault:"720h"`

	// Presence & connection tracking
	PresenceCacheTTL      time.Duration `env:"PRESENCE_CACHE_TTL"      envDefault:"5m"`
	ConnectionStaleAfter  time.Duration `env:"CONNECTION_STALE_AFTER"  envDefault:"30m"`
	ActivityWriteInterval time.Duration `env:"ACTIVITY_WRITE_INTERVAL" envDefault:"60s"`

	// RevocationFailClosed flips the blacklist read-failure policy from
	// fail-open (default, logged) to fail-closed (deny on store errors).
	// Security sign-off is required before changing this in production.
	RevocationFailClosed bool `env:"REVOCATION_FAIL_CLOSED" envDefault:"false"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
//
// A local .env file is applied first when present; real environment variables
// always take precedence over file values.
func Load() (*Config, error) {

	// Best-effort: a missing .env file is the normal case in production.
	_ = godotenv.Load()

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
