// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Digital Wardrobe Contributors

// Package config loads and validates the authd configuration. Defaults
// are overlaid by an optional YAML file, then command-line flags, then
// environment variables for secrets.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/digitalwardrobe/authd/internal/auth"
)

// Hasher algorithm names.
const (
	HasherArgon2id = "argon2id"
	HasherBcrypt   = "bcrypt"
)

// Config is the process configuration, read-only after Load.
type Config struct {
	LogFormat   string `koanf:"log_format"`
	DatabaseURL string `koanf:"database_url"`
	MetricsAddr string `koanf:"metrics_addr"`
	Auth        Auth   `koanf:"auth"`
}

// Auth holds the auth-subsystem configuration.
type Auth struct {
	// JWTSecret signs both token classes. Required, at least 32 chars.
	// Prefer the AUTHD_JWT_SECRET environment variable over the file.
	JWTSecret       string        `koanf:"jwt_secret"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl"`
	SessionTTL      time.Duration `koanf:"session_ttl"`
	SweepInterval   time.Duration `koanf:"sweep_interval"`

	// Hasher selects the password hashing algorithm.
	Hasher     string `koanf:"hasher"`
	Argon2     Argon2 `koanf:"argon2"`
	BcryptCost int    `koanf:"bcrypt_cost"`
}

// Argon2 holds the argon2id cost parameters.
type Argon2 struct {
	MemoryKiB uint32 `koanf:"memory_kib"`
	Time      uint32 `koanf:"time"`
	Threads   uint8  `koanf:"threads"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		LogFormat:   "json",
		MetricsAddr: "127.0.0.1:9102",
		Auth: Auth{
			AccessTokenTTL:  auth.DefaultAccessTokenTTL,
			RefreshTokenTTL: auth.DefaultRefreshTokenTTL,
			SessionTTL:      auth.DefaultSessionExpiry,
			SweepInterval:   auth.DefaultSweepInterval,
			Hasher:          HasherArgon2id,
			Argon2: Argon2{
				MemoryKiB: auth.DefaultArgon2Memory,
				Time:      auth.DefaultArgon2Time,
				Threads:   auth.DefaultArgon2Threads,
			},
			BcryptCost: 12,
		},
	}
}

// Load builds the configuration. path and flags are both optional.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; koanf keys use underscores.
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	// Secrets come from the environment when present.
	if v := os.Getenv("AUTHD_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("AUTHD_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database URL is required (set AUTHD_DATABASE_URL)")
	}
	if len(c.Auth.JWTSecret) < auth.MinSigningSecretLen {
		return oops.Code("CONFIG_INVALID").
			With("min_length", auth.MinSigningSecretLen).
			Errorf("JWT secret must be at least %d characters (set AUTHD_JWT_SECRET)", auth.MinSigningSecretLen)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token and session TTLs must be positive")
	}
	switch c.Auth.Hasher {
	case HasherArgon2id:
		// Zero-value params fall back to hasher defaults.
	case HasherBcrypt:
		if c.Auth.BcryptCost < auth.MinBcryptCost || c.Auth.BcryptCost > auth.MaxBcryptCost {
			return oops.Code("CONFIG_INVALID").
				With("cost", c.Auth.BcryptCost).
				Errorf("bcrypt cost must be between %d and %d", auth.MinBcryptCost, auth.MaxBcryptCost)
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("hasher", c.Auth.Hasher).
			Errorf("unknown hasher %q", c.Auth.Hasher)
	}
	return nil
}

// NewHasher builds the configured password hasher.
func (c *Config) NewHasher() (auth.PasswordHasher, error) {
	switch c.Auth.Hasher {
	case HasherBcrypt:
		return auth.NewBcryptHasher(c.Auth.BcryptCost)
	default:
		return auth.NewArgon2idHasher(auth.Argon2Params{
			Memory:  c.Auth.Argon2.MemoryKiB,
			Time:    c.Auth.Argon2.Time,
			Threads: c.Auth.Argon2.Threads,
		}), nil
	}
}
