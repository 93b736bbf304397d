// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Scheduler Contributors

// Package config loads service configuration from a yaml file and
// command-line flags. Explicitly set flags take precedence over file
// values; file values take precedence over flag defaults.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/dajbelshaw/Scheduler/internal/auth"
)

// Config holds all service configuration. Keys use dashes so they line
// up with the flag names the commands register.
type Config struct {
	DatabaseURL    string `koanf:"database-url"`
	ListenAddr     string `koanf:"listen-addr"`
	MetricsAddr    string `koanf:"metrics-addr"`
	LogFormat      string `koanf:"log-format"`
	MigrateOnStart bool   `koanf:"migrate-on-start"`

	Auth AuthConfig `koanf:"auth"`
}

// AuthConfig holds tunables for the auth core.
type AuthConfig struct {
	SessionTTL           time.Duration `koanf:"session-ttl"`
	FeedTimeout          time.Duration `koanf:"feed-timeout"`
	AllocatorMaxAttempts int           `koanf:"allocator-max-attempts"`
}

// Default returns a Config populated with default values. Commands must
// register their flags with defaults matching these so an unset flag
// never shadows a file value.
func Default() Config {
	return Config{
		ListenAddr:  ":8080",
		MetricsAddr: ":9100",
		LogFormat:   "json",
		Auth: AuthConfig{
			SessionTTL:           auth.SessionTTL,
			FeedTimeout:          auth.DefaultFeedTimeout,
			AllocatorMaxAttempts: auth.DefaultAllocatorMaxAttempts,
		},
	}
}

// Load reads configuration from an optional yaml file, then overlays the
// caller's flag set. path may be empty (flags and defaults only). flags
// may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		// Flags already loaded from the file are only overridden when
		// explicitly set on the command line.
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database-url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log-format must be json or text")
	}
	if c.Auth.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.session-ttl must be positive")
	}
	if c.Auth.FeedTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.feed-timeout must be positive")
	}
	if c.Auth.AllocatorMaxAttempts < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.allocator-max-attempts must be at least 1")
	}
	return nil
}
