// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package config loads process configuration from a YAML file, command
// line flags, and environment variables. The resulting Config is built
// once at startup and treated as immutable.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Defaults for optional settings.
const (
	DefaultListenAddr    = ":8080"
	DefaultMetricsAddr   = "127.0.0.1:9100"
	DefaultLogFormat     = "json"
	DefaultSessionTTL    = time.Hour
	DefaultResetTokenTTL = time.Hour
)

// SMTP holds the mail relay settings.
type SMTP struct {
	Addr     string `koanf:"addr"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Config holds all process configuration.
type Config struct {
	ListenAddr    string        `koanf:"listen_addr"`
	MetricsAddr   string        `koanf:"metrics_addr"`
	LogFormat     string        `koanf:"log_format"`
	DatabaseURL   string        `koanf:"database_url"`
	BaseURL       string        `koanf:"base_url"`
	SessionSecret string        `koanf:"session_secret"`
	SessionTTL    time.Duration `koanf:"session_ttl"`
	ResetTokenTTL time.Duration `koanf:"reset_token_ttl"`
	SMTP          SMTP          `koanf:"smtp"`
}

// Load reads configuration in increasing precedence: YAML file, command
// line flags, environment variables for the secrets. path may be empty;
// flags may be nil.
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
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	// Secrets may arrive through the environment; they take precedence
	// over the file so they never need to be written to disk.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("KEYFOLD_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("KEYFOLD_SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	if c.ResetTokenTTL <= 0 {
		c.ResetTokenTTL = DefaultResetTokenTTL
	}
}

// Validate checks that required settings are present. A missing signing
// secret or database URL is a fatal startup condition.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_NO_DATABASE_URL").Errorf("database_url is required")
	}
	if c.SessionSecret == "" {
		return oops.Code("CONFIG_NO_SECRET").Errorf("session_secret is required")
	}
	if c.BaseURL == "" {
		return oops.Code("CONFIG_NO_BASE_URL").Errorf("base_url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_BAD_LOG_FORMAT").
			With("log_format", c.LogFormat).
			Errorf("log_format must be 'json' or 'text'")
	}
	return nil
}
