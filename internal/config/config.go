package config

import (
	"errors"
	"fmt"
	"time"
)

// Backends.
const (
	BackendLocal  = "local"
	BackendMatrix = "matrix"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// Backend selects the room provider: "local" (sqlite) or "matrix".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Realm is the server part of user IDs, e.g. "example.org".
	Realm string `mapstructure:"realm" yaml:"realm"`

	DatabasePath  string `mapstructure:"database_path" yaml:"database_path"`
	HomeserverURL string `mapstructure:"homeserver_url" yaml:"homeserver_url"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	// RateLimitPerMinute caps mutating requests per account. 0 disables.
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	// SettleDelay is advertised to clients after mutating calls.
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		Backend:            BackendLocal,
		Realm:              "localhost",
		DatabasePath:       "directchat.db",
		JWTSecret:          "change-me-in-production",
		JWTIssuer:          "directchat",
		JWTAudience:        "directchat",
		JWTTTL:             24 * time.Hour,
		RateLimitPerMinute: 60,
		SettleDelay:        500 * time.Millisecond,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.Backend != "" {
		c.Backend = other.Backend
	}
	if other.Realm != "" {
		c.Realm = other.Realm
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.HomeserverURL != "" {
		c.HomeserverURL = other.HomeserverURL
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.JWTIssuer != "" {
		c.JWTIssuer = other.JWTIssuer
	}
	if other.JWTAudience != "" {
		c.JWTAudience = other.JWTAudience
	}
	if other.JWTTTL != 0 {
		c.JWTTTL = other.JWTTTL
	}
	if other.RateLimitPerMinute != 0 {
		c.RateLimitPerMinute = other.RateLimitPerMinute
	}
	if other.SettleDelay != 0 {
		c.SettleDelay = other.SettleDelay
	}
}

// Validate reports configuration that cannot be served.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendLocal:
		if c.JWTSecret == "" {
			errs = append(errs, errors.New("jwt_secret is required for the local backend"))
		}
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("database_path is required for the local backend"))
		}
	case BackendMatrix:
		if c.HomeserverURL == "" {
			errs = append(errs, errors.New("homeserver_url is required for the matrix backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if c.Realm == "" {
		errs = append(errs, errors.New("realm is required"))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, errors.New("rate_limit_per_minute must not be negative"))
	}
	return errors.Join(errs...)
}
