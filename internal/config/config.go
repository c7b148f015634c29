// Package config loads gateway configuration from a YAML file with
// GATEWAY_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Redis     RedisConfig     `koanf:"redis"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Logging   LoggingConfig   `koanf:"logging"`
	Routes    []RouteConfig   `koanf:"routes"`
}

type ServerConfig struct {
	Port        int      `koanf:"port"`
	Debug       bool     `koanf:"debug"`
	CORSOrigins []string `koanf:"cors_origins"`
	MaxBodySize int64    `koanf:"max_body_size"`
	Tracing     bool     `koanf:"tracing"`
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RateLimitConfig struct {
	// Policy selects a preset: strict, standard, relaxed, per-minute,
	// per-hour. Window/MaxRequests override the preset when set.
	Policy      string        `koanf:"policy"`
	Window      time.Duration `koanf:"window"`
	MaxRequests int64         `koanf:"max_requests"`
	// Scope selects the key composition: default, tenant, user.
	Scope string `koanf:"scope"`
}

type LoggingConfig struct {
	Capacity   int    `koanf:"capacity"`
	BodyCap    int    `koanf:"body_cap"`
	SQLitePath string `koanf:"sqlite_path"`
}

type RouteConfig struct {
	Prefix  string `koanf:"prefix"`
	Service string `koanf:"service"`
	Target  string `koanf:"target"`
}

// Load reads the config file (when it exists) and applies environment
// overrides. A double underscore separates sections, so key names that
// themselves contain underscores survive the mapping:
// GATEWAY_SERVER__PORT=8080 maps to server.port and
// GATEWAY_RATE_LIMIT__MAX_REQUESTS=50 maps to rate_limit.max_requests.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env config: %w", err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			MaxBodySize: 1 << 20,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Policy: "standard",
			Scope:  "default",
		},
		Logging: LoggingConfig{
			Capacity: 10000,
			BodyCap:  4096,
		},
	}
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.RateLimit.Policy {
	case "", "strict", "standard", "relaxed", "per-minute", "per-hour":
	default:
		return fmt.Errorf("rate_limit.policy %q unknown", c.RateLimit.Policy)
	}
	switch c.RateLimit.Scope {
	case "", "default", "tenant", "user":
	default:
		return fmt.Errorf("rate_limit.scope %q unknown", c.RateLimit.Scope)
	}
	for _, r := range c.Routes {
		if r.Prefix == "" || r.Target == "" {
			return fmt.Errorf("route %q: prefix and target are required", r.Service)
		}
	}
	return nil
}
