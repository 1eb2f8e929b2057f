// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Realtime transport names accepted in realtime.transport.
const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// Page policy names accepted in sync.page_policy.
const (
	PagePolicyFirstPage = "first_page"
	PagePolicyTruncate  = "truncate"
)

// Config is the master configuration for helpdesk clients and the mock
// server.
type Config struct {
	Environment Environment    `yaml:"environment"`
	API         APIConfig      `yaml:"api"`
	Realtime    RealtimeConfig `yaml:"realtime"`
	Sync        SyncConfig     `yaml:"sync"`
	Log         LogConfig      `yaml:"log"`

	// Per-environment overrides, applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	API      *APIConfig      `yaml:"api,omitempty"`
	Realtime *RealtimeConfig `yaml:"realtime,omitempty"`
	Sync     *SyncConfig     `yaml:"sync,omitempty"`
	Log      *LogConfig      `yaml:"log,omitempty"`
}

// APIConfig configures the HTTP API client.
type APIConfig struct {
	// BaseURL is prefixed to every resource path, e.g.
	// http://localhost:8080/api.
	BaseURL string `yaml:"base_url"`

	// Token is sent as a bearer token. Usually ${HELPDESK_TOKEN}.
	Token string `yaml:"token"`

	// Timeout bounds each request. Default: 15s
	Timeout string `yaml:"timeout"`
}

// RealtimeConfig configures the push channel.
type RealtimeConfig struct {
	// Transport is "websocket" or "redis".
	Transport    string `yaml:"transport"`
	WebSocketURL string `yaml:"websocket_url"`
	RedisURL     string `yaml:"redis_url"`

	// Reconnect backoff doubles from InitialBackoff up to MaxBackoff.
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// SyncConfig configures the live cache.
type SyncConfig struct {
	// EchoWindow is how long a self-origin marker waits for its echo.
	// Default: 10s
	EchoWindow string `yaml:"echo_window"`

	// PerPage is the list page size requested by watchers.
	PerPage int `yaml:"per_page"`

	// DefaultSort is the sort under which newly created items surface
	// on page one. Empty means the server's default order.
	DefaultSort string `yaml:"default_sort"`

	// PagePolicy is "first_page" or "truncate".
	PagePolicy string `yaml:"page_policy"`
}

// LogConfig configures the binaries' slog handler.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`

	// Format is "text" or "json". Binaries writing to a terminal may
	// still pick text when this is empty.
	Format string `yaml:"format"`
}

// Default returns the base configuration the file is merged into. The
// config file is still required; these values only fill fields it
// leaves out.
func Default() *Config {
	return &Config{
		Environment: Development,
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: "15s",
		},
		Realtime: RealtimeConfig{
			Transport:      TransportWebSocket,
			WebSocketURL:   "ws://localhost:8080/realtime",
			RedisURL:       "redis://localhost:6379/0",
			InitialBackoff: "1s",
			MaxBackoff:     "30s",
		},
		Sync: SyncConfig{
			EchoWindow: "10s",
			PerPage:    25,
			PagePolicy: PagePolicyFirstPage,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the HELPDESK_CONFIG environment
// variable. If it is not set, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("HELPDESK_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("HELPDESK_CONFIG environment variable not set; " +
			"set it to the path of your helpdesk.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, applies the
// matching environment section, and expands ${VAR} references.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.API != nil {
		overrideString(&c.API.BaseURL, overrides.API.BaseURL)
		overrideString(&c.API.Token, overrides.API.Token)
		overrideString(&c.API.Timeout, overrides.API.Timeout)
	}
	if overrides.Realtime != nil {
		overrideString(&c.Realtime.Transport, overrides.Realtime.Transport)
		overrideString(&c.Realtime.WebSocketURL, overrides.Realtime.WebSocketURL)
		overrideString(&c.Realtime.RedisURL, overrides.Realtime.RedisURL)
		overrideString(&c.Realtime.InitialBackoff, overrides.Realtime.InitialBackoff)
		overrideString(&c.Realtime.MaxBackoff, overrides.Realtime.MaxBackoff)
	}
	if overrides.Sync != nil {
		overrideString(&c.Sync.EchoWindow, overrides.Sync.EchoWindow)
		overrideString(&c.Sync.DefaultSort, overrides.Sync.DefaultSort)
		overrideString(&c.Sync.PagePolicy, overrides.Sync.PagePolicy)
		if overrides.Sync.PerPage != 0 {
			c.Sync.PerPage = overrides.Sync.PerPage
		}
	}
	if overrides.Log != nil {
		overrideString(&c.Log.Level, overrides.Log.Level)
		overrideString(&c.Log.Format, overrides.Log.Format)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) expandVariables() {
	c.API.BaseURL = expandVars(c.API.BaseURL)
	c.API.Token = expandVars(c.API.Token)
	c.Realtime.WebSocketURL = expandVars(c.Realtime.WebSocketURL)
	c.Realtime.RedisURL = expandVars(c.Realtime.RedisURL)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.Environment == Production && c.API.Token == "" {
		errs = append(errs, errors.New("api.token is required in production"))
	}

	switch c.Realtime.Transport {
	case TransportWebSocket:
		if c.Realtime.WebSocketURL == "" {
			errs = append(errs, errors.New("realtime.websocket_url is required for the websocket transport"))
		}
		if c.Environment == Production && strings.HasPrefix(c.Realtime.WebSocketURL, "ws://") {
			errs = append(errs, errors.New("realtime.websocket_url must use wss:// in production"))
		}
	case TransportRedis:
		if c.Realtime.RedisURL == "" {
			errs = append(errs, errors.New("realtime.redis_url is required for the redis transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("realtime.transport must be %q or %q, got %q",
			TransportWebSocket, TransportRedis, c.Realtime.Transport))
	}

	durations := []struct {
		name  string
		value string
	}{
		{"api.timeout", c.API.Timeout},
		{"realtime.initial_backoff", c.Realtime.InitialBackoff},
		{"realtime.max_backoff", c.Realtime.MaxBackoff},
		{"sync.echo_window", c.Sync.EchoWindow},
	}
	for _, field := range durations {
		parsed, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
			continue
		}
		if parsed <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", field.name, field.value))
		}
	}

	if c.Sync.PerPage <= 0 {
		errs = append(errs, fmt.Errorf("sync.per_page must be positive, got %d", c.Sync.PerPage))
	}
	switch c.Sync.PagePolicy {
	case PagePolicyFirstPage, PagePolicyTruncate:
	default:
		errs = append(errs, fmt.Errorf("sync.page_policy must be %q or %q, got %q",
			PagePolicyFirstPage, PagePolicyTruncate, c.Sync.PagePolicy))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// APITimeout returns api.timeout parsed.
func (c *Config) APITimeout() time.Duration {
	return mustDuration(c.API.Timeout)
}

// EchoWindow returns sync.echo_window parsed.
func (c *Config) EchoWindow() time.Duration {
	return mustDuration(c.Sync.EchoWindow)
}

// Backoff returns the realtime reconnect bounds.
func (c *Config) Backoff() (initial, maximum time.Duration) {
	return mustDuration(c.Realtime.InitialBackoff), mustDuration(c.Realtime.MaxBackoff)
}

// LogLevel returns log.level as a slog level. Unknown values map to
// Info; Validate reports them.
func (c *Config) LogLevel() slog.Level {
	level, _ := parseLevel(c.Log.Level)
	return level
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if value == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// mustDuration parses a duration Validate has already accepted.
func mustDuration(value string) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return parsed
}
