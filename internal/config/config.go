// Package config loads the portal configuration: built-in defaults, then an
// optional YAML file named by EVP_CONFIG, then EVP_-prefixed environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable the portal reads.
const EnvPrefix = "EVP_"

// FileEnv names the environment variable holding the config file path.
const FileEnv = EnvPrefix + "CONFIG"

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `koanf:"server_port"`
	ServerReadTimeout  time.Duration `koanf:"server_read_timeout"`
	ServerWriteTimeout time.Duration `koanf:"server_write_timeout"`
	CORSOrigins        []string      `koanf:"cors_origins"`
	// Timezone names the IANA zone date filters are read in. Empty means the
	// host's local zone.
	Timezone string `koanf:"timezone"`

	// REST backend
	BackendURL     string        `koanf:"backend_url"`
	BackendTimeout time.Duration `koanf:"backend_timeout"`

	// Push channel. An empty NATS URL selects the in-process hub.
	NATSURL      string `koanf:"nats_url"`
	NATSCAFile   string `koanf:"nats_ca_file"`
	NATSCertFile string `koanf:"nats_cert_file"`
	NATSKeyFile  string `koanf:"nats_key_file"`
	NATSToken    string `koanf:"nats_token"`

	// JWT settings
	JWTSecret string `koanf:"jwt_secret"`

	// Reply suggestions. Disabled when no key is set for DefaultLLM.
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	DefaultLLM      string `koanf:"default_llm"`
	LLMModel        string `koanf:"llm_model"`

	// List screens
	PageSize              int  `koanf:"page_size"`
	ResetPageOnSizeChange bool `koanf:"reset_page_on_size_change"`

	// Chat
	TypingThrottle time.Duration `koanf:"typing_throttle"`
	TypingIdle     time.Duration `koanf:"typing_idle"`
	TypingBackstop time.Duration `koanf:"typing_backstop"`

	// Workspaces
	WorkspaceIdleTTL   time.Duration `koanf:"workspace_idle_ttl"`
	ProfileConcurrency int           `koanf:"profile_concurrency"`
	IdentityPath       string        `koanf:"identity_path"`

	// Rate limiting
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// Logging
	LogLevel       string `koanf:"log_level"`
	LogDevelopment bool   `koanf:"log_development"`

	// Tracing
	TracingEndpoint string `koanf:"tracing_endpoint"`
	TracingEnabled  bool   `koanf:"tracing_enabled"`
}

func defaults() map[string]any {
	return map[string]any{
		"server_port":          "8080",
		"server_read_timeout":  "30s",
		"server_write_timeout": "120s",
		"cors_origins":         []string{"http://localhost:5173"},
		"timezone":             "",

		"backend_url":     "http://localhost:5000",
		"backend_timeout": "15s",

		"nats_url": "",

		"jwt_secret": "development-secret-change-in-production",

		"default_llm": "anthropic",

		"page_size":                 10,
		"reset_page_on_size_change": true,

		"typing_throttle": "500ms",
		"typing_idle":     "1s",
		"typing_backstop": "3s",

		"workspace_idle_ttl":  "30m",
		"profile_concurrency": 3,
		"identity_path":       "identity.db",

		"rate_limit_requests": 60,
		"rate_limit_window":   "1m",

		"log_level": "info",

		"tracing_endpoint": "localhost:4318",
		"tracing_enabled":  false,
	}
}

// Load reads the configuration, taking the file path from EVP_CONFIG.
func Load() (*Config, error) {
	return LoadFile(os.Getenv(FileEnv))
}

// LoadFile reads the configuration with path as the YAML layer. An empty
// path skips the file.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// EVP_SERVER_PORT -> server_port; lists are comma separated.
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if key == "config" {
			return "", nil
		}
		if key == "cors_origins" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the portal cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerPort == "" {
		errs = append(errs, errors.New("server_port is required"))
	}
	if c.BackendURL == "" {
		errs = append(errs, errors.New("backend_url is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("page_size must be positive, got %d", c.PageSize))
	}
	switch c.DefaultLLM {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("default_llm must be anthropic or openai, got %q", c.DefaultLLM))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, errors.New("rate_limit_requests must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LLMKey returns the API key for the configured provider, empty when
// suggestions are disabled.
func (c *Config) LLMKey() string {
	if c.DefaultLLM == "openai" {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
