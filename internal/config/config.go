package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names a YAML file to load when no path is passed explicitly.
const ConfigPathEnvVar = "POLICY_CONFIG"

const (
	ModeStrict   = "strict"
	ModeFallback = "fallback"
)

type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Retry   RetryConfig   `koanf:"retry"`
	Service ServiceConfig `koanf:"service"`
	Cache   CacheConfig   `koanf:"cache"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

type BackendConfig struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
	// MaxID is the largest id the backend can store. Anything above it lives
	// in the local overlay only.
	MaxID int `koanf:"max_id"`
}

type RetryConfig struct {
	MaxRetries   int           `koanf:"max_retries"`
	InitialDelay time.Duration `koanf:"initial_delay"`
}

type ServiceConfig struct {
	// Mode is strict (surface failures) or fallback (substitute demo data).
	Mode     string `koanf:"mode"`
	PageSize int    `koanf:"page_size"`
}

type CacheConfig struct {
	PoliciesStaleTime time.Duration `koanf:"policies_stale_time"`
	ClientsStaleTime  time.Duration `koanf:"clients_stale_time"`
	ProfileStaleTime  time.Duration `koanf:"profile_stale_time"`
}

type ServerConfig struct {
	Port string `koanf:"port"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "https://jsonplaceholder.typicode.com",
			Timeout: 5 * time.Second,
			MaxID:   100,
		},
		Retry: RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Second,
		},
		Service: ServiceConfig{
			Mode:     ModeStrict,
			PageSize: 10,
		},
		Cache: CacheConfig{
			PoliciesStaleTime: 5 * time.Minute,
			ClientsStaleTime:  0,
			ProfileStaleTime:  10 * time.Minute,
		},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

// Load layers defaults, an optional YAML file and environment variables, in
// that order of precedence (env wins). An empty path falls back to
// $POLICY_CONFIG; no file at all is fine.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var envMappings = map[string]string{
	"policy_backend_url":          "backend.base_url",
	"policy_backend_timeout":      "backend.timeout",
	"policy_backend_max_id":       "backend.max_id",
	"policy_retry_max":            "retry.max_retries",
	"policy_retry_initial_delay":  "retry.initial_delay",
	"policy_mode":                 "service.mode",
	"policy_page_size":            "service.page_size",
	"policy_cache_policies_stale": "cache.policies_stale_time",
	"policy_cache_clients_stale":  "cache.clients_stale_time",
	"policy_cache_profile_stale":  "cache.profile_stale_time",
	"port":                        "server.port",
	"log_level":                   "log.level",
	"log_format":                  "log.format",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unknown variables map to "" and are skipped.
//
//   - POLICY_BACKEND_URL -> backend.base_url
//   - PORT -> server.port
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be positive")
	}
	if c.Backend.MaxID < 0 {
		return fmt.Errorf("backend.max_id must be non-negative")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("retry.initial_delay must be non-negative")
	}
	if c.Service.Mode != ModeStrict && c.Service.Mode != ModeFallback {
		return fmt.Errorf("service.mode must be %q or %q, got %q", ModeStrict, ModeFallback, c.Service.Mode)
	}
	if c.Service.PageSize < 0 {
		return fmt.Errorf("service.page_size must be non-negative")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	return nil
}
