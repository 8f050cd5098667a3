package modular

import (
	"fmt"
	"time"
)

// Config is the full configuration of a registry process. Every section is
// filled from `default` tags first and then overridden by feeders.
type Config struct {
	Registry  RegistryConfig  `yaml:"registry" toml:"registry" json:"registry"`
	Resolver  ResolverConfig  `yaml:"resolver" toml:"resolver" json:"resolver"`
	Health    HealthConfig    `yaml:"health" toml:"health" json:"health"`
	Routing   RoutingConfig   `yaml:"routing" toml:"routing" json:"routing"`
	Validator ValidatorConfig `yaml:"validator" toml:"validator" json:"validator"`
	Store     StoreConfig     `yaml:"store" toml:"store" json:"store"`
	Discovery DiscoveryConfig `yaml:"discovery" toml:"discovery" json:"discovery"`
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" toml:"log" json:"log"`
}

// RegistryConfig bounds the registry's in-memory state and schedules its
// maintenance loops.
type RegistryConfig struct {
	MaxRegisteredModules    int           `yaml:"max_registered_modules" toml:"max_registered_modules" json:"max_registered_modules" env:"MAX_REGISTERED_MODULES" default:"100" desc:"Upper bound on registered modules before LRU eviction"`
	MaxPendingRegistrations int           `yaml:"max_pending_registrations" toml:"max_pending_registrations" json:"max_pending_registrations" env:"MAX_PENDING_REGISTRATIONS" default:"50" desc:"Upper bound on queued registration requests"`
	HistoryLimit            int           `yaml:"history_limit" toml:"history_limit" json:"history_limit" env:"HISTORY_LIMIT" default:"200" desc:"Registration results kept in history"`
	HealthInterval          time.Duration `yaml:"health_interval" toml:"health_interval" json:"health_interval" env:"HEALTH_INTERVAL" default:"5m" desc:"Health monitoring period"`
	CleanupInterval         time.Duration `yaml:"cleanup_interval" toml:"cleanup_interval" json:"cleanup_interval" env:"CLEANUP_INTERVAL" default:"1h" desc:"Stale pending request sweep period"`
	PendingMaxAge           time.Duration `yaml:"pending_max_age" toml:"pending_max_age" json:"pending_max_age" env:"PENDING_MAX_AGE" default:"24h" desc:"Pending requests older than this are purged"`
	MemoryInterval          time.Duration `yaml:"memory_interval" toml:"memory_interval" json:"memory_interval" env:"MEMORY_INTERVAL" default:"10m" desc:"Memory management period"`
	MetricsRotationInterval time.Duration `yaml:"metrics_rotation_interval" toml:"metrics_rotation_interval" json:"metrics_rotation_interval" env:"METRICS_ROTATION_INTERVAL" default:"5m" desc:"Route metrics rotation period"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"30s" desc:"Time allowed for background tasks to stop"`
	AutoActivate            bool          `yaml:"auto_activate" toml:"auto_activate" json:"auto_activate" env:"AUTO_ACTIVATE" default:"true" desc:"Load modules through the factory loader on registration"`
}

// ResolverConfig configures dependency resolution.
type ResolverConfig struct {
	CacheSize int `yaml:"cache_size" toml:"cache_size" json:"cache_size" env:"CACHE_SIZE" default:"256" desc:"Load order cache capacity"`
}

// HealthConfig configures module health probing.
type HealthConfig struct {
	ProbeTimeout time.Duration `yaml:"probe_timeout" toml:"probe_timeout" json:"probe_timeout" env:"PROBE_TIMEOUT" default:"5s" desc:"Timeout for a single health probe"`
	Concurrency  int           `yaml:"concurrency" toml:"concurrency" json:"concurrency" env:"CONCURRENCY" default:"8" desc:"Modules checked in parallel per sweep"`
}

// RoutingConfig configures the composed module router and its metrics.
type RoutingConfig struct {
	APIVersion   int           `yaml:"api_version" toml:"api_version" json:"api_version" env:"API_VERSION" default:"1" desc:"Version segment of /api/v{n}/modules"`
	MaxCallCount int64         `yaml:"max_call_count" toml:"max_call_count" json:"max_call_count" env:"MAX_CALL_COUNT" default:"10000" desc:"Route metrics reset after this many calls"`
	MaxAge       time.Duration `yaml:"max_age" toml:"max_age" json:"max_age" env:"MAX_AGE" default:"1h" desc:"Route metrics reset after this age"`
	MaxMetrics   int           `yaml:"max_metrics" toml:"max_metrics" json:"max_metrics" env:"MAX_METRICS" default:"1000" desc:"Route metric entries kept after rotation"`
}

// ValidatorConfig configures metadata validation.
type ValidatorConfig struct {
	SigningSecret    string `yaml:"signing_secret" toml:"signing_secret" json:"-" env:"SIGNING_SECRET" desc:"HMAC secret for module signatures; empty disables verification"`
	RequireSignature bool   `yaml:"require_signature" toml:"require_signature" json:"require_signature" env:"REQUIRE_SIGNATURE" default:"false" desc:"Reject unsigned modules"`
	SourceRoot       string `yaml:"source_root" toml:"source_root" json:"source_root" env:"SOURCE_ROOT" default:"." desc:"Directory module source files are resolved under"`
	ForbidReflect    bool   `yaml:"forbid_reflect" toml:"forbid_reflect" json:"forbid_reflect" env:"FORBID_REFLECT" default:"false" desc:"Treat reflect imports as unsafe"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver" json:"driver" env:"DRIVER" default:"memory" desc:"memory or sqlite"`
	DSN    string `yaml:"dsn" toml:"dsn" json:"dsn" env:"DSN" default:"file:modhub.db?_pragma=busy_timeout(5000)" desc:"SQLite data source name"`
}

// DiscoveryConfig configures the manifest directory watcher.
type DiscoveryConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled" json:"enabled" env:"ENABLED" default:"false" desc:"Watch a directory for module manifests"`
	Dir      string        `yaml:"dir" toml:"dir" json:"dir" env:"DIR" default:"./modules.d" desc:"Manifest directory"`
	Debounce time.Duration `yaml:"debounce" toml:"debounce" json:"debounce" env:"DEBOUNCE" default:"250ms" desc:"Quiet period before a changed manifest is applied"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Addr         string        `yaml:"addr" toml:"addr" json:"addr" env:"ADDR" default:":8080" required:"true" desc:"Listen address"`
	ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout" json:"read_timeout" env:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout" json:"write_timeout" env:"WRITE_TIMEOUT" default:"15s"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level" env:"LEVEL" default:"info" desc:"debug, info, warn or error"`
	Format string `yaml:"format" toml:"format" json:"format" env:"FORMAT" default:"text" desc:"text (slog) or json (zap)"`
}

// Validate implements ConfigValidator.
func (c *Config) Validate() error {
	r := c.Registry
	switch {
	case r.MaxRegisteredModules < 1:
		return fmt.Errorf("%w: registry.max_registered_modules must be positive", ErrConfigValidationFailed)
	case r.MaxPendingRegistrations < 1:
		return fmt.Errorf("%w: registry.max_pending_registrations must be positive", ErrConfigValidationFailed)
	case r.HealthInterval <= 0, r.CleanupInterval <= 0, r.MemoryInterval <= 0, r.MetricsRotationInterval <= 0:
		return fmt.Errorf("%w: registry loop intervals must be positive", ErrConfigValidationFailed)
	case c.Routing.APIVersion < 1:
		return fmt.Errorf("%w: routing.api_version must be at least 1", ErrConfigValidationFailed)
	case c.Routing.MaxCallCount < 1 || c.Routing.MaxMetrics < 1:
		return fmt.Errorf("%w: routing metric bounds must be positive", ErrConfigValidationFailed)
	case c.Health.Concurrency < 1:
		return fmt.Errorf("%w: health.concurrency must be positive", ErrConfigValidationFailed)
	}
	switch c.Store.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrConfigValidationFailed, c.Store.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrConfigValidationFailed, c.Log.Format)
	}
	if c.Validator.RequireSignature && c.Validator.SigningSecret == "" {
		return fmt.Errorf("%w: validator.require_signature needs validator.signing_secret", ErrConfigValidationFailed)
	}
	return nil
}

// DefaultConfig returns a Config with every `default` tag applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := ProcessConfigDefaults(cfg); err != nil {
		panic(fmt.Sprintf("modular: invalid default tags: %v", err))
	}
	return cfg
}
