// Package config loads the execution core's YAML configuration, with
// environment-variable overrides for the values spec.md §6 recognizes,
// following the teacher's internal/config YAML+validate shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls a service's HTTP surface.
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DatabaseConfig addresses the Postgres-backed repository layer.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig is optional and only backs the mutex manager; when URL is
// empty, the mutex guard uses the LockRepository-backed manager.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// IdempotencyConfig controls the dedup window.
type IdempotencyConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
}

// QueueConfig controls lease, heartbeat, and reaper cadence.
type QueueConfig struct {
	LeaseSeconds           int `yaml:"lease_seconds"`
	HeartbeatIntervalSeconds int `yaml:"heartbeat_interval_seconds"`
	ReaperIntervalSeconds   int `yaml:"reaper_interval_seconds"`
}

// WorkerPoolConfig bounds the dynamic worker pool.
type WorkerPoolConfig struct {
	WorkersMin int `yaml:"workers_min"`
	WorkersMax int `yaml:"workers_max"`
}

// CatalogConfig controls the tool catalog's bounded cache.
type CatalogConfig struct {
	CacheSize       int `yaml:"cache_size"`
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

// AssetConfig controls the asset-context resolver's bounded cache and
// the inventory service it fronts.
type AssetConfig struct {
	CacheSize       int    `yaml:"cache_size"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	InventoryURL    string `yaml:"inventory_url"`
}

// AutomationConfig addresses the remote automation worker the
// execution engine dispatches approved steps to.
type AutomationConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SelectorConfig holds Stage B's settings. LLMTimeoutMS bounds the
// tie-breaker call. AmbiguityEpsilon is loaded but not passed to the
// selector, which compares scores against its fixed TieBreakEpsilon.
type SelectorConfig struct {
	AmbiguityEpsilon float64 `yaml:"ambiguity_epsilon"`
	LLMTimeoutMS     int     `yaml:"llm_timeout_ms"`
	AnthropicAPIKey  string  `yaml:"anthropic_api_key"`
}

// SecretsConfig holds the secrets broker's required keys. Both fields
// are secrets themselves and are read from the environment, never from
// the YAML file on disk.
type SecretsConfig struct {
	KMSKey      string `yaml:"-"`
	InternalKey string `yaml:"-"`
}

// Config is the full process configuration plus the ambient
// server/database/redis fields. It has no fields for the per-SLA step and
// total timeouts; those come from the fixed table in
// pkg/execution/timeoutpolicy.go.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Queue       QueueConfig       `yaml:"queue"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Asset       AssetConfig       `yaml:"asset"`
	Automation  AutomationConfig  `yaml:"automation"`
	Selector    SelectorConfig    `yaml:"selector"`
	Secrets     SecretsConfig     `yaml:"-"`
}

// Load reads path as YAML, applies defaults for anything left unset,
// overlays environment variables for recognized options, and validates
// the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}
	if cfg.Server.HTTPPort == "" {
		cfg.Server.HTTPPort = ":8080"
	}
	if cfg.Idempotency.DedupWindow == 0 {
		cfg.Idempotency.DedupWindow = 24 * time.Hour
	}
	if cfg.Queue.LeaseSeconds == 0 {
		cfg.Queue.LeaseSeconds = 30
	}
	if cfg.Queue.HeartbeatIntervalSeconds == 0 {
		cfg.Queue.HeartbeatIntervalSeconds = 10
	}
	if cfg.Queue.ReaperIntervalSeconds == 0 {
		cfg.Queue.ReaperIntervalSeconds = 15
	}
	if cfg.WorkerPool.WorkersMin == 0 {
		cfg.WorkerPool.WorkersMin = 2
	}
	if cfg.WorkerPool.WorkersMax == 0 {
		cfg.WorkerPool.WorkersMax = 16
	}
	if cfg.Catalog.CacheSize == 0 {
		cfg.Catalog.CacheSize = 1000
	}
	if cfg.Catalog.CacheTTLSeconds == 0 {
		cfg.Catalog.CacheTTLSeconds = 300
	}
	if cfg.Asset.CacheSize == 0 {
		cfg.Asset.CacheSize = 128
	}
	if cfg.Asset.CacheTTLSeconds == 0 {
		cfg.Asset.CacheTTLSeconds = 120
	}
	if cfg.Selector.AmbiguityEpsilon == 0 {
		cfg.Selector.AmbiguityEpsilon = 0.08
	}
	if cfg.Selector.LLMTimeoutMS == 0 {
		cfg.Selector.LLMTimeoutMS = 800
	}
}

// envOverrides maps each spec-recognized environment variable onto a
// setter closure, so Load never has to special-case which field an env
// var targets.
func envOverrides(cfg *Config) map[string]func(string) error {
	return map[string]func(string) error{
		"DEDUP_WINDOW_HOURS": durationHoursSetter(&cfg.Idempotency.DedupWindow),
		"QUEUE_LEASE_SECONDS":         intSetter(&cfg.Queue.LeaseSeconds),
		"HEARTBEAT_INTERVAL_SECONDS":  intSetter(&cfg.Queue.HeartbeatIntervalSeconds),
		"REAPER_INTERVAL_SECONDS":     intSetter(&cfg.Queue.ReaperIntervalSeconds),
		"WORKERS_MIN":                 intSetter(&cfg.WorkerPool.WorkersMin),
		"WORKERS_MAX":                 intSetter(&cfg.WorkerPool.WorkersMax),
		"CATALOG_CACHE_SIZE":          intSetter(&cfg.Catalog.CacheSize),
		"CATALOG_CACHE_TTL_SECONDS":   intSetter(&cfg.Catalog.CacheTTLSeconds),
		"ASSET_CACHE_SIZE":            intSetter(&cfg.Asset.CacheSize),
		"ASSET_CACHE_TTL_SECONDS":     intSetter(&cfg.Asset.CacheTTLSeconds),
		"SELECTOR_AMBIGUITY_EPSILON":  floatSetter(&cfg.Selector.AmbiguityEpsilon),
		"SELECTOR_LLM_TIMEOUT_MS":     intSetter(&cfg.Selector.LLMTimeoutMS),
		"DATABASE_URL":                stringSetter(&cfg.Database.URL),
		"REDIS_URL":                   stringSetter(&cfg.Redis.URL),
		"ANTHROPIC_API_KEY":           stringSetter(&cfg.Selector.AnthropicAPIKey),
		"SECRETS_KMS_KEY":             stringSetter(&cfg.Secrets.KMSKey),
		"INTERNAL_KEY":                stringSetter(&cfg.Secrets.InternalKey),
		"HTTP_PORT":                   stringSetter(&cfg.Server.HTTPPort),
		"ASSET_INVENTORY_URL":         stringSetter(&cfg.Asset.InventoryURL),
		"AUTOMATION_BASE_URL":         stringSetter(&cfg.Automation.BaseURL),
	}
}

func applyEnvOverrides(cfg *Config) error {
	for name, set := range envOverrides(cfg) {
		if v, ok := os.LookupEnv(name); ok {
			if err := set(v); err != nil {
				return fmt.Errorf("config: malformed %s: %w", name, err)
			}
		}
	}
	return nil
}

func stringSetter(dst *string) func(string) error {
	return func(v string) error { *dst = v; return nil }
}

func intSetter(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatSetter(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func durationHoursSetter(dst *time.Duration) func(string) error {
	return func(v string) error {
		hours, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = time.Duration(hours) * time.Hour
		return nil
	}
}

// validate checks the invariants Load must enforce before a service
// starts: required secrets present, worker bounds sane.
func validate(cfg *Config) error {
	if cfg.Secrets.KMSKey == "" {
		return fmt.Errorf("config: SECRETS_KMS_KEY is required")
	}
	if cfg.Secrets.InternalKey == "" {
		return fmt.Errorf("config: INTERNAL_KEY is required")
	}
	if cfg.WorkerPool.WorkersMin <= 0 || cfg.WorkerPool.WorkersMax < cfg.WorkerPool.WorkersMin {
		return fmt.Errorf("config: worker_pool.workers_min/workers_max must satisfy 0 < min <= max")
	}
	switch cfg.Server.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: unsupported log format %q", cfg.Server.LogFormat)
	}
	return nil
}
