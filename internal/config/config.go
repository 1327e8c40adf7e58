package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
	CacheRedis     = "redis"
	CacheNone      = "none"
)

// CircuitBreakerConfig configures the breaker placed around each upstream API.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort        string
	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherAPIRateRPS float64
	SunAPIURL         string
	SunAPITimeout     time.Duration
	SunAPIRateRPS     float64
	RequestTimeout    time.Duration
	QueryMaxLength    int
	DefaultUnit       string
	SessionTTL        time.Duration
	SessionSweep      time.Duration
	CacheBackend      string
	CacheTTL          time.Duration
	WarmQueries       []string
	WarmInterval      time.Duration
	MemcachedAddrs    string
	MemcachedTimeout  time.Duration
	MemcachedMaxIdle  int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisDialTimeout  time.Duration
	RedisPoolSize     int
	RateLimitRPS      int
	RateLimitBurst    int
	CircuitBreaker    CircuitBreakerConfig
	ShutdownTimeout   time.Duration
	InFlightTimeout   time.Duration
	InFlightInterval  time.Duration
	OverloadWindow    time.Duration
	OverloadThreshold int
	DegradedWindow    time.Duration
	DegradedErrorPct  int
	TrackedQueries    []string
	TestingMode       bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL          string  `yaml:"url"`
		Timeout      string  `yaml:"timeout"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
	} `yaml:"weather_api"`

	SunAPI struct {
		URL          string  `yaml:"url"`
		Timeout      string  `yaml:"timeout"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
	} `yaml:"sun_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Query struct {
		MaxLength int `yaml:"max_length"`
	} `yaml:"query"`

	Units struct {
		Default string `yaml:"default"`
	} `yaml:"units"`

	Session struct {
		TTL           string `yaml:"ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`

	Cache struct {
		Backend      string   `yaml:"backend"`
		TTL          string   `yaml:"ttl"`
		WarmQueries  []string `yaml:"warm_queries"`
		WarmInterval string   `yaml:"warm_interval"`
		Memcached    struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr        string `yaml:"addr"`
			DB          int    `yaml:"db"`
			DialTimeout string `yaml:"dial_timeout"`
			PoolSize    int    `yaml:"pool_size"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`

	Metrics struct {
		TrackedQueries []string `yaml:"tracked_queries"`
	} `yaml:"metrics"`

	Testing struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"testing"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the environment without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml under the working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(filepath.Join(cwd, "config"))
}

// LoadFrom reads configuration from dir/{ENV_NAME}.yaml and dir/secrets.yaml.
// The API key comes from WEATHER_API_KEY or the secrets file.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := readSecrets(filepath.Join(dir, "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env, .env or config/secrets.yaml weather_api_key)")
	}
	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, "https://api.weatherapi.com/v1")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)
	cfg.WeatherAPIRateRPS = fc.WeatherAPI.RateLimitRPS
	cfg.SunAPIURL = firstNonEmpty(os.Getenv("SUN_API_URL"), fc.SunAPI.URL, "https://api.sunrise-sunset.org")
	cfg.SunAPITimeout = parseDurationOrZero(fc.SunAPI.Timeout, 2*time.Second)
	cfg.SunAPIRateRPS = fc.SunAPI.RateLimitRPS

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.QueryMaxLength = fc.Query.MaxLength
	if cfg.QueryMaxLength <= 0 {
		cfg.QueryMaxLength = 100
	}
	cfg.DefaultUnit = strings.ToLower(firstNonEmpty(strings.TrimSpace(fc.Units.Default), "metric"))

	cfg.SessionTTL = parseDuration(fc.Session.TTL, 30*time.Minute)
	cfg.SessionSweep = parseDuration(fc.Session.SweepInterval, time.Minute)

	cfg.CacheBackend = strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("CACHE_BACKEND")),
		strings.TrimSpace(fc.Cache.Backend),
		CacheInMemory,
	))
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Minute)
	cfg.WarmQueries = fc.Cache.WarmQueries
	cfg.WarmInterval = parseDurationOrZero(fc.Cache.WarmInterval, 0)
	cfg.MemcachedAddrs = firstNonEmpty(
		strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS")),
		strings.TrimSpace(fc.Cache.Memcached.Addrs),
		"localhost:11211",
	)
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdle = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdle <= 0 {
		cfg.MemcachedMaxIdle = 2
	}
	cfg.RedisAddr = firstNonEmpty(
		strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		strings.TrimSpace(fc.Cache.Redis.Addr),
		"localhost:6379",
	)
	cfg.RedisPassword = firstNonEmpty(os.Getenv("REDIS_PASSWORD"), sec.RedisPassword)
	cfg.RedisDB = fc.Cache.Redis.DB
	cfg.RedisDialTimeout = parseDuration(fc.Cache.Redis.DialTimeout, 500*time.Millisecond)
	cfg.RedisPoolSize = fc.Cache.Redis.PoolSize

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}
	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreaker = CircuitBreakerConfig{
		Enabled:          cb.Enabled,
		FailureThreshold: cb.FailureThreshold,
		SuccessThreshold: cb.SuccessThreshold,
		Timeout:          parseDuration(cb.Timeout, 30*time.Second),
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		cfg.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.CircuitBreaker.SuccessThreshold <= 0 {
		cfg.CircuitBreaker.SuccessThreshold = 2
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThreshold = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThreshold <= 0 {
		cfg.OverloadThreshold = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.TrackedQueries = fc.Metrics.TrackedQueries
	cfg.TestingMode = fc.Testing.Enabled

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero and negative durations are returned as-is.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// Warnings returns settings that load but are unlikely to do what was meant.
func (c *Config) Warnings() []string {
	var out []string
	if len(c.WarmQueries) > 0 && c.CacheBackend == CacheNone {
		out = append(out, "cache.warm_queries is set but cache.backend is none; warming has no effect")
	}
	if c.WarmInterval > 0 && c.CacheBackend != CacheNone && c.WarmInterval > c.CacheTTL {
		out = append(out, fmt.Sprintf("cache.warm_interval %s exceeds cache.ttl %s; warmed entries expire between refreshes", c.WarmInterval, c.CacheTTL))
	}
	return out
}

// validate checks loaded values. RequestTimeout is raised to cover one call to
// each upstream API in sequence.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.SunAPITimeout <= 0 {
		return fmt.Errorf("sun_api.timeout must be positive")
	}
	if minimum := cfg.WeatherAPITimeout + cfg.SunAPITimeout; cfg.RequestTimeout <= minimum {
		cfg.RequestTimeout = minimum + time.Second
	}
	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached, redis or none, got %q", cfg.CacheBackend)
	}
	switch cfg.DefaultUnit {
	case "metric", "imperial", "us":
	default:
		return fmt.Errorf("units.default must be metric or imperial, got %q", cfg.DefaultUnit)
	}
	if cfg.WeatherAPIRateRPS < 0 || cfg.SunAPIRateRPS < 0 {
		return fmt.Errorf("rate_limit_rps must not be negative")
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("lifecycle.degraded_error_pct must be at most 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
