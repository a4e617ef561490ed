package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	AppEnv      string `yaml:"app_env"`
	BaseURL     string `yaml:"base_url"`
	JWTSecret   string `yaml:"jwt_secret"`
	TrustProxy  bool   `yaml:"trust_proxy"`

	// Rate limiting
	RedisURL             string        `yaml:"redis_url"`
	RateLimitBackend     string        `yaml:"rate_limit_backend"`      // "redis" or "memory"
	RateLimitFailureMode string        `yaml:"rate_limit_failure_mode"` // "open" or "closed"
	RateLimitPrefix      string        `yaml:"rate_limit_prefix"`
	RateLimitTimeout     time.Duration `yaml:"rate_limit_timeout"`

	// Routing and delivery
	TimeZone       string        `yaml:"time_zone"`
	WebhookTimeout time.Duration `yaml:"webhook_timeout"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"
}

func defaults() *Config {
	return &Config{
		Port:                 "8080",
		DatabaseURL:          "file:db.sqlite",
		AppEnv:               "local",
		BaseURL:              "http://localhost:8080",
		JWTSecret:            "secret",
		RateLimitBackend:     "memory",
		RateLimitFailureMode: "open",
		RateLimitPrefix:      "limiter:",
		RateLimitTimeout:     500 * time.Millisecond,
		TimeZone:             "Local",
		WebhookTimeout:       5 * time.Second,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

// Load reads defaults, then the YAML file named by CONFIG_FILE (if any), then
// environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load() // Ignore error if .env not found (e.g. prod)

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Port = getEnv("PORT", c.Port)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.RateLimitBackend = getEnv("RATE_LIMIT_BACKEND", c.RateLimitBackend)
	c.RateLimitFailureMode = getEnv("RATE_LIMIT_FAILURE_MODE", c.RateLimitFailureMode)
	c.RateLimitPrefix = getEnv("RATE_LIMIT_PREFIX", c.RateLimitPrefix)
	c.TimeZone = getEnv("TIME_ZONE", c.TimeZone)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	var err error
	if c.TrustProxy, err = getEnvBool("TRUST_PROXY", c.TrustProxy); err != nil {
		return err
	}
	if c.RateLimitTimeout, err = getEnvDuration("RATE_LIMIT_TIMEOUT", c.RateLimitTimeout); err != nil {
		return err
	}
	if c.WebhookTimeout, err = getEnvDuration("WEBHOOK_TIMEOUT", c.WebhookTimeout); err != nil {
		return err
	}
	return nil
}

// Validate rejects unknown enumerations so a typo never silently changes behaviour.
func (c *Config) Validate() error {
	switch c.RateLimitBackend {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("config: RATE_LIMIT_BACKEND=redis requires REDIS_URL")
		}
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_BACKEND %q", c.RateLimitBackend)
	}
	switch c.RateLimitFailureMode {
	case "open", "closed":
	default:
		return fmt.Errorf("config: unknown RATE_LIMIT_FAILURE_MODE %q", c.RateLimitFailureMode)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves TimeZone; "Local" and "" mean the process zone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: TIME_ZONE: %w", err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
