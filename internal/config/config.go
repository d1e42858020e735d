// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultBackendTimeout   = 10 * time.Second
	defaultShutdownTimeout  = 30 * time.Second
	defaultPollerCron       = "*/10 * * * * *"
	defaultPollerConcurrent = 4
	defaultJournalRetention = 30 * 24 * time.Hour
	defaultJournalPruneCron = "0 3 * * *"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Token   string        `yaml:"-"` // Loaded from environment
}

type PollerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Cron        string `yaml:"cron"`
	Concurrency int    `yaml:"concurrency"`
}

type JournalConfig struct {
	Retention time.Duration `yaml:"retention"`
	PruneCron string        `yaml:"prune_cron"`
}

type RateLimitConfig struct {
	Window         time.Duration `yaml:"window"`
	MaxPerOperator int           `yaml:"max_per_operator"`
	MaxPerIP       int           `yaml:"max_per_ip"`
	// TrustProxy reads the client IP from X-Forwarded-For.
	TrustProxy bool `yaml:"trust_proxy"`
}

type AuthConfig struct {
	// Required turns operator authentication on for write endpoints.
	Required  bool   `yaml:"required"`
	SecretKey string `yaml:"-"` // Loaded from environment
}

type Config struct {
	App struct {
		Name            string        `yaml:"name"`
		Environment     string        `yaml:"environment"`
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// AllowedOrigins lists the venue screen origins allowed to call the
		// API and open websockets. Empty means same-origin only.
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Backend   BackendConfig   `yaml:"backend"`
	Poller    PollerConfig    `yaml:"poller"`
	Journal   JournalConfig   `yaml:"journal"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`

	Tenants map[string]Tenant `yaml:"tenants"`

	// TenantSlug is the active tenant, picked with the TENANT variable.
	TenantSlug string `yaml:"-"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Load sensitive values from environment
	cfg.Backend.Token = os.Getenv("BACKEND_API_TOKEN")
	cfg.Auth.SecretKey = os.Getenv("CLERK_SECRET_KEY")
	if tenant := strings.TrimSpace(os.Getenv("TENANT")); tenant != "" {
		cfg.TenantSlug = slug.Make(tenant)
	}
	if override := strings.TrimSpace(os.Getenv("BACKEND_BASE_URL")); override != "" {
		cfg.Backend.BaseURL = override
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and fills in defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.App.ShutdownTimeout <= 0 {
		c.App.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultBackendTimeout
	}
	if strings.TrimSpace(c.Poller.Cron) == "" {
		c.Poller.Cron = defaultPollerCron
	}
	if c.Poller.Concurrency <= 0 {
		c.Poller.Concurrency = defaultPollerConcurrent
	}
	if c.Journal.Retention <= 0 {
		c.Journal.Retention = defaultJournalRetention
	}
	if strings.TrimSpace(c.Journal.PruneCron) == "" {
		c.Journal.PruneCron = defaultJournalPruneCron
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("app port must be between 1 and 65535, got %d", c.App.Port)
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	for key := range c.Tenants {
		if !slug.IsSlug(key) {
			return fmt.Errorf("tenant key %q must be a lowercase slug such as %q", key, slug.Make(key))
		}
	}
	if _, err := c.ActiveTenant(); err != nil {
		return err
	}

	baseURL := c.BackendBaseURL()
	if baseURL == "" {
		return fmt.Errorf("backend base URL is required")
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend base URL %q is not an absolute URL", baseURL)
	}

	if c.RateLimit.MaxPerOperator < 0 || c.RateLimit.MaxPerIP < 0 {
		return fmt.Errorf("rate limit budgets must not be negative")
	}

	if c.Auth.Required && c.Auth.SecretKey == "" {
		return fmt.Errorf("CLERK_SECRET_KEY is required when auth is required")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
