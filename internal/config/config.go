package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SendGrid SendGridConfig `yaml:"sendgrid"`
	SES      SESConfig      `yaml:"ses"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Auth     AuthConfig     `yaml:"auth"`
	Drainer  DrainerConfig  `yaml:"drainer"`
	Brand    BrandConfig    `yaml:"brand"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr returns the host:port listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection max lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// RedisConfig holds Redis settings used for the drainer leader lock
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// SendGridConfig holds SendGrid API configuration
type SendGridConfig struct {
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SendGridConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration, used as the fallback transport
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OpenAIConfig holds OpenAI API configuration for email personalization
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// Timeout returns the configured timeout as a duration
func (c OpenAIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StripeConfig holds Stripe API configuration
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	Enabled       bool   `yaml:"enabled"`
}

// AuthConfig holds magic-link admin authentication configuration.
// AdminEmails is the explicit allow-list; requests for any other address
// are rejected before a link is ever issued.
type AuthConfig struct {
	AdminEmails        []string `yaml:"admin_emails"`
	MagicLinkTTLMins   int      `yaml:"magic_link_ttl_mins"`
	SessionTTLHours    int      `yaml:"session_ttl_hours"`
	CookieName         string   `yaml:"cookie_name"`
	CookieSecure       bool     `yaml:"cookie_secure"`
	LoginRatePerMinute int      `yaml:"login_rate_per_minute"`
}

// MagicLinkTTL returns the magic link lifetime as a duration
func (c AuthConfig) MagicLinkTTL() time.Duration {
	return time.Duration(c.MagicLinkTTLMins) * time.Minute
}

// SessionTTL returns the session lifetime as a duration
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// IsAdmin reports whether email is on the allow-list (case-insensitive)
func (c AuthConfig) IsAdmin(email string) bool {
	for _, e := range c.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(e), strings.TrimSpace(email)) {
			return true
		}
	}
	return false
}

// DrainerConfig holds queue drainer configuration
type DrainerConfig struct {
	CronSpec          string `yaml:"cron_spec"`
	BatchSize         int    `yaml:"batch_size"`
	MaxAttempts       int    `yaml:"max_attempts"`
	BackoffBaseMins   int    `yaml:"backoff_base_mins"`
	StalenessMins     int    `yaml:"staleness_mins"`
	SweepIntervalMins int    `yaml:"sweep_interval_mins"`
	LockTTLSeconds    int    `yaml:"lock_ttl_seconds"`
}

// BackoffBase returns the retry backoff base as a duration
func (c DrainerConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMins) * time.Minute
}

// Staleness returns the stuck-entry threshold as a duration
func (c DrainerConfig) Staleness() time.Duration {
	return time.Duration(c.StalenessMins) * time.Minute
}

// SweepInterval returns the reconciliation sweep interval as a duration
func (c DrainerConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMins) * time.Minute
}

// LockTTL returns the leader lock TTL as a duration
func (c DrainerConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// BrandConfig holds sender identity and site settings
type BrandConfig struct {
	SiteName  string `yaml:"site_name"`
	BaseURL   string `yaml:"base_url"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	ReplyTo   string `yaml:"reply_to"`
}

// Load reads and parses the configuration file. A missing file is not an
// error: env-only deployments start from the defaults below.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.SendGrid.TimeoutSeconds == 0 {
		cfg.SendGrid.TimeoutSeconds = 30
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o"
	}
	if cfg.OpenAI.TimeoutSeconds == 0 {
		cfg.OpenAI.TimeoutSeconds = 20
	}
	if cfg.Auth.MagicLinkTTLMins == 0 {
		cfg.Auth.MagicLinkTTLMins = 15
	}
	if cfg.Auth.SessionTTLHours == 0 {
		cfg.Auth.SessionTTLHours = 24
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "admin_session"
	}
	if cfg.Auth.LoginRatePerMinute == 0 {
		cfg.Auth.LoginRatePerMinute = 3
	}
	if cfg.Drainer.CronSpec == "" {
		cfg.Drainer.CronSpec = "*/1 * * * *"
	}
	if cfg.Drainer.BatchSize == 0 {
		cfg.Drainer.BatchSize = 50
	}
	if cfg.Drainer.MaxAttempts == 0 {
		cfg.Drainer.MaxAttempts = 5
	}
	if cfg.Drainer.BackoffBaseMins == 0 {
		cfg.Drainer.BackoffBaseMins = 2
	}
	if cfg.Drainer.StalenessMins == 0 {
		cfg.Drainer.StalenessMins = 10
	}
	if cfg.Drainer.SweepIntervalMins == 0 {
		cfg.Drainer.SweepIntervalMins = 5
	}
	if cfg.Drainer.LockTTLSeconds == 0 {
		cfg.Drainer.LockTTLSeconds = 90
	}
	if cfg.Brand.SiteName == "" {
		cfg.Brand.SiteName = "Innerpath Studio"
	}
	if cfg.Brand.FromName == "" {
		cfg.Brand.FromName = cfg.Brand.SiteName
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.SendGrid.APIKey = v
		cfg.SendGrid.Enabled = true
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
		cfg.Stripe.Enabled = true
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.Auth.AdminEmails = cfg.Auth.AdminEmails[:0]
		for _, e := range strings.Split(v, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cfg.Auth.AdminEmails = append(cfg.Auth.AdminEmails, e)
			}
		}
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Brand.BaseURL = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Brand.FromEmail = v
	}

	return cfg, nil
}
