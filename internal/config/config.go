package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Email    EmailConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Contact  ContactConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
	Debug   bool
	Port    string
	Host    string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	SecretKey          string
	TokenExpiryMinutes int
	CookieName         string
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// EmailConfig holds email service configuration
type EmailConfig struct {
	Enabled   bool
	SMTPHost  string
	SMTPPort  int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// RedisConfig holds the connection used by the task queue and the rate limiter.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string
	Password string
}

// QueueConfig holds notification queue settings
type QueueConfig struct {
	Stream      string
	Group       string
	MaxRetries  int
	RetryDelay  time.Duration
	Workers     int
	RunWorkers  bool
	MemoryDepth int
}

// ContactConfig holds contact form settings
type ContactConfig struct {
	HoneypotField  string
	SuccessURL     string
	DefaultCompany string
	NotifyEmails   []string
	BlockedDomains []string
	RateLimit      int
	RateWindow     time.Duration
	TrustedProxies []string
	ChoicesFile    string
	// Choices maps a contact kind to its subject choices. Empty means built-in defaults.
	Choices map[string][]string
}

var globalConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Envelope"),
			Version: getEnv("APP_VERSION", "1.0.0"),
			Debug:   getEnvAsBool("DEBUG", false),
			Port:    getEnv("PORT", "8000"),
			Host:    getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "sqlite:///./envelope.db"),
		},
		Auth: AuthConfig{
			SecretKey:          getEnv("SECRET_KEY", "your-secret-key-change-in-production"),
			TokenExpiryMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
			CookieName:         getEnv("AUTH_COOKIE_NAME", "token"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_HOSTS", []string{"*"}),
			AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS", "HEAD"},
			AllowedHeaders: []string{"*"},
			MaxAge:         86400,
		},
		Email: EmailConfig{
			Enabled:   getEnvAsBool("EMAIL_ENABLED", false),
			SMTPHost:  getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:  getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@envelope.local"),
			FromName:  getEnv("EMAIL_FROM_NAME", "Envelope"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Queue: QueueConfig{
			Stream:      getEnv("QUEUE_STREAM", "envelope:notifications"),
			Group:       getEnv("QUEUE_GROUP", "mailers"),
			MaxRetries:  getEnvAsInt("QUEUE_MAX_RETRIES", 3),
			RetryDelay:  getEnvAsDuration("QUEUE_RETRY_DELAY", 2*time.Second),
			Workers:     getEnvAsInt("QUEUE_WORKERS", 2),
			RunWorkers:  getEnvAsBool("QUEUE_RUN_WORKERS", true),
			MemoryDepth: getEnvAsInt("QUEUE_MEMORY_DEPTH", 256),
		},
		Contact: ContactConfig{
			HoneypotField:  getEnv("HONEYPOT_FIELD_NAME", "email2"),
			SuccessURL:     getEnv("CONTACT_SUCCESS_URL", ""),
			DefaultCompany: getEnv("CONTACT_DEFAULT_COMPANY", ""),
			NotifyEmails:   getEnvAsSlice("CONTACT_NOTIFY_EMAILS", nil),
			BlockedDomains: getEnvAsSlice("CONTACT_BLOCKED_DOMAINS", nil),
			RateLimit:      getEnvAsInt("CONTACT_RATE_LIMIT", 5),
			RateWindow:     getEnvAsDuration("CONTACT_RATE_WINDOW", time.Minute),
			TrustedProxies: getEnvAsSlice("CONTACT_TRUSTED_PROXIES", nil),
			ChoicesFile:    getEnv("CONTACT_CHOICES_FILE", ""),
		},
	}

	if config.Contact.ChoicesFile != "" {
		choices, err := LoadChoices(config.Contact.ChoicesFile)
		if err != nil {
			return nil, err
		}
		config.Contact.Choices = choices
	}

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	globalConfig = config
	return config, nil
}

// LoadChoices reads subject choices per contact kind from a YAML file shaped like
//
//	company: ["Sales", "Support"]
//	product: ["Pricing"]
func LoadChoices(path string) (map[string][]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read choices file: %w", err)
	}
	choices := map[string][]string{}
	if err := yaml.Unmarshal(raw, &choices); err != nil {
		return nil, fmt.Errorf("parse choices file %s: %w", path, err)
	}
	for kind, list := range choices {
		cleaned := make([]string, 0, len(list))
		for _, c := range list {
			if c = strings.TrimSpace(c); c != "" {
				cleaned = append(cleaned, c)
			}
		}
		choices[kind] = cleaned
	}
	return choices, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.App.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.Auth.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY must be set")
	}
	if cfg.Auth.TokenExpiryMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be greater than 0")
	}
	if cfg.Contact.HoneypotField == "" {
		return fmt.Errorf("HONEYPOT_FIELD_NAME must not be empty")
	}
	if cfg.Contact.RateLimit < 0 {
		return fmt.Errorf("CONTACT_RATE_LIMIT must not be negative")
	}
	if cfg.Queue.Workers <= 0 {
		return fmt.Errorf("QUEUE_WORKERS must be greater than 0")
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		// Load default config if not loaded
		config, _ := Load()
		return config
	}
	return globalConfig
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsPostgres checks if the database URL is for PostgreSQL
func (c *DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://") ||
		strings.Contains(c.URL, "host=")
}

// GetPostgresDSN converts a postgres:// URL to key=value DSN format.
// Strings already in DSN form are returned unchanged.
func (c *DatabaseConfig) GetPostgresDSN() string {
	if strings.Contains(c.URL, " ") || strings.Contains(c.URL, "host=") {
		return c.URL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	dbname := strings.TrimPrefix(u.Path, "/")
	if dbname == "" {
		dbname = "postgres"
	}
	sslmode := u.Query().Get("sslmode")
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s", host, port, u.User.Username(), dbname, sslmode)
	if password, ok := u.User.Password(); ok && password != "" {
		dsn += " password=" + password
	}
	return dsn
}

// GetSQLitePath extracts SQLite database path from URL
func (c *DatabaseConfig) GetSQLitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite:///")
}
