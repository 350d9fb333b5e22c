package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultConfigPath is used when neither a flag nor FORMBASE_CONFIG names a file.
const defaultConfigPath = "config.yaml"

// minJWTSecretLen is the minimum accepted session signing secret length.
const minJWTSecretLen = 32

// AppConfig holds command-line level inputs.
type AppConfig struct {
	ConfigPath string
}

// Config is the full runtime configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	JWT         JWTConfig         `yaml:"jwt"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	Storage     StorageConfig     `yaml:"storage"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Submissions SubmissionsConfig `yaml:"submissions"`
	Audit       AuditConfig       `yaml:"audit"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	PublicURL    string `yaml:"public_url"`
	CookieSecure bool   `yaml:"cookie_secure"`
}

// DatabaseConfig holds the database DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// JWTConfig holds session token signing settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// SMTPConfig configures outbound mail. An empty host logs mail instead of sending it.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// StorageConfig configures uploaded file storage.
type StorageConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	Serve         bool   `yaml:"serve"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
}

// RateLimitConfig configures the per-key v1 API limiter.
type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
	RedisURL    string        `yaml:"redis_url"`
}

// SubmissionsConfig configures the public submission endpoint.
type SubmissionsConfig struct {
	HoneypotField string  `yaml:"honeypot_field"`
	PerIPRate     float64 `yaml:"per_ip_rate"`
	PerIPBurst    int     `yaml:"per_ip_burst"`
	MaxBodyMB     int64   `yaml:"max_body_mb"`
}

// AuditConfig configures API audit log retention.
type AuditConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// LoggingConfig configures logrus output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns a configuration with every optional value filled in.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":3000",
		},
		JWT: JWTConfig{
			Expiry: 30 * 24 * time.Hour,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "Formbase <no-reply@formbase.local>",
		},
		Storage: StorageConfig{
			Serve:       true,
			MaxUploadMB: 10,
		},
		RateLimit: RateLimitConfig{
			Window:      time.Minute,
			MaxRequests: 100,
		},
		Submissions: SubmissionsConfig{
			HoneypotField: "_gotcha",
			PerIPRate:     5,
			PerIPBurst:    20,
			MaxBodyMB:     25,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// ResolveConfigPath returns the config file path from the flag, the environment or the default.
func ResolveConfigPath(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("FORMBASE_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}

// Load reads the YAML file at path (optional), applies environment overrides and validates.
func Load(path string) (Config, error) {
	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		log.WithError(errEnv).Warn("config: failed to load .env file")
	}

	cfg := Default()
	data, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	applyEnv(&cfg, os.LookupEnv)
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// LoadDatabaseDSN loads the configuration and returns only the database DSN.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	return cfg.Database.DSN, nil
}

// Validate reports missing or malformed required values.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database.DSN) == "" {
		problems = append(problems, "database.dsn (DATABASE_URL) is required")
	}
	if len(c.JWT.Secret) < minJWTSecretLen {
		problems = append(problems, fmt.Sprintf("jwt.secret (JWT_SECRET) must be at least %d characters", minJWTSecretLen))
	}
	if c.JWT.Expiry <= 0 {
		problems = append(problems, "jwt.expiry must be positive")
	}
	if parsed, errParse := url.Parse(strings.TrimSpace(c.Server.PublicURL)); errParse != nil || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		problems = append(problems, "server.public_url (PUBLIC_APP_URL) must be an absolute http(s) URL")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		problems = append(problems, "rate_limit.window and rate_limit.max_requests must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// PublicURL returns the public app URL without a trailing slash.
func (c *Config) PublicURL() string {
	return strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
}
