package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Default()
	cfg.Database.DSN = "file:test.db"
	cfg.JWT.Secret = strings.Repeat("k", 32)
	cfg.Server.PublicURL = "https://forms.example.com/"
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if got := cfg.PublicURL(); got != "https://forms.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", got)
	}
}

func TestValidateRejectsMissingRequiredValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "dsn", mutate: func(c *Config) { c.Database.DSN = "" }, want: "database.dsn"},
		{name: "short secret", mutate: func(c *Config) { c.JWT.Secret = "short" }, want: "jwt.secret"},
		{name: "relative url", mutate: func(c *Config) { c.Server.PublicURL = "/app" }, want: "public_url"},
		{name: "bad scheme", mutate: func(c *Config) { c.Server.PublicURL = "ftp://x.example" }, want: "public_url"},
		{name: "zero limit", mutate: func(c *Config) { c.RateLimit.MaxRequests = 0 }, want: "rate_limit"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestApplyEnvOverridesFileValues(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"DATABASE_URL":            "postgres://u:p@localhost/formbase",
		"JWT_EXPIRY":              "2h",
		"RATE_LIMIT_MAX_REQUESTS": "7",
		"SMTP_PORT":               "not-a-number",
		"COOKIE_SECURE":           "true",
	}
	applyEnv(&cfg, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})

	if cfg.Database.DSN != env["DATABASE_URL"] {
		t.Fatalf("expected dsn override, got %q", cfg.Database.DSN)
	}
	if cfg.JWT.Expiry != 2*time.Hour {
		t.Fatalf("expected 2h expiry, got %s", cfg.JWT.Expiry)
	}
	if cfg.RateLimit.MaxRequests != 7 {
		t.Fatalf("expected max requests 7, got %d", cfg.RateLimit.MaxRequests)
	}
	if cfg.SMTP.Port != 587 {
		t.Fatalf("expected invalid port to be ignored, got %d", cfg.SMTP.Port)
	}
	if !cfg.Server.CookieSecure {
		t.Fatalf("expected cookie secure override")
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  addr: ":8080"
  public_url: "http://localhost:8080"
database:
  dsn: "file:formbase.db"
jwt:
  secret: "0123456789abcdef0123456789abcdef"
  expiry: 1h
rate_limit:
  window: 30s
  max_requests: 10
`
	if errWrite := os.WriteFile(path, []byte(content), 0o644); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.RateLimit.Window != 30*time.Second || cfg.RateLimit.MaxRequests != 10 {
		t.Fatalf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if cfg.Submissions.HoneypotField != "_gotcha" {
		t.Fatalf("expected defaults to survive partial file, got %q", cfg.Submissions.HoneypotField)
	}
}

func TestLoadFailsWithoutRequiredValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("PUBLIC_APP_URL", "")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected load to fail without required values")
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("FORMBASE_CONFIG", "/etc/formbase.yaml")
	if got := ResolveConfigPath(" ./local.yaml "); got != "./local.yaml" {
		t.Fatalf("expected flag to win, got %q", got)
	}
	if got := ResolveConfigPath(""); got != "/etc/formbase.yaml" {
		t.Fatalf("expected env path, got %q", got)
	}
}
