package config

import (
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// applyEnv overrides file values with environment variables.
func applyEnv(cfg *Config, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, errParse := strconv.Atoi(strings.TrimSpace(v))
			if errParse != nil {
				log.Warnf("config: ignoring %s=%q: not an integer", key, v)
				return
			}
			*dst = parsed
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, errParse := time.ParseDuration(strings.TrimSpace(v))
			if errParse != nil {
				log.Warnf("config: ignoring %s=%q: not a duration", key, v)
				return
			}
			*dst = parsed
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			parsed, errParse := strconv.ParseBool(strings.TrimSpace(v))
			if errParse != nil {
				log.Warnf("config: ignoring %s=%q: not a boolean", key, v)
				return
			}
			*dst = parsed
		}
	}

	str("LISTEN_ADDR", &cfg.Server.Addr)
	str("PUBLIC_APP_URL", &cfg.Server.PublicURL)
	flag("COOKIE_SECURE", &cfg.Server.CookieSecure)

	str("DATABASE_URL", &cfg.Database.DSN)

	str("JWT_SECRET", &cfg.JWT.Secret)
	dur("JWT_EXPIRY", &cfg.JWT.Expiry)

	str("SMTP_HOST", &cfg.SMTP.Host)
	num("SMTP_PORT", &cfg.SMTP.Port)
	str("SMTP_USERNAME", &cfg.SMTP.Username)
	str("SMTP_PASSWORD", &cfg.SMTP.Password)
	str("SMTP_FROM", &cfg.SMTP.From)

	str("STORAGE_DIR", &cfg.Storage.Dir)
	str("STORAGE_PUBLIC_BASE_URL", &cfg.Storage.PublicBaseURL)

	dur("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)
	num("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	str("REDIS_URL", &cfg.RateLimit.RedisURL)

	num("AUDIT_RETENTION_DAYS", &cfg.Audit.RetentionDays)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("LOG_FILE", &cfg.Logging.File)
}
