package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/formbase/formbase/internal/util"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrInvalidAPIKey covers every credential failure: missing, malformed, unknown, expired or orphaned.
var ErrInvalidAPIKey = errors.New("Invalid or missing API key")

// touchTimeout bounds the background last_used_at update.
const touchTimeout = 5 * time.Second

// Principal identifies the caller behind a valid API key.
type Principal struct {
	APIKeyID uint64
	UserID   uint64
	KeyName  string
}

// APIKeyAuthenticator authenticates requests using hashed API keys stored in the database.
type APIKeyAuthenticator struct {
	db *gorm.DB

	header       string
	scheme       string
	allowXAPIKey bool

	now func() time.Time
}

// NewAPIKeyAuthenticator returns an authenticator reading "Authorization: Bearer" or "X-API-Key".
func NewAPIKeyAuthenticator(db *gorm.DB) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		db:           db,
		header:       "Authorization",
		scheme:       "Bearer",
		allowXAPIKey: true,
		now:          time.Now,
	}
}

// Authenticate validates the request API key and returns its principal.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	if a == nil || a.db == nil {
		return nil, fmt.Errorf("api key authenticator: nil db")
	}
	if r == nil {
		return nil, ErrInvalidAPIKey
	}

	token := extractToken(r, a.header, a.scheme, a.allowXAPIKey)
	if token == "" || !security.LooksLikeAPIKey(token) {
		return nil, ErrInvalidAPIKey
	}

	var apiKey models.APIKey
	err := a.db.WithContext(ctx).
		Preload("User").
		Where("key_hash = ?", security.HashAPIKey(token)).
		First(&apiKey).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		log.WithField("api_key", util.HideAPIKey(token)).Debug("api key authenticator: unknown key")
		return nil, ErrInvalidAPIKey
	default:
		return nil, fmt.Errorf("api key authenticator: query failed: %w", err)
	}

	now := a.now().UTC()
	if apiKey.Expired(now) {
		return nil, ErrInvalidAPIKey
	}
	if apiKey.User == nil || apiKey.User.Disabled {
		return nil, ErrInvalidAPIKey
	}

	a.touchLastUsed(apiKey.ID, now)

	return &Principal{
		APIKeyID: apiKey.ID,
		UserID:   apiKey.UserID,
		KeyName:  apiKey.Name,
	}, nil
}

// touchLastUsed records key usage without blocking the request. Failures are logged only.
func (a *APIKeyAuthenticator) touchLastUsed(id uint64, at time.Time) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if errUpdate := a.db.WithContext(ctx).Model(&models.APIKey{}).
			Where("id = ?", id).
			Update("last_used_at", &at).Error; errUpdate != nil {
			log.WithError(errUpdate).WithField("api_key_id", id).Warn("api key authenticator: touch last_used_at failed")
		}
	}()
}

// extractToken extracts an API key token from the configured header or X-API-Key.
func extractToken(r *http.Request, header string, scheme string, allowXAPIKey bool) string {
	header = strings.TrimSpace(header)
	scheme = strings.TrimSpace(scheme)
	if header == "" {
		header = "Authorization"
	}
	val := strings.TrimSpace(r.Header.Get(header))
	if val != "" && scheme != "" {
		prefix := scheme + " "
		if len(val) > len(prefix) && strings.EqualFold(val[:len(prefix)], prefix) {
			return strings.TrimSpace(val[len(prefix):])
		}
	}
	if val != "" && scheme == "" {
		return val
	}
	if allowXAPIKey {
		if v := strings.TrimSpace(r.Header.Get("X-API-Key")); v != "" {
			return v
		}
	}
	return ""
}
