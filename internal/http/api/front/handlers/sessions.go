package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/config"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "formbase_session"

// ErrNoSession is returned when a request carries no usable session.
var ErrNoSession = errors.New("no valid session")

// SessionManager issues, resolves and revokes database-backed sessions.
type SessionManager struct {
	db           *gorm.DB
	jwtCfg       config.JWTConfig
	cookieSecure bool
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(db *gorm.DB, jwtCfg config.JWTConfig, cookieSecure bool) *SessionManager {
	return &SessionManager{db: db, jwtCfg: jwtCfg, cookieSecure: cookieSecure}
}

// Issue creates a session row for user, sets the session cookie and returns the signed token.
func (m *SessionManager) Issue(c *gin.Context, user *models.User) (string, error) {
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(m.jwtCfg.Expiry),
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
	}
	if errCreate := m.db.WithContext(c.Request.Context()).Create(&session).Error; errCreate != nil {
		return "", fmt.Errorf("create session: %w", errCreate)
	}
	token, errToken := security.GenerateSessionToken(m.jwtCfg.Secret, session.ID, user.ID, m.jwtCfg.Expiry)
	if errToken != nil {
		return "", fmt.Errorf("sign session: %w", errToken)
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(m.jwtCfg.Expiry.Seconds()), "/", "", m.cookieSecure, true)
	return token, nil
}

// Resolve loads the session and user behind the request's cookie or bearer token.
func (m *SessionManager) Resolve(c *gin.Context) (*models.Session, *models.User, error) {
	token := requestToken(c)
	if token == "" {
		return nil, nil, ErrNoSession
	}
	claims, errParse := security.ParseSessionToken(m.jwtCfg.Secret, token)
	if errParse != nil {
		return nil, nil, ErrNoSession
	}

	ctx := c.Request.Context()
	var session models.Session
	errFind := m.db.WithContext(ctx).Preload("User").
		Where("id = ? AND user_id = ?", claims.SessionID, claims.UserID).
		First(&session).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNoSession
		}
		return nil, nil, fmt.Errorf("load session: %w", errFind)
	}
	if session.Expired(time.Now().UTC()) {
		_ = m.db.WithContext(ctx).Delete(&models.Session{}, "id = ?", session.ID).Error
		return nil, nil, ErrNoSession
	}
	if session.User == nil || session.User.Disabled {
		return nil, nil, ErrNoSession
	}
	return &session, session.User, nil
}

// Revoke deletes a session row and clears the cookie.
func (m *SessionManager) Revoke(c *gin.Context, sessionID string) error {
	m.ClearCookie(c)
	if sessionID == "" {
		return nil
	}
	return m.db.WithContext(c.Request.Context()).Delete(&models.Session{}, "id = ?", sessionID).Error
}

// RevokeOthers deletes every session of userID except keepID.
func (m *SessionManager) RevokeOthers(c *gin.Context, userID uint64, keepID string) error {
	query := m.db.WithContext(c.Request.Context()).Where("user_id = ?", userID)
	if keepID != "" {
		query = query.Where("id <> ?", keepID)
	}
	return query.Delete(&models.Session{}).Error
}

// ClearCookie expires the session cookie.
func (m *SessionManager) ClearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", m.cookieSecure, true)
}

func requestToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, errCookie := c.Cookie(SessionCookieName); errCookie == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}
