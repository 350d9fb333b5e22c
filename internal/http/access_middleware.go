package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/formbase/formbase/internal/access"
	"github.com/formbase/formbase/internal/metrics"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Context keys set by the authentication middlewares.
const (
	ContextUserID     = "userID"
	ContextAPIKeyID   = "apiKeyID"
	ContextAPIKeyName = "apiKeyName"
)

// Authenticator resolves the API key principal behind a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*access.Principal, error)
}

// APIKeyAuthMiddleware authenticates API keys and injects the principal into the gin context.
func APIKeyAuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auth == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication service error"})
			return
		}

		principal, authErr := auth.Authenticate(c.Request.Context(), c.Request)
		if authErr == nil && principal != nil {
			c.Set(ContextUserID, principal.UserID)
			c.Set(ContextAPIKeyID, principal.APIKeyID)
			c.Set(ContextAPIKeyName, principal.KeyName)
			c.Next()
			return
		}

		switch {
		case authErr == nil, errors.Is(authErr, access.ErrInvalidAPIKey):
			metrics.RecordAPIAuthFailure()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": access.ErrInvalidAPIKey.Error()})
		default:
			log.WithError(authErr).Error("api key auth middleware error")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication service error"})
		}
	}
}

// ContextUint64 reads a uint64 value stored by the middlewares; missing values read as 0.
func ContextUint64(c *gin.Context, key string) uint64 {
	val, exists := c.Get(key)
	if !exists {
		return 0
	}
	id, _ := val.(uint64)
	return id
}
