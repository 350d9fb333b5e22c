package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/gin-gonic/gin"
)

// getUserID extracts the user ID from gin context.
func getUserID(c *gin.Context) uint64 {
	val, exists := c.Get("userID")
	if !exists {
		return 0
	}
	switch v := val.(type) {
	case uint64:
		return v
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case int:
		return uint64(v)
	default:
		return 0
	}
}

// getSessionID extracts the session ID set by the session middleware.
func getSessionID(c *gin.Context) string {
	return c.GetString("sessionID")
}

// serializeUser converts a user to its API representation.
func serializeUser(user *models.User) gin.H {
	return gin.H{
		"id":              user.ID,
		"email":           user.Email,
		"name":            user.Name,
		"image":           user.Image,
		"email_verified":  user.EmailVerified,
		"totp_enabled":    user.HasTOTP(),
		"passkey_enabled": user.HasPasskey(),
		"has_password":    user.Password != "",
		"created_at":      user.CreatedAt,
	}
}

// bindOptionalJSON binds the JSON body into dst when one is sent. An empty body leaves dst
// untouched; a malformed one is answered with a validation error and false.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return true
	}
	if errBind := c.ShouldBindJSON(dst); errBind != nil && !errors.Is(errBind, io.EOF) {
		httperr.BindError(c, errBind)
		return false
	}
	return true
}
