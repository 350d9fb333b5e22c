// Package v1 mounts the API-key authenticated REST API under /api/v1.
package v1

import (
	"errors"
	"net/http"

	"github.com/formbase/formbase/internal/audit"
	apihttp "github.com/formbase/formbase/internal/http"
	"github.com/formbase/formbase/internal/http/api/formsapi"
	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Dependencies wires the v1 API.
type Dependencies struct {
	DB            *gorm.DB
	Authenticator apihttp.Authenticator
	Limiter       ratelimit.Limiter
	Audit         *audit.Logger
	Forms         *formsapi.Handler
	PublicURL     string
}

// RegisterRoutes mounts /api/v1. Every authenticated call is audited, including rejected ones.
func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.Forms == nil {
		return
	}
	group := r.Group("/api/v1")
	group.GET("/openapi.json", OpenAPIHandler(deps.PublicURL))

	authed := group.Group("")
	authed.Use(
		apihttp.AuditMiddleware(deps.Audit),
		apihttp.APIKeyAuthMiddleware(deps.Authenticator),
		apihttp.RateLimitMiddleware(deps.Limiter),
	)

	me := &meHandler{db: deps.DB}
	authed.GET("/me", me.Get)
	formsapi.Register(authed, deps.Forms)
}

type meHandler struct {
	db *gorm.DB
}

// Get handles GET /api/v1/me.
func (h *meHandler) Get(c *gin.Context) {
	userID := apihttp.ContextUint64(c, apihttp.ContextUserID)
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			httperr.NotFound(c)
			return
		}
		httperr.Internal(c, "load api user failed", errFind)
		return
	}
	keyName, _ := c.Get(apihttp.ContextAPIKeyName)
	c.JSON(http.StatusOK, gin.H{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"email_verified": user.EmailVerified,
		"api_key": gin.H{
			"id":   apihttp.ContextUint64(c, apihttp.ContextAPIKeyID),
			"name": keyName,
		},
	})
}
