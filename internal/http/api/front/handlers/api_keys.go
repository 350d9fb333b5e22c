package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// APIKeyHandler handles API key endpoints for signed-in users.
type APIKeyHandler struct {
	db *gorm.DB
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *gorm.DB) *APIKeyHandler {
	return &APIKeyHandler{db: db}
}

// List returns the user's API keys. Only the display prefix of each key is exposed.
func (h *APIKeyHandler) List(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		httperr.Unauthorized(c)
		return
	}

	var rows []models.APIKey
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error; errFind != nil {
		httperr.Internal(c, "list api keys failed", errFind)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, serializeAPIKey(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"api_keys": out})
}

// serializeAPIKey converts a key to its API representation. The hash is never included.
func serializeAPIKey(row *models.APIKey) gin.H {
	return gin.H{
		"id":           row.ID,
		"name":         row.Name,
		"key_prefix":   row.KeyPrefix,
		"status":       row.Status(),
		"expires_at":   row.ExpiresAt,
		"last_used_at": row.LastUsedAt,
		"created_at":   row.CreatedAt,
	}
}

// createAPIKeyRequest defines the request body for creating API keys.
type createAPIKeyRequest struct {
	Name          string `json:"name" binding:"required,min=1,max=100"`
	ExpiresInDays *int   `json:"expires_in_days" binding:"omitempty,min=1,max=3650"`
}

// Create issues a new key. The raw key is returned in this response only.
func (h *APIKeyHandler) Create(c *gin.Context) {
	userID := getUserID(c)
	if userID == 0 {
		httperr.Unauthorized(c)
		return
	}
	var body createAPIKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}

	token, prefix, errGen := security.GenerateAPIKey()
	if errGen != nil {
		httperr.Internal(c, "generate api key failed", errGen)
		return
	}
	row := models.APIKey{
		UserID:    userID,
		Name:      strings.TrimSpace(body.Name),
		KeyHash:   security.HashAPIKey(token),
		KeyPrefix: prefix,
	}
	if body.ExpiresInDays != nil {
		expiresAt := time.Now().UTC().AddDate(0, 0, *body.ExpiresInDays)
		row.ExpiresAt = &expiresAt
	}
	if errCreate := h.db.WithContext(c.Request.Context()).Create(&row).Error; errCreate != nil {
		httperr.Internal(c, "create api key failed", errCreate)
		return
	}

	resp := serializeAPIKey(&row)
	resp["key"] = token
	c.JSON(http.StatusCreated, resp)
}

// updateAPIKeyRequest defines the request body for renaming a key.
type updateAPIKeyRequest struct {
	Name string `json:"name" binding:"required,min=1,max=100"`
}

// Update renames a key.
func (h *APIKeyHandler) Update(c *gin.Context) {
	userID := getUserID(c)
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		httperr.NotFound(c)
		return
	}
	var body updateAPIKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}

	ctx := c.Request.Context()
	res := h.db.WithContext(ctx).Model(&models.APIKey{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("name", strings.TrimSpace(body.Name))
	if res.Error != nil {
		httperr.Internal(c, "update api key failed", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httperr.NotFound(c)
		return
	}

	var row models.APIKey
	if errFind := h.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		httperr.Internal(c, "reload api key failed", errFind)
		return
	}
	c.JSON(http.StatusOK, serializeAPIKey(&row))
}

// Delete removes a key.
func (h *APIKeyHandler) Delete(c *gin.Context) {
	userID := getUserID(c)
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		httperr.NotFound(c)
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id = ? AND user_id = ?", id, userID).Delete(&models.APIKey{})
	if res.Error != nil {
		httperr.Internal(c, "delete api key failed", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httperr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
