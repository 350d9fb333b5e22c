package handlers

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image/png"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pquerna/otp/totp"
	"gorm.io/gorm"
)

const (
	totpIssuer     = "Formbase"
	totpPendingTTL = 10 * time.Minute
)

// UserHandler handles the signed-in user's profile, password, linked accounts and second factors.
type UserHandler struct {
	db       *gorm.DB
	sessions *SessionManager
	webAuthn *webauthn.WebAuthn // nil disables passkeys

	// totpPending stores TOTP secrets awaiting confirmation, keyed by user id.
	totpPending *pendingStore[string]
	// passkeyRegistrations stores WebAuthn registration state, keyed by user id.
	passkeyRegistrations *pendingStore[webauthn.SessionData]
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(db *gorm.DB, sessions *SessionManager, webAuthn *webauthn.WebAuthn) *UserHandler {
	return &UserHandler{
		db:                   db,
		sessions:             sessions,
		webAuthn:             webAuthn,
		totpPending:          newPendingStore[string](totpPendingTTL, 0),
		passkeyRegistrations: newPendingStore[webauthn.SessionData](passkeyCeremonyTTL, 0),
	}
}

func (h *UserHandler) loadUser(c *gin.Context) (*models.User, bool) {
	userID := getUserID(c)
	if userID == 0 {
		httperr.Unauthorized(c)
		return nil, false
	}
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			httperr.Unauthorized(c)
			return nil, false
		}
		httperr.Internal(c, "load user failed", errFind)
		return nil, false
	}
	return &user, true
}

// Me returns the current user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, serializeUser(user))
}

// updateMeRequest defines the request body for profile updates.
type updateMeRequest struct {
	Name  *string `json:"name" binding:"omitempty,max=100"`
	Image *string `json:"image" binding:"omitempty,max=2048"`
}

// UpdateMe changes the display name or avatar.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	var body updateMeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if body.Name != nil {
		updates["name"] = strings.TrimSpace(*body.Name)
	}
	if body.Image != nil {
		updates["image"] = strings.TrimSpace(*body.Image)
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(updates).Error; errUpdate != nil {
		httperr.Internal(c, "update profile failed", errUpdate)
		return
	}
	h.Me(c)
}

// changePasswordRequest defines the request body for password changes.
type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ChangePassword verifies the old password, stores the new one and signs out other sessions.
// Accounts without a password (OAuth-only) may set one without old_password.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	var body changePasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	if user.Password != "" && !security.CheckPassword(user.Password, body.OldPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "old password incorrect"})
		return
	}

	hash, errHash := security.HashPassword(body.NewPassword)
	if errHash != nil {
		httperr.Internal(c, "hash password failed", errHash)
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"password":   hash,
		"updated_at": time.Now().UTC(),
	}).Error; errUpdate != nil {
		httperr.Internal(c, "change password failed", errUpdate)
		return
	}
	if errRevoke := h.sessions.RevokeOthers(c, user.ID, getSessionID(c)); errRevoke != nil {
		httperr.Internal(c, "revoke sessions failed", errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// deleteMeRequest defines the request body for account deletion.
type deleteMeRequest struct {
	Password string `json:"password"`
}

// DeleteMe removes the account and everything it owns.
func (h *UserHandler) DeleteMe(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	var body deleteMeRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	if user.Password != "" && !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password incorrect"})
		return
	}

	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		ownedForms := tx.Model(&models.Form{}).Select("id").Where("user_id = ?", user.ID)
		if errData := tx.Where("form_id IN (?)", ownedForms).Delete(&models.FormData{}).Error; errData != nil {
			return errData
		}
		for _, model := range []any{
			&models.Form{}, &models.APIKey{}, &models.Session{},
			&models.EmailToken{}, &models.OAuthAccount{}, &models.OnboardingForm{},
		} {
			if errDelete := tx.Where("user_id = ?", user.ID).Delete(model).Error; errDelete != nil {
				return errDelete
			}
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if errTx != nil {
		httperr.Internal(c, "delete account failed", errTx)
		return
	}
	h.sessions.ClearCookie(c)
	h.totpPending.Delete(strconv.FormatUint(user.ID, 10))
	h.passkeyRegistrations.Delete(strconv.FormatUint(user.ID, 10))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Accounts lists linked OAuth accounts.
func (h *UserHandler) Accounts(c *gin.Context) {
	userID := getUserID(c)
	var rows []models.OAuthAccount
	if errFind := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error; errFind != nil {
		httperr.Internal(c, "list accounts failed", errFind)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                  row.ID,
			"provider":            row.Provider,
			"provider_account_id": row.ProviderAccountID,
			"created_at":          row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

// UnlinkAccount removes a linked OAuth account unless it is the only way to sign in.
func (h *UserHandler) UnlinkAccount(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		httperr.NotFound(c)
		return
	}
	ctx := c.Request.Context()
	if user.Password == "" {
		var linked int64
		if errCount := h.db.WithContext(ctx).Model(&models.OAuthAccount{}).Where("user_id = ?", user.ID).Count(&linked).Error; errCount != nil {
			httperr.Internal(c, "count accounts failed", errCount)
			return
		}
		if linked <= 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot unlink the last sign-in method"})
			return
		}
	}
	res := h.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, user.ID).Delete(&models.OAuthAccount{})
	if res.Error != nil {
		httperr.Internal(c, "unlink account failed", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		httperr.NotFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MFAStatus returns which second factors are enabled for the user.
func (h *UserHandler) MFAStatus(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"totp_enabled":      user.HasTOTP(),
		"passkey_enabled":   user.HasPasskey(),
		"passkey_available": h.webAuthn != nil,
	})
}

// PrepareTOTP generates a new TOTP secret and QR code.
func (h *UserHandler) PrepareTOTP(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	if user.HasTOTP() {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
	})
	if err != nil {
		httperr.Internal(c, "generate totp secret failed", err)
		return
	}

	h.totpPending.Set(strconv.FormatUint(user.ID, 10), key.Secret())
	qrImage := ""
	if img, errImage := key.Image(220, 220); errImage == nil {
		var buf bytes.Buffer
		if errEncode := png.Encode(&buf, img); errEncode == nil {
			qrImage = "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"secret":      key.Secret(),
		"otpauth_url": key.URL(),
		"qr_image":    qrImage,
	})
}

// totpCodeRequest carries a TOTP code.
type totpCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// ConfirmTOTP validates a code against the pending secret and enables TOTP.
func (h *UserHandler) ConfirmTOTP(c *gin.Context) {
	userID := getUserID(c)
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	key := strconv.FormatUint(userID, 10)
	secret, ok := h.totpPending.Get(key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp setup expired"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	if errUpdate := h.db.WithContext(c.Request.Context()).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()}).Error; errUpdate != nil {
		httperr.Internal(c, "enable totp failed", errUpdate)
		return
	}
	h.totpPending.Delete(key)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP removes the TOTP secret after checking a current code.
func (h *UserHandler) DisableTOTP(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	var body totpCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	if !user.HasTOTP() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}
	if !totp.Validate(strings.TrimSpace(body.Code), user.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"totp_secret": "",
		"updated_at":  time.Now().UTC(),
	}).Error; errUpdate != nil {
		httperr.Internal(c, "disable totp failed", errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
