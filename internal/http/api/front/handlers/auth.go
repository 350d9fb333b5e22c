package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/mail"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	verifyEmailTTL   = 24 * time.Hour
	resetPasswordTTL = time.Hour
	mfaLoginTTL      = 5 * time.Minute
	mfaMaxFailures   = 5
	emailTokenLen    = 48
	mailSendTimeout  = 15 * time.Second
)

// AuthHandler handles sign-up, sign-in and email token flows.
type AuthHandler struct {
	db        *gorm.DB
	sessions  *SessionManager
	mailer    mail.Mailer
	publicURL string
	webAuthn  *webauthn.WebAuthn // nil disables passkey login

	// mfaLogins maps a login token to the user that passed the password step.
	mfaLogins *pendingStore[string]
	// passkeyLogins holds WebAuthn assertion state, keyed by login token.
	passkeyLogins *pendingStore[webauthn.SessionData]
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, sessions *SessionManager, mailer mail.Mailer, publicURL string, webAuthn *webauthn.WebAuthn) *AuthHandler {
	return &AuthHandler{
		db:            db,
		sessions:      sessions,
		mailer:        mailer,
		publicURL:     strings.TrimRight(publicURL, "/"),
		webAuthn:      webAuthn,
		mfaLogins:     newPendingStore[string](mfaLoginTTL, mfaMaxFailures),
		passkeyLogins: newPendingStore[webauthn.SessionData](passkeyCeremonyTTL, 0),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// signupRequest defines the request body for sign-up.
type signupRequest struct {
	Name     string `json:"name" binding:"max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// Signup creates an unverified account, signs it in and mails a verification link.
func (h *AuthHandler) Signup(c *gin.Context) {
	var body signupRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	email := normalizeEmail(body.Email)
	ctx := c.Request.Context()

	var existing int64
	if errCount := h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; errCount != nil {
		httperr.Internal(c, "signup lookup failed", errCount)
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
		return
	}

	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		httperr.Internal(c, "hash password failed", errHash)
		return
	}
	user := models.User{
		Email:    email,
		Name:     strings.TrimSpace(body.Name),
		Password: hash,
	}
	if errCreate := h.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		httperr.Internal(c, "create user failed", errCreate)
		return
	}

	token, errSession := h.sessions.Issue(c, &user)
	if errSession != nil {
		httperr.Internal(c, "issue session failed", errSession)
		return
	}
	h.sendVerification(ctx, &user)

	c.JSON(http.StatusCreated, gin.H{"user": serializeUser(&user), "token": token})
}

// loginRequest defines the request body for login.
type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login checks credentials. Accounts with a second factor get a short-lived mfa_token
// instead of a session, along with the methods that can complete the login.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).Where("email = ?", normalizeEmail(body.Email)).First(&user).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		httperr.Internal(c, "login lookup failed", errFind)
		return
	}
	if user.Password == "" || !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if user.Disabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return
	}

	if user.HasMFA() {
		mfaToken, errToken := security.GenerateRandomString(emailTokenLen)
		if errToken != nil {
			httperr.Internal(c, "generate mfa token failed", errToken)
			return
		}
		methods := make([]string, 0, 2)
		if user.HasTOTP() {
			methods = append(methods, "totp")
		}
		if user.HasPasskey() && h.webAuthn != nil {
			methods = append(methods, "passkey")
		}
		h.mfaLogins.Set(mfaToken, strconv.FormatUint(user.ID, 10))
		c.JSON(http.StatusOK, gin.H{"mfa_required": true, "mfa_token": mfaToken, "mfa_methods": methods})
		return
	}

	h.respondWithSession(c, &user)
}

// loginTOTPRequest defines the request body for the second login step.
type loginTOTPRequest struct {
	MFAToken string `json:"mfa_token" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

// LoginTOTP completes a login started by Login using a TOTP code.
// The login token is dropped after mfaMaxFailures wrong codes.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	var body loginTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	user, ok := h.pendingLoginUser(c, body.MFAToken)
	if !ok {
		return
	}
	if !user.HasTOTP() || !totp.Validate(strings.TrimSpace(body.Code), user.TOTPSecret) {
		h.mfaLogins.Fail(body.MFAToken)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	h.mfaLogins.Delete(body.MFAToken)
	h.respondWithSession(c, user)
}

// pendingLoginUser loads the user behind a login token issued by Login.
// It writes the error response and returns false when the token is unusable.
func (h *AuthHandler) pendingLoginUser(c *gin.Context, mfaToken string) (*models.User, bool) {
	rawID, ok := h.mfaLogins.Get(mfaToken)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "login expired"})
		return nil, false
	}
	userID, _ := strconv.ParseUint(rawID, 10, 64)

	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; errFind != nil {
		h.mfaLogins.Delete(mfaToken)
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return nil, false
		}
		httperr.Internal(c, "load login user failed", errFind)
		return nil, false
	}
	if user.Disabled {
		h.mfaLogins.Delete(mfaToken)
		c.JSON(http.StatusForbidden, gin.H{"error": "user disabled"})
		return nil, false
	}
	return &user, true
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(c *gin.Context) {
	if errRevoke := h.sessions.Revoke(c, getSessionID(c)); errRevoke != nil {
		httperr.Internal(c, "logout failed", errRevoke)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Session reports the signed-in user, or authenticated=false.
func (h *AuthHandler) Session(c *gin.Context) {
	session, user, errResolve := h.sessions.Resolve(c)
	if errResolve != nil {
		if !errors.Is(errResolve, ErrNoSession) {
			httperr.Internal(c, "resolve session failed", errResolve)
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          serializeUser(user),
		"expires_at":    session.ExpiresAt,
	})
}

// tokenRequest carries a mailed token.
type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyEmail consumes a verification token.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var body tokenRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		token, errConsume := consumeEmailToken(tx, models.EmailTokenVerifyEmail, body.Token)
		if errConsume != nil {
			return errConsume
		}
		return tx.Model(&models.User{}).Where("id = ?", token.UserID).Updates(map[string]any{
			"email_verified": true,
			"updated_at":     time.Now().UTC(),
		}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, errInvalidEmailToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		httperr.Internal(c, "verify email failed", errTx)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResendVerification mails a fresh verification link to the signed-in user.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var user models.User
	if errFind := h.db.WithContext(c.Request.Context()).First(&user, getUserID(c)).Error; errFind != nil {
		httperr.Unauthorized(c)
		return
	}
	if user.EmailVerified {
		c.JSON(http.StatusOK, gin.H{"ok": true, "already_verified": true})
		return
	}
	h.sendVerification(c.Request.Context(), &user)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// forgotPasswordRequest defines the request body for password reset requests.
type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ForgotPassword mails a reset link when the account exists. The response never reveals whether it does.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var body forgotPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	ctx := c.Request.Context()
	var user models.User
	errFind := h.db.WithContext(ctx).Where("email = ?", normalizeEmail(body.Email)).First(&user).Error
	switch {
	case errFind == nil && !user.Disabled:
		link, errLink := h.issueEmailToken(ctx, &user, models.EmailTokenResetPassword, resetPasswordTTL, "/reset-password")
		if errLink != nil {
			log.WithError(errLink).WithField("user_id", user.ID).Error("issue reset token failed")
			break
		}
		msg, errRender := mail.PasswordResetMessage(user.Email, user.Name, link)
		h.send(ctx, msg, errRender)
	case errFind != nil && !errors.Is(errFind, gorm.ErrRecordNotFound):
		log.WithError(errFind).Error("forgot password lookup failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// resetPasswordRequest defines the request body for completing a reset.
type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// ResetPassword sets a new password from a reset token and signs out every session.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var body resetPasswordRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	hash, errHash := security.HashPassword(body.Password)
	if errHash != nil {
		httperr.Internal(c, "hash password failed", errHash)
		return
	}
	errTx := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		token, errConsume := consumeEmailToken(tx, models.EmailTokenResetPassword, body.Token)
		if errConsume != nil {
			return errConsume
		}
		if errUpdate := tx.Model(&models.User{}).Where("id = ?", token.UserID).Updates(map[string]any{
			"password":   hash,
			"updated_at": time.Now().UTC(),
		}).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Where("user_id = ?", token.UserID).Delete(&models.Session{}).Error
	})
	if errTx != nil {
		if errors.Is(errTx, errInvalidEmailToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired token"})
			return
		}
		httperr.Internal(c, "reset password failed", errTx)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// respondWithSession issues a session and responds with the user and token.
func (h *AuthHandler) respondWithSession(c *gin.Context, user *models.User) {
	token, errSession := h.sessions.Issue(c, user)
	if errSession != nil {
		httperr.Internal(c, "issue session failed", errSession)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": serializeUser(user), "token": token})
}

func (h *AuthHandler) sendVerification(ctx context.Context, user *models.User) {
	link, errLink := h.issueEmailToken(ctx, user, models.EmailTokenVerifyEmail, verifyEmailTTL, "/verify-email")
	if errLink != nil {
		log.WithError(errLink).WithField("user_id", user.ID).Error("issue verification token failed")
		return
	}
	msg, errRender := mail.VerifyEmailMessage(user.Email, user.Name, link)
	h.send(ctx, msg, errRender)
}

// send delivers a message. Failures are logged and never fail the request.
func (h *AuthHandler) send(ctx context.Context, msg mail.Message, errRender error) {
	if errRender != nil {
		log.WithError(errRender).Error("render mail failed")
		return
	}
	if h.mailer == nil {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailSendTimeout)
	defer cancel()
	if errSend := h.mailer.Send(sendCtx, msg); errSend != nil {
		log.WithError(errSend).WithField("subject", msg.Subject).Warn("send mail failed")
	}
}

var errInvalidEmailToken = errors.New("invalid email token")

// issueEmailToken invalidates earlier tokens with the same purpose and returns a link carrying a new one.
func (h *AuthHandler) issueEmailToken(ctx context.Context, user *models.User, purpose string, ttl time.Duration, path string) (string, error) {
	raw, errRand := security.GenerateRandomString(emailTokenLen)
	if errRand != nil {
		return "", errRand
	}
	now := time.Now().UTC()
	errTx := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errUpdate := tx.Model(&models.EmailToken{}).
			Where("user_id = ? AND purpose = ? AND used_at IS NULL", user.ID, purpose).
			Update("used_at", now).Error; errUpdate != nil {
			return errUpdate
		}
		return tx.Create(&models.EmailToken{
			UserID:    user.ID,
			Purpose:   purpose,
			TokenHash: security.HashToken(raw),
			ExpiresAt: now.Add(ttl),
		}).Error
	})
	if errTx != nil {
		return "", errTx
	}
	return h.publicURL + path + "?token=" + url.QueryEscape(raw), nil
}

// consumeEmailToken marks an unused, unexpired token as used and returns it.
func consumeEmailToken(tx *gorm.DB, purpose, raw string) (*models.EmailToken, error) {
	now := time.Now().UTC()
	var token models.EmailToken
	errFind := tx.Where("token_hash = ? AND purpose = ? AND used_at IS NULL", security.HashToken(strings.TrimSpace(raw)), purpose).
		First(&token).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, errInvalidEmailToken
		}
		return nil, errFind
	}
	if !now.Before(token.ExpiresAt) {
		return nil, errInvalidEmailToken
	}
	res := tx.Model(&models.EmailToken{}).Where("id = ? AND used_at IS NULL", token.ID).Update("used_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, errInvalidEmailToken
	}
	return &token, nil
}
