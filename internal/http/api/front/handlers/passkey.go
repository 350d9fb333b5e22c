package handlers

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	log "github.com/sirupsen/logrus"
)

// passkeyCeremonyTTL bounds how long a WebAuthn challenge stays valid.
const passkeyCeremonyTTL = 5 * time.Minute

// webAuthnUser adapts a user model to the webauthn.User interface.
type webAuthnUser struct {
	id          uint64
	email       string
	displayName string
	credentials []webauthn.Credential
}

func (u webAuthnUser) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u.id)
	return buf
}

func (u webAuthnUser) WebAuthnName() string { return u.email }

func (u webAuthnUser) WebAuthnDisplayName() string { return u.displayName }

func (u webAuthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// newWebAuthnUser builds the adapter, including the stored credential if any.
func newWebAuthnUser(user *models.User) webAuthnUser {
	out := webAuthnUser{id: user.ID, email: user.Email, displayName: user.Name}
	if out.displayName == "" {
		out.displayName = user.Email
	}
	if !user.HasPasskey() {
		return out
	}
	var signCount uint32
	if user.PasskeySignCount != nil {
		signCount = *user.PasskeySignCount
	}
	flags := webauthn.CredentialFlags{}
	if user.PasskeyBackupEligible != nil {
		flags.BackupEligible = *user.PasskeyBackupEligible
	}
	if user.PasskeyBackupState != nil {
		flags.BackupState = *user.PasskeyBackupState
	}
	out.credentials = []webauthn.Credential{{
		ID:            user.PasskeyID,
		PublicKey:     user.PasskeyPublicKey,
		Flags:         flags,
		Authenticator: webauthn.Authenticator{SignCount: signCount},
	}}
	return out
}

func passkeyUnavailable(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "passkey not configured"})
}

// PreparePasskey starts a passkey registration ceremony for the signed-in user.
func (h *UserHandler) PreparePasskey(c *gin.Context) {
	if h.webAuthn == nil {
		passkeyUnavailable(c)
		return
	}
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	waUser := newWebAuthnUser(user)
	options := []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationPreferred,
		}),
	}
	if creds := waUser.WebAuthnCredentials(); len(creds) > 0 {
		options = append(options, webauthn.WithExclusions(webauthn.Credentials(creds).CredentialDescriptors()))
	}

	creation, session, errBegin := h.webAuthn.BeginRegistration(waUser, options...)
	if errBegin != nil {
		httperr.Internal(c, "begin passkey registration failed", errBegin)
		return
	}
	h.passkeyRegistrations.Set(strconv.FormatUint(user.ID, 10), *session)
	c.JSON(http.StatusOK, creation)
}

// ConfirmPasskey verifies the authenticator attestation and stores the credential.
// A new passkey replaces the previous one.
func (h *UserHandler) ConfirmPasskey(c *gin.Context) {
	if h.webAuthn == nil {
		passkeyUnavailable(c)
		return
	}
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	key := strconv.FormatUint(user.ID, 10)
	session, ok := h.passkeyRegistrations.Get(key)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey setup expired"})
		return
	}
	h.passkeyRegistrations.Delete(key)

	credential, errFinish := h.webAuthn.FinishRegistration(newWebAuthnUser(user), session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", user.ID).Warn("passkey registration failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey registration failed"})
		return
	}

	signCount := credential.Authenticator.SignCount
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"passkey_id":              credential.ID,
		"passkey_public_key":      credential.PublicKey,
		"passkey_sign_count":      signCount,
		"passkey_backup_eligible": credential.Flags.BackupEligible,
		"passkey_backup_state":    credential.Flags.BackupState,
		"updated_at":              time.Now().UTC(),
	}).Error; errUpdate != nil {
		httperr.Internal(c, "store passkey failed", errUpdate)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// disablePasskeyRequest carries the password confirming passkey removal.
type disablePasskeyRequest struct {
	Password string `json:"password"`
}

// DisablePasskey removes the registered passkey. Accounts with a password must confirm it.
func (h *UserHandler) DisablePasskey(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	var body disablePasskeyRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	if !user.HasPasskey() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey not enabled"})
		return
	}
	if user.Password != "" && !security.CheckPassword(user.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "password incorrect"})
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"passkey_id":              nil,
		"passkey_public_key":      nil,
		"passkey_sign_count":      nil,
		"passkey_backup_eligible": nil,
		"passkey_backup_state":    nil,
		"updated_at":              time.Now().UTC(),
	}).Error; errUpdate != nil {
		httperr.Internal(c, "disable passkey failed", errUpdate)
		return
	}
	h.passkeyRegistrations.Delete(strconv.FormatUint(user.ID, 10))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loginPasskeyOptionsRequest defines the request body for starting a passkey login step.
type loginPasskeyOptionsRequest struct {
	MFAToken string `json:"mfa_token" binding:"required"`
}

// LoginPasskeyOptions issues a WebAuthn assertion challenge for a login started by Login.
func (h *AuthHandler) LoginPasskeyOptions(c *gin.Context) {
	if h.webAuthn == nil {
		passkeyUnavailable(c)
		return
	}
	var body loginPasskeyOptionsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	user, ok := h.pendingLoginUser(c, body.MFAToken)
	if !ok {
		return
	}
	if !user.HasPasskey() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey not enabled"})
		return
	}

	assertion, session, errBegin := h.webAuthn.BeginLogin(newWebAuthnUser(user), webauthn.WithUserVerification(protocol.VerificationPreferred))
	if errBegin != nil {
		httperr.Internal(c, "begin passkey login failed", errBegin)
		return
	}
	h.passkeyLogins.Set(body.MFAToken, *session)
	c.JSON(http.StatusOK, assertion)
}

// LoginPasskey completes a login with the authenticator assertion in the request body.
// The mfa_token travels in the query string because the body is the raw credential.
func (h *AuthHandler) LoginPasskey(c *gin.Context) {
	if h.webAuthn == nil {
		passkeyUnavailable(c)
		return
	}
	mfaToken := strings.TrimSpace(c.Query("mfa_token"))
	if mfaToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mfa_token is required"})
		return
	}
	user, ok := h.pendingLoginUser(c, mfaToken)
	if !ok {
		return
	}
	session, ok := h.passkeyLogins.Get(mfaToken)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "passkey login not started"})
		return
	}
	h.passkeyLogins.Delete(mfaToken)

	credential, errFinish := h.webAuthn.FinishLogin(newWebAuthnUser(user), session, c.Request)
	if errFinish != nil {
		log.WithError(errFinish).WithField("user_id", user.ID).Warn("passkey login failed")
		h.mfaLogins.Fail(mfaToken)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "passkey verification failed"})
		return
	}

	signCount := credential.Authenticator.SignCount
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(user).Updates(map[string]any{
		"passkey_sign_count":      signCount,
		"passkey_backup_eligible": credential.Flags.BackupEligible,
		"passkey_backup_state":    credential.Flags.BackupState,
	}).Error; errUpdate != nil {
		log.WithError(errUpdate).WithField("user_id", user.ID).Warn("update passkey sign count failed")
	}

	h.mfaLogins.Delete(mfaToken)
	h.respondWithSession(c, user)
}
