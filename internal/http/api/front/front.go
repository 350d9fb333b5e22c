// Package front mounts the session-authenticated API used by the bundled web app under /api/trpc.
package front

import (
	"errors"

	"github.com/formbase/formbase/internal/config"
	"github.com/formbase/formbase/internal/forms"
	"github.com/formbase/formbase/internal/http/api/formsapi"
	"github.com/formbase/formbase/internal/http/api/front/handlers"
	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/mail"
	"github.com/formbase/formbase/internal/security"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies wires the front routes.
type Dependencies struct {
	DB           *gorm.DB
	JWT          config.JWTConfig
	CookieSecure bool
	PublicURL    string
	Mailer       mail.Mailer
	Forms        *forms.Service
}

// RegisterFrontRoutes registers public and session-protected routes.
func RegisterFrontRoutes(r *gin.Engine, deps Dependencies) {
	if r == nil || deps.DB == nil || deps.Forms == nil {
		return
	}
	httperr.RegisterJSONFieldNames()

	sessions := handlers.NewSessionManager(deps.DB, deps.JWT, deps.CookieSecure)
	front := r.Group("/api/trpc")

	webAuthn, errWebAuthn := security.NewWebAuthn(deps.PublicURL)
	if errWebAuthn != nil {
		log.WithError(errWebAuthn).Warn("passkeys disabled")
		webAuthn = nil
	}

	authHandler := handlers.NewAuthHandler(deps.DB, sessions, deps.Mailer, deps.PublicURL, webAuthn)
	front.POST("/auth/signup", authHandler.Signup)
	front.POST("/auth/login", authHandler.Login)
	front.POST("/auth/login/totp", authHandler.LoginTOTP)
	front.POST("/auth/login/passkey/options", authHandler.LoginPasskeyOptions)
	front.POST("/auth/login/passkey", authHandler.LoginPasskey)
	front.GET("/auth/session", authHandler.Session)
	front.POST("/auth/verify-email", authHandler.VerifyEmail)
	front.POST("/auth/password/forgot", authHandler.ForgotPassword)
	front.POST("/auth/password/reset", authHandler.ResetPassword)

	authed := front.Group("")
	authed.Use(sessionAuthMiddleware(sessions))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/verify-email/resend", authHandler.ResendVerification)

	userHandler := handlers.NewUserHandler(deps.DB, sessions, webAuthn)
	authed.GET("/user/me", userHandler.Me)
	authed.PATCH("/user/me", userHandler.UpdateMe)
	authed.PUT("/user/me/password", userHandler.ChangePassword)
	authed.DELETE("/user/me", userHandler.DeleteMe)
	authed.GET("/user/me/accounts", userHandler.Accounts)
	authed.DELETE("/user/me/accounts/:id", userHandler.UnlinkAccount)
	authed.GET("/user/me/mfa", userHandler.MFAStatus)
	authed.POST("/user/me/mfa/totp/prepare", userHandler.PrepareTOTP)
	authed.POST("/user/me/mfa/totp/confirm", userHandler.ConfirmTOTP)
	authed.POST("/user/me/mfa/totp/disable", userHandler.DisableTOTP)
	authed.POST("/user/me/mfa/passkey/prepare", userHandler.PreparePasskey)
	authed.POST("/user/me/mfa/passkey/confirm", userHandler.ConfirmPasskey)
	authed.POST("/user/me/mfa/passkey/disable", userHandler.DisablePasskey)

	formsapi.Register(authed, formsapi.NewHandler(deps.Forms))

	apiKeyHandler := handlers.NewAPIKeyHandler(deps.DB)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.POST("/api-keys", apiKeyHandler.Create)
	authed.PATCH("/api-keys/:id", apiKeyHandler.Update)
	authed.DELETE("/api-keys/:id", apiKeyHandler.Delete)

	onboardingHandler := handlers.NewOnboardingHandler(deps.DB, deps.Forms)
	authed.GET("/onboarding", onboardingHandler.Get)
	authed.POST("/onboarding/form", onboardingHandler.SetForm)
	authed.POST("/onboarding/complete", onboardingHandler.Complete)
}

// sessionAuthMiddleware validates the session token and loads the user into context.
func sessionAuthMiddleware(sessions *handlers.SessionManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, user, errResolve := sessions.Resolve(c)
		if errResolve != nil {
			if errors.Is(errResolve, handlers.ErrNoSession) {
				httperr.Unauthorized(c)
				return
			}
			httperr.Internal(c, "resolve session failed", errResolve)
			return
		}

		c.Set("userID", user.ID)
		c.Set("sessionID", session.ID)
		c.Next()
	}
}
