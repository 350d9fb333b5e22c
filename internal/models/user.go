package models

import "time"

// User represents an account that owns forms and API keys.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Email         string `gorm:"type:text;not null;uniqueIndex"` // Login email address.
	Name          string `gorm:"type:text"`                      // Display name.
	Password      string `gorm:"type:text"`                      // Bcrypt hash, empty for OAuth-only accounts.
	EmailVerified bool   `gorm:"not null;default:false"`         // Whether the email address was confirmed.
	Image         string `gorm:"type:text"`                      // Avatar URL.

	Disabled bool `gorm:"not null;default:false"` // Explicit disable flag.

	TOTPSecret string `gorm:"type:text"` // TOTP secret for two-factor sign-in.

	PasskeyID             []byte  // WebAuthn credential ID.
	PasskeyPublicKey      []byte  // WebAuthn COSE public key bytes.
	PasskeySignCount      *uint32 `gorm:"type:bigint"` // WebAuthn signature counter.
	PasskeyBackupEligible *bool   // WebAuthn backup eligibility flag.
	PasskeyBackupState    *bool   // WebAuthn backup state flag.

	Forms         []Form         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Owned forms.
	APIKeys       []APIKey       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Issued API keys.
	Sessions      []Session      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Active sessions.
	OAuthAccounts []OAuthAccount `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"` // Linked provider accounts.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasTOTP reports whether two-factor sign-in is enabled.
func (u *User) HasTOTP() bool {
	return u != nil && u.TOTPSecret != ""
}

// HasPasskey reports whether a WebAuthn credential is registered.
func (u *User) HasPasskey() bool {
	return u != nil && len(u.PasskeyID) > 0 && len(u.PasskeyPublicKey) > 0
}

// HasMFA reports whether any second factor is enabled.
func (u *User) HasMFA() bool {
	return u.HasTOTP() || u.HasPasskey()
}
