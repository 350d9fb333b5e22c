package models

import "time"

// Email token purposes.
const (
	EmailTokenVerifyEmail   = "verify_email"
	EmailTokenResetPassword = "reset_password"
)

// EmailToken is a single-use token mailed to a user.
type EmailToken struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Target user.
	User   *User  `gorm:"foreignKey:UserID"` // Target user record.

	Purpose   string     `gorm:"type:text;not null;index"`       // Token purpose.
	TokenHash string     `gorm:"type:text;not null;uniqueIndex"` // SHA-256 of the mailed token.
	ExpiresAt time.Time  `gorm:"not null"`                       // Expiry.
	UsedAt    *time.Time // Consumption timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
