package models

import "time"

// Session is a server-side record backing a signed session token.
type Session struct {
	ID string `gorm:"type:text;primaryKey"` // Session identifier embedded in the token.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user record.

	ExpiresAt time.Time `gorm:"not null;index"` // Hard expiry.
	UserAgent string    `gorm:"type:text"`      // Client user agent at sign-in.
	IPAddress string    `gorm:"type:text"`      // Client address at sign-in.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the session is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
