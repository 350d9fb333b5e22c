package models

import "time"

// APIKey is a bearer credential for the v1 API. Only a one-way hash of the key is stored.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`    // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"` // Associated user record.

	Name      string `gorm:"type:text;not null"`             // Display name for the key.
	KeyHash   string `gorm:"type:text;not null;uniqueIndex"` // SHA-256 of the raw key.
	KeyPrefix string `gorm:"type:text;not null"`             // Leading characters for display.

	ExpiresAt  *time.Time // Optional expiration timestamp.
	LastUsedAt *time.Time // Last successful usage time.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// Expired reports whether the key is past its expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Status returns "expired", "expiring" (within 7 days) or "active".
func (k *APIKey) Status() string {
	now := time.Now()
	if k.Expired(now) {
		return "expired"
	}
	if k.ExpiresAt != nil && k.ExpiresAt.Before(now.AddDate(0, 0, 7)) {
		return "expiring"
	}
	return "active"
}
