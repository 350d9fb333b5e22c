package models

import (
	"time"

	"gorm.io/datatypes"
)

// APIAuditLog records a single v1 API call. Rows are append-only.
type APIAuditLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	APIKeyID *uint64 `gorm:"index"` // Authenticated key, nil when authentication failed.
	UserID   *uint64 `gorm:"index"` // Key owner.

	Method     string `gorm:"type:text;not null"` // HTTP method.
	Path       string `gorm:"type:text;not null"` // Request path.
	StatusCode int    `gorm:"not null;index"`     // Response status.
	DurationMS int64  `gorm:"not null;default:0"` // Handler latency in milliseconds.
	IPAddress  string `gorm:"type:text"`          // Client address.
	UserAgent  string `gorm:"type:text"`          // Client user agent.
	RequestID  string `gorm:"type:text;index"`    // Correlates with request logs.

	RequestBody datatypes.JSON `gorm:"type:jsonb"` // Sanitized request body.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Request timestamp.
}
