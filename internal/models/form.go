package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Form is a user-owned endpoint that accepts submissions.
type Form struct {
	ID string `gorm:"type:text;primaryKey"` // Public form identifier used in submission URLs.

	UserID uint64 `gorm:"not null;index"`    // Owning user.
	User   *User  `gorm:"foreignKey:UserID"` // Owning user record.

	Title       string `gorm:"type:text;not null"` // Display title.
	Description string `gorm:"type:text"`          // Optional description.
	ReturnURL   string `gorm:"type:text"`          // Redirect target for browser submissions.

	Keys datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"` // Union of field names ever submitted.

	EnableSubmissions        bool   `gorm:"not null;default:true"`  // Whether new submissions are accepted.
	EnableEmailNotifications bool   `gorm:"not null;default:false"` // Whether the owner is mailed on submit.
	DefaultSubmissionEmail   string `gorm:"type:text"`              // Notification recipient override.

	Submissions []FormData `gorm:"foreignKey:FormID;constraint:OnDelete:CASCADE"` // Received submissions.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update or submission timestamp.
}

// KeyList decodes the stored field names. Malformed values decode to an empty list.
func (f *Form) KeyList() []string {
	if f == nil || len(f.Keys) == 0 {
		return []string{}
	}
	var keys []string
	if errUnmarshal := json.Unmarshal(f.Keys, &keys); errUnmarshal != nil {
		return []string{}
	}
	if keys == nil {
		return []string{}
	}
	return keys
}

// EncodeKeys encodes field names for the Keys column.
func EncodeKeys(keys []string) datatypes.JSON {
	if keys == nil {
		keys = []string{}
	}
	raw, errMarshal := json.Marshal(keys)
	if errMarshal != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}
