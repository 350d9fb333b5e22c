package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// FormData is one received submission. Data is stored as an opaque JSON object.
type FormData struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	FormID string `gorm:"type:text;not null;index"` // Parent form.
	Form   *Form  `gorm:"foreignKey:FormID"`        // Parent form record.

	Data datatypes.JSON `gorm:"type:jsonb;not null"` // Submitted fields keyed by name.

	IsSpam         bool   `gorm:"not null;default:false;index"` // Spam flag.
	SpamReason     string `gorm:"type:text"`                    // Why the submission was flagged.
	ManualOverride bool   `gorm:"not null;default:false"`       // Spam flag was set by the owner.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Receive timestamp.
}

// TableName keeps the historical table name.
func (FormData) TableName() string { return "form_data" }

// Fields decodes the stored submission data.
func (d *FormData) Fields() map[string]any {
	out := map[string]any{}
	if d == nil || len(d.Data) == 0 {
		return out
	}
	if errUnmarshal := json.Unmarshal(d.Data, &out); errUnmarshal != nil {
		return map[string]any{}
	}
	return out
}
