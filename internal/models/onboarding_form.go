package models

import "time"

// OnboardingForm links a user to the form created during onboarding.
type OnboardingForm struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;uniqueIndex"` // Onboarded user.
	FormID string `gorm:"type:text;index"`      // First form, cleared if the form is deleted.

	CompletedAt *time.Time // Set when the stepper is finished.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}
