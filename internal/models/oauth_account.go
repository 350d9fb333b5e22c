package models

import "time"

// OAuthAccount links a user to an external identity provider account.
type OAuthAccount struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	UserID uint64 `gorm:"not null;index"`
	User   *User  `gorm:"foreignKey:UserID"`

	Provider          string `gorm:"type:text;not null;uniqueIndex:idx_oauth_provider_account"`
	ProviderAccountID string `gorm:"type:text;not null;uniqueIndex:idx_oauth_provider_account"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

// TableName overrides the default snake-cased name.
func (OAuthAccount) TableName() string { return "oauth_accounts" }
