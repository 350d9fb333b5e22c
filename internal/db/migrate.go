package db

import (
	"fmt"

	"github.com/formbase/formbase/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for every persisted model.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errMigrate := conn.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.EmailToken{},
		&models.OAuthAccount{},
		&models.Form{},
		&models.FormData{},
		&models.APIKey{},
		&models.APIAuditLog{},
		&models.OnboardingForm{},
	); errMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errMigrate)
	}
	if errIndex := ensureSubmissionIndexes(conn); errIndex != nil {
		return errIndex
	}
	return nil
}

// ensureSubmissionIndexes adds the composite index used by submission listing.
func ensureSubmissionIndexes(conn *gorm.DB) error {
	const indexName = "idx_form_data_form_created"
	if conn.Migrator().HasIndex(&models.FormData{}, indexName) {
		return nil
	}
	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON form_data (form_id, created_at DESC)", indexName)
	if errExec := conn.Exec(stmt).Error; errExec != nil {
		return fmt.Errorf("db: create index %s: %w", indexName, errExec)
	}
	return nil
}
