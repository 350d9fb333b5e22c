package access

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/security"
	"gorm.io/gorm"
)

func openAuthenticatorTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:api_key_authenticator_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func seedAPIKey(t *testing.T, conn *gorm.DB, user *models.User, expiresAt *time.Time) string {
	t.Helper()
	if user.ID == 0 {
		if errCreate := conn.Create(user).Error; errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
	}
	token, prefix, errGen := security.GenerateAPIKey()
	if errGen != nil {
		t.Fatalf("generate key: %v", errGen)
	}
	key := models.APIKey{
		UserID:    user.ID,
		Name:      "ci",
		KeyHash:   security.HashAPIKey(token),
		KeyPrefix: prefix,
		ExpiresAt: expiresAt,
	}
	if errCreate := conn.Create(&key).Error; errCreate != nil {
		t.Fatalf("create key: %v", errCreate)
	}
	return token
}

func TestAuthenticateMissingKey(t *testing.T) {
	auth := NewAPIKeyAuthenticator(openAuthenticatorTestDB(t))
	req := httptest.NewRequest("GET", "/api/v1/forms", nil)

	_, err := auth.Authenticate(context.Background(), req)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestAuthenticateMalformedAndUnknownKeys(t *testing.T) {
	auth := NewAPIKeyAuthenticator(openAuthenticatorTestDB(t))
	unknown, _, _ := security.GenerateAPIKey()

	for _, header := range []string{"Bearer", "Bearer not-a-key", "Basic abc", "Bearer " + unknown} {
		req := httptest.NewRequest("GET", "/api/v1/forms", nil)
		req.Header.Set("Authorization", header)
		_, err := auth.Authenticate(context.Background(), req)
		if !errors.Is(err, ErrInvalidAPIKey) {
			t.Fatalf("header %q: expected ErrInvalidAPIKey, got %v", header, err)
		}
	}
}

func TestAuthenticateExpiredKey(t *testing.T) {
	conn := openAuthenticatorTestDB(t)
	past := time.Now().Add(-time.Hour).UTC()
	token := seedAPIKey(t, conn, &models.User{Email: "expired@example.com"}, &past)

	req := httptest.NewRequest("GET", "/api/v1/forms", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	_, err := NewAPIKeyAuthenticator(conn).Authenticate(context.Background(), req)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey for expired key, got %v", err)
	}
}

func TestAuthenticateDisabledOwner(t *testing.T) {
	conn := openAuthenticatorTestDB(t)
	user := &models.User{Email: "disabled@example.com"}
	token := seedAPIKey(t, conn, user, nil)
	if errUpdate := conn.Model(user).Update("disabled", true).Error; errUpdate != nil {
		t.Fatalf("disable user: %v", errUpdate)
	}

	req := httptest.NewRequest("GET", "/api/v1/forms", nil)
	req.Header.Set("X-API-Key", token)
	_, err := NewAPIKeyAuthenticator(conn).Authenticate(context.Background(), req)
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey for disabled owner, got %v", err)
	}
}

func TestAuthenticateValidKeyAttachesOwnerAndTouchesLastUsed(t *testing.T) {
	conn := openAuthenticatorTestDB(t)
	user := &models.User{Email: "owner@example.com"}
	future := time.Now().Add(24 * time.Hour).UTC()
	token := seedAPIKey(t, conn, user, &future)

	req := httptest.NewRequest("GET", "/api/v1/forms", nil)
	req.Header.Set("Authorization", "bearer "+token)
	principal, err := NewAPIKeyAuthenticator(conn).Authenticate(context.Background(), req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.UserID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, principal.UserID)
	}
	if principal.KeyName != "ci" {
		t.Fatalf("expected key name ci, got %q", principal.KeyName)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		var key models.APIKey
		if errFind := conn.First(&key, principal.APIKeyID).Error; errFind != nil {
			t.Fatalf("load key: %v", errFind)
		}
		if key.LastUsedAt != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected last_used_at to be set")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
