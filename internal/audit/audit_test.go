package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"
)

func openAuditTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:audit_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func TestSanitizeBodyRedactsSensitiveFields(t *testing.T) {
	body := []byte(`{"title":"Contact","password":"hunter2","apiKey":"fb_x","nested":{"token":"keep"}}`)
	out := SanitizeBody(body)

	parsed := gjson.ParseBytes(out)
	if parsed.Get("title").String() != "Contact" {
		t.Fatalf("expected title kept, got %s", out)
	}
	if parsed.Get("password").String() != RedactedValue {
		t.Fatalf("expected password redacted, got %s", out)
	}
	if parsed.Get("apiKey").String() != RedactedValue {
		t.Fatalf("expected apiKey redacted, got %s", out)
	}
	if parsed.Get("nested.token").String() != "keep" {
		t.Fatalf("expected nested values untouched, got %s", out)
	}
}

func TestSanitizeBodyHandlesKeysWithPathCharacters(t *testing.T) {
	out := SanitizeBody([]byte(`{"user.password":"x","a":1}`))
	var decoded map[string]any
	if errUnmarshal := json.Unmarshal(out, &decoded); errUnmarshal != nil {
		t.Fatalf("expected valid json, got %s", out)
	}
	if decoded["user.password"] != RedactedValue {
		t.Fatalf("expected dotted key redacted, got %v", decoded)
	}
	if _, nested := decoded["user"]; nested {
		t.Fatalf("expected no nested object to be created, got %v", decoded)
	}
}

func TestSanitizeBodyNonJSON(t *testing.T) {
	if out := SanitizeBody(nil); out != nil {
		t.Fatalf("expected nil for empty body, got %s", out)
	}

	out := SanitizeBody([]byte("name=a&b=c"))
	var s string
	if errUnmarshal := json.Unmarshal(out, &s); errUnmarshal != nil {
		t.Fatalf("expected json string, got %s", out)
	}
	if s != "name=a&b=c" {
		t.Fatalf("unexpected raw body %q", s)
	}

	long := SanitizeBody([]byte(strings.Repeat("x", 10000)))
	if errUnmarshal := json.Unmarshal(long, &s); errUnmarshal != nil {
		t.Fatalf("expected json string, got error %v", errUnmarshal)
	}
	if len(s) != maxRawBodyBytes {
		t.Fatalf("expected truncation to %d bytes, got %d", maxRawBodyBytes, len(s))
	}
}

func TestSanitizeBodyNeverStoresMalformedJSON(t *testing.T) {
	out := SanitizeBody([]byte(`{"password":"hunter2","notes":"cut off`))
	if strings.Contains(string(out), "hunter2") {
		t.Fatalf("expected password to be dropped, got %s", out)
	}
	var s string
	if errUnmarshal := json.Unmarshal(out, &s); errUnmarshal != nil || s != RedactedValue {
		t.Fatalf("expected %q, got %s", RedactedValue, out)
	}

	form := SanitizeBody([]byte("email=a%40b.c&password=hunter2"))
	if errUnmarshal := json.Unmarshal(form, &s); errUnmarshal != nil {
		t.Fatalf("expected json string, got %s", form)
	}
	if strings.Contains(s, "hunter2") || !strings.HasPrefix(s, "email=a%40b.c&password=") {
		t.Fatalf("expected urlencoded password to be redacted, got %q", s)
	}

	if marker := TruncatedBody(); !strings.Contains(string(marker), TruncatedValue) {
		t.Fatalf("expected truncated marker, got %s", marker)
	}
}

func TestLoggerRecordPersistsRow(t *testing.T) {
	conn := openAuditTestDB(t)
	logger := NewLogger(conn)
	keyID, userID := uint64(7), uint64(3)

	logger.Record(context.Background(), Entry{
		APIKeyID:   &keyID,
		UserID:     &userID,
		Method:     "POST",
		Path:       "/api/v1/forms",
		StatusCode: 201,
		Duration:   42 * time.Millisecond,
		RequestID:  "req-1",
	})
	logger.Record(context.Background(), Entry{Method: "GET", Path: "/api/v1/me", StatusCode: 401})

	var rows []models.APIAuditLog
	if errFind := conn.Order("id ASC").Find(&rows).Error; errFind != nil {
		t.Fatalf("load rows: %v", errFind)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].APIKeyID == nil || *rows[0].APIKeyID != keyID || rows[0].DurationMS != 42 || rows[0].RequestID != "req-1" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[1].APIKeyID != nil || rows[1].StatusCode != 401 {
		t.Fatalf("expected anonymous 401 row, got %+v", rows[1])
	}
}

func TestRetentionCleanerDeletesOldRows(t *testing.T) {
	conn := openAuditTestDB(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	old := models.APIAuditLog{Method: "GET", Path: "/old", StatusCode: 200, CreatedAt: now.AddDate(0, 0, -100)}
	recent := models.APIAuditLog{Method: "GET", Path: "/recent", StatusCode: 200, CreatedAt: now.AddDate(0, 0, -1)}
	if errCreate := conn.Create(&old).Error; errCreate != nil {
		t.Fatalf("create old: %v", errCreate)
	}
	if errCreate := conn.Create(&recent).Error; errCreate != nil {
		t.Fatalf("create recent: %v", errCreate)
	}

	cleaner := NewRetentionCleaner(conn, 90)
	cleaner.now = func() time.Time { return now }
	cleaner.batchSize = 1

	if deleted := cleaner.CleanupOnce(context.Background()); deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}
	var paths []string
	conn.Model(&models.APIAuditLog{}).Pluck("path", &paths)
	if len(paths) != 1 || paths[0] != "/recent" {
		t.Fatalf("expected only recent row to remain, got %v", paths)
	}
}

func TestNewRetentionCleanerDisabled(t *testing.T) {
	if NewRetentionCleaner(nil, 90) != nil {
		t.Fatalf("expected nil cleaner without db")
	}
	if NewRetentionCleaner(openAuditTestDB(t), 0) != nil {
		t.Fatalf("expected nil cleaner when retention disabled")
	}
}
