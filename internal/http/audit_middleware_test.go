package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formbase/formbase/internal/audit"
	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func openMiddlewareTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:http_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func auditRouter(conn *gorm.DB, received *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AuditMiddleware(audit.NewLogger(conn)))
	router.POST("/api/v1/forms", func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		*received = len(body)
		c.Status(http.StatusNoContent)
	})
	return router
}

func lastAuditBody(t *testing.T, conn *gorm.DB) string {
	t.Helper()
	var row models.APIAuditLog
	if errFind := conn.Order("id DESC").First(&row).Error; errFind != nil {
		t.Fatalf("load audit row: %v", errFind)
	}
	return string(row.RequestBody)
}

func TestAuditMiddlewareDropsOversizedBody(t *testing.T) {
	conn := openMiddlewareTestDB(t)
	var received int
	router := auditRouter(conn, &received)

	secret := "hunter2-do-not-log"
	body := `{"password":"` + secret + `","notes":"` + strings.Repeat("a", 70<<10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if received != len(body) {
		t.Fatalf("expected handler to read %d bytes, got %d", len(body), received)
	}
	stored := lastAuditBody(t, conn)
	if strings.Contains(stored, secret) {
		t.Fatalf("expected secret to be absent from audit row, got %.200s", stored)
	}
	var marker string
	if errUnmarshal := json.Unmarshal([]byte(stored), &marker); errUnmarshal != nil || marker != audit.TruncatedValue {
		t.Fatalf("expected %q marker, got %.200s", audit.TruncatedValue, stored)
	}
}

func TestAuditMiddlewareRedactsBodyAtLimit(t *testing.T) {
	conn := openMiddlewareTestDB(t)
	var received int
	router := auditRouter(conn, &received)

	prefix := `{"password":"hunter2","notes":"`
	body := prefix + strings.Repeat("a", maxAuditBodyBytes-len(prefix)-2) + `"}`
	if len(body) != maxAuditBodyBytes {
		t.Fatalf("expected body of %d bytes, got %d", maxAuditBodyBytes, len(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms", strings.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), req)

	stored := lastAuditBody(t, conn)
	if strings.Contains(stored, "hunter2") || !strings.Contains(stored, audit.RedactedValue) {
		t.Fatalf("expected redacted password, got %.200s", stored)
	}
	if received != len(body) {
		t.Fatalf("expected handler to read %d bytes, got %d", len(body), received)
	}
}
