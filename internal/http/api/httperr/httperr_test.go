package httperr

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type sampleRequest struct {
	Title string `json:"title" binding:"required"`
	Email string `json:"contact_email" binding:"omitempty,email"`
	Count int    `json:"count"`
}

func bindAndRespond(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterJSONFieldNames()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	var req sampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BindError(c, err)
	}
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestBindErrorReportsJSONFieldNames(t *testing.T) {
	code, out := bindAndRespond(t, `{"contact_email":"nope"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	fields, _ := out["fields"].(map[string]any)
	if fields["title"] != "is required" {
		t.Fatalf("expected title required, got %v", out)
	}
	if fields["contact_email"] != "must be a valid email address" {
		t.Fatalf("expected email error, got %v", out)
	}
}

func TestBindErrorTypeMismatch(t *testing.T) {
	code, out := bindAndRespond(t, `{"title":"x","count":"many"}`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if out["error"] != "validation failed" {
		t.Fatalf("expected validation failed, got %v", out)
	}
}

func TestBindErrorMalformedJSON(t *testing.T) {
	code, out := bindAndRespond(t, `{"title":`)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if out["error"] == nil {
		t.Fatalf("expected error message, got %v", out)
	}
}
