package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/formbase/formbase/internal/access"
	"github.com/gin-gonic/gin"
)

type stubAuthenticator struct {
	principal *access.Principal
	err       error
}

func (s *stubAuthenticator) Authenticate(_ context.Context, _ *http.Request) (*access.Principal, error) {
	return s.principal, s.err
}

func runRequestWithMiddleware(t *testing.T, middleware gin.HandlerFunc, handler gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware)
	router.GET("/*path", handler)

	responseRecorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forms", nil)
	router.ServeHTTP(responseRecorder, req)

	return responseRecorder
}

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

func TestAPIKeyAuthMiddlewareMapsInvalidKeyToUnauthorized(t *testing.T) {
	auth := &stubAuthenticator{err: access.ErrInvalidAPIKey}

	responseRecorder := runRequestWithMiddleware(t, APIKeyAuthMiddleware(auth), noContent)

	if responseRecorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", responseRecorder.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(responseRecorder.Body.Bytes(), &body)
	if body["error"] != "Invalid or missing API key" {
		t.Fatalf("unexpected error body %v", body)
	}
}

func TestAPIKeyAuthMiddlewareMapsStoreErrorToInternal(t *testing.T) {
	auth := &stubAuthenticator{err: errors.New("db down")}

	responseRecorder := runRequestWithMiddleware(t, APIKeyAuthMiddleware(auth), noContent)

	if responseRecorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", responseRecorder.Code)
	}
}

func TestAPIKeyAuthMiddlewareInjectsPrincipal(t *testing.T) {
	auth := &stubAuthenticator{principal: &access.Principal{APIKeyID: 9, UserID: 4, KeyName: "ci"}}
	var gotUser, gotKey uint64

	responseRecorder := runRequestWithMiddleware(t, APIKeyAuthMiddleware(auth), func(c *gin.Context) {
		gotUser = ContextUint64(c, ContextUserID)
		gotKey = ContextUint64(c, ContextAPIKeyID)
		c.Status(http.StatusNoContent)
	})

	if responseRecorder.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", responseRecorder.Code)
	}
	if gotUser != 4 || gotKey != 9 {
		t.Fatalf("expected user 4 key 9, got user %d key %d", gotUser, gotKey)
	}
}
