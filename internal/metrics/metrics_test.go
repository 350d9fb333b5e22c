package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareCountsMatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/forms/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/forms/:id", "200"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/forms/abc", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/forms/:id", "200"))

	if after-before != 1 {
		t.Fatalf("expected one counted request, got %v", after-before)
	}
}

func TestHandlerExposesFormbaseMetrics(t *testing.T) {
	RecordSubmission(OutcomeAccepted)
	RecordRateLimitRejection("api")
	RecordAPIAuthFailure()

	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := w.Body.String()
	for _, name := range []string{"formbase_submissions_total", "formbase_ratelimit_rejections_total", "formbase_api_auth_failures_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
