package http

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/formbase/formbase/internal/audit"
	"github.com/formbase/formbase/internal/logging"
	"github.com/formbase/formbase/internal/util"
	"github.com/gin-gonic/gin"
)

// maxAuditBodyBytes is how much of a request body is captured for the audit log.
const maxAuditBodyBytes = 64 << 10

// AuditMiddleware records every call after the handler chain finishes, including rejected ones.
// It must run before authentication so failed attempts are captured.
func AuditMiddleware(logger *audit.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger == nil {
			c.Next()
			return
		}
		start := time.Now()

		var captured []byte
		truncated := false
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			head, errRead := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBodyBytes+1))
			if errRead == nil {
				captured = head
				truncated = len(head) > maxAuditBodyBytes
			}
			c.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(head), c.Request.Body))
		}

		c.Next()

		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + util.MaskSensitiveQuery(raw)
		}
		entry := audit.Entry{
			Method:      c.Request.Method,
			Path:        path,
			StatusCode:  c.Writer.Status(),
			Duration:    time.Since(start),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			RequestID:   logging.GinRequestID(c),
		}
		if truncated {
			entry.RequestBody = audit.TruncatedBody()
		} else {
			entry.RequestBody = audit.SanitizeBody(captured)
		}
		if keyID := ContextUint64(c, ContextAPIKeyID); keyID != 0 {
			entry.APIKeyID = &keyID
		}
		if userID := ContextUint64(c, ContextUserID); userID != 0 {
			entry.UserID = &userID
		}
		logger.Record(c.Request.Context(), entry)
	}
}
