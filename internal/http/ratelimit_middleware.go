package http

import (
	"net/http"
	"strconv"

	"github.com/formbase/formbase/internal/metrics"
	"github.com/formbase/formbase/internal/ratelimit"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// RateLimitMiddleware limits authenticated API calls per API key. It must run after
// APIKeyAuthMiddleware. Limiter failures let the request through.
func RateLimitMiddleware(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		keyID := ContextUint64(c, ContextAPIKeyID)
		if keyID == 0 {
			c.Next()
			return
		}

		res, errCheck := limiter.Check(c.Request.Context(), "apikey:"+strconv.FormatUint(keyID, 10))
		if errCheck != nil {
			log.WithError(errCheck).Warn("rate limit check failed, allowing request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		if !res.Allowed {
			metrics.RecordRateLimitRejection("api")
			c.Header("Retry-After", strconv.Itoa(res.RetryAfterSeconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": res.RetryAfterSeconds,
			})
			return
		}
		c.Next()
	}
}
