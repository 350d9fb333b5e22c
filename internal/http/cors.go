package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SubmissionCORS attaches permissive CORS headers to every response of the public
// submission endpoint and answers preflight requests with an empty 200.
func SubmissionCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
