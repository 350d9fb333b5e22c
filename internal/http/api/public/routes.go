package public

import (
	apihttp "github.com/formbase/formbase/internal/http"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the submission endpoint under /api/s.
func RegisterRoutes(r *gin.Engine, h *SubmissionHandler) {
	if r == nil || h == nil {
		return
	}
	group := r.Group("/api/s")
	group.Use(apihttp.SubmissionCORS())
	group.OPTIONS("/:id", func(*gin.Context) {})
	group.POST("/:id", h.Submit)
}
