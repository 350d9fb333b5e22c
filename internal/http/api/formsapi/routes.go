package formsapi

import "github.com/gin-gonic/gin"

// Register mounts the form and submission routes on an authenticated group.
func Register(r gin.IRoutes, h *Handler) {
	r.GET("/forms", h.ListForms)
	r.POST("/forms", h.CreateForm)
	r.GET("/forms/:id", h.GetForm)
	r.PATCH("/forms/:id", h.UpdateForm)
	r.DELETE("/forms/:id", h.DeleteForm)
	r.GET("/forms/:id/stats", h.FormStats)
	r.GET("/forms/:id/submissions", h.ListSubmissions)
	r.GET("/forms/:id/submissions/export", h.ExportSubmissions)

	r.POST("/submissions/delete", h.DeleteSubmissions)
	r.GET("/submissions/:id", h.GetSubmission)
	r.PATCH("/submissions/:id", h.UpdateSpam)
	r.PATCH("/submissions/:id/spam", h.UpdateSpam)
	r.DELETE("/submissions/:id", h.DeleteSubmission)
}
