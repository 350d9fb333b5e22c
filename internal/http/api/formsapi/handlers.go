// Package formsapi exposes form and submission operations over HTTP. The same handlers back the
// session-authenticated app API and the API-key authenticated v1 API; both place the caller's
// user id in the gin context before these run.
package formsapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/formbase/formbase/internal/export"
	"github.com/formbase/formbase/internal/forms"
	apihttp "github.com/formbase/formbase/internal/http"
	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/gin-gonic/gin"
)

// Handler serves form and submission endpoints.
type Handler struct {
	svc *forms.Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *forms.Service) *Handler {
	httperr.RegisterJSONFieldNames()
	return &Handler{svc: svc}
}

func userID(c *gin.Context) (uint64, bool) {
	id := apihttp.ContextUint64(c, apihttp.ContextUserID)
	if id == 0 {
		httperr.Unauthorized(c)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	if errors.Is(err, forms.ErrNotFound) {
		httperr.NotFound(c)
		return
	}
	httperr.Internal(c, msg, err)
}

// ListForms handles GET /forms.
func (h *Handler) ListForms(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	rows, err := h.svc.ListForms(c.Request.Context(), uid, c.Query("q"))
	if err != nil {
		httperr.Internal(c, "list forms failed", err)
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, FormSummaryView(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"forms": out})
}

// CreateForm handles POST /forms.
func (h *Handler) CreateForm(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var body forms.CreateFormInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	form, err := h.svc.CreateForm(c.Request.Context(), uid, body)
	if err != nil {
		httperr.Internal(c, "create form failed", err)
		return
	}
	c.JSON(http.StatusCreated, FormView(form))
}

// GetForm handles GET /forms/:id.
func (h *Handler) GetForm(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	form, err := h.svc.GetForm(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.respondError(c, "get form failed", err)
		return
	}
	c.JSON(http.StatusOK, FormView(form))
}

// UpdateForm handles PATCH /forms/:id.
func (h *Handler) UpdateForm(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var body forms.UpdateFormInput
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	if body.ReturnURL != nil && strings.TrimSpace(*body.ReturnURL) != "" && !isAbsoluteHTTPURL(*body.ReturnURL) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":  "validation failed",
			"fields": map[string]string{"return_url": "must be a valid URL"},
		})
		return
	}
	form, err := h.svc.UpdateForm(c.Request.Context(), uid, c.Param("id"), body)
	if err != nil {
		h.respondError(c, "update form failed", err)
		return
	}
	c.JSON(http.StatusOK, FormView(form))
}

// DeleteForm handles DELETE /forms/:id.
func (h *Handler) DeleteForm(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteForm(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.respondError(c, "delete form failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// FormStats handles GET /forms/:id/stats.
func (h *Handler) FormStats(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	stats, err := h.svc.FormStats(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.respondError(c, "form stats failed", err)
		return
	}
	c.JSON(http.StatusOK, StatsView(stats))
}

type listSubmissionsQuery struct {
	Page  int   `form:"page" binding:"omitempty,min=1"`
	Limit int   `form:"limit" binding:"omitempty,min=1,max=100"`
	Spam  *bool `form:"spam"`
}

// ListSubmissions handles GET /forms/:id/submissions.
func (h *Handler) ListSubmissions(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var query listSubmissionsQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	page, err := h.svc.ListSubmissions(c.Request.Context(), uid, c.Param("id"), forms.ListOptions{
		Page:  query.Page,
		Limit: query.Limit,
		Spam:  query.Spam,
	})
	if err != nil {
		h.respondError(c, "list submissions failed", err)
		return
	}
	c.JSON(http.StatusOK, PageView(page))
}

type exportQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=csv json"`
	Spam   *bool  `form:"spam"`
}

// ExportSubmissions handles GET /forms/:id/submissions/export?format=csv|json.
func (h *Handler) ExportSubmissions(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var query exportQuery
	if errBind := c.ShouldBindQuery(&query); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	format := query.Format
	if format == "" {
		format = export.FormatCSV
	}

	form, rows, err := h.svc.ExportSubmissions(c.Request.Context(), uid, c.Param("id"), query.Spam)
	if err != nil {
		h.respondError(c, "export submissions failed", err)
		return
	}

	var content string
	if format == export.FormatJSON {
		content, err = export.CreateJSONContent(rows)
	} else {
		content, err = export.CreateCSVContent(form.KeyList(), rows)
	}
	if err != nil {
		httperr.Internal(c, "render export failed", err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(form.Title, format)+`"`)
	c.Data(http.StatusOK, export.ContentType(format), []byte(content))
}

func submissionID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil || id == 0 {
		httperr.NotFound(c)
		return 0, false
	}
	return id, true
}

// GetSubmission handles GET /submissions/:id.
func (h *Handler) GetSubmission(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := submissionID(c)
	if !ok {
		return
	}
	row, err := h.svc.GetSubmission(c.Request.Context(), uid, id)
	if err != nil {
		h.respondError(c, "get submission failed", err)
		return
	}
	c.JSON(http.StatusOK, SubmissionView(row))
}

type updateSpamRequest struct {
	IsSpam *bool `json:"is_spam" binding:"required"`
}

// UpdateSpam handles PATCH /submissions/:id/spam and PATCH /submissions/:id.
func (h *Handler) UpdateSpam(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := submissionID(c)
	if !ok {
		return
	}
	var body updateSpamRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	row, err := h.svc.UpdateSpam(c.Request.Context(), uid, id, *body.IsSpam)
	if err != nil {
		h.respondError(c, "update submission failed", err)
		return
	}
	c.JSON(http.StatusOK, SubmissionView(row))
}

// DeleteSubmission handles DELETE /submissions/:id.
func (h *Handler) DeleteSubmission(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	id, ok := submissionID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteSubmission(c.Request.Context(), uid, id); err != nil {
		h.respondError(c, "delete submission failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type bulkDeleteRequest struct {
	IDs []uint64 `json:"ids" binding:"required,min=1,max=500,dive,gt=0"`
}

// DeleteSubmissions handles POST /submissions/delete.
func (h *Handler) DeleteSubmissions(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var body bulkDeleteRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	deleted, err := h.svc.DeleteSubmissions(c.Request.Context(), uid, body.IDs)
	if err != nil {
		httperr.Internal(c, "bulk delete submissions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func isAbsoluteHTTPURL(raw string) bool {
	u, errParse := url.Parse(strings.TrimSpace(raw))
	if errParse != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
