package formsapi

import (
	"encoding/json"
	"time"

	"github.com/formbase/formbase/internal/forms"
	"github.com/formbase/formbase/internal/models"
	"github.com/gin-gonic/gin"
)

// FormView renders a form for API responses.
func FormView(form *models.Form) gin.H {
	return gin.H{
		"id":                         form.ID,
		"title":                      form.Title,
		"description":                form.Description,
		"return_url":                 form.ReturnURL,
		"keys":                       form.KeyList(),
		"enable_submissions":         form.EnableSubmissions,
		"enable_email_notifications": form.EnableEmailNotifications,
		"default_submission_email":   form.DefaultSubmissionEmail,
		"created_at":                 form.CreatedAt,
		"updated_at":                 form.UpdatedAt,
	}
}

// FormSummaryView renders a form list entry.
func FormSummaryView(summary *forms.FormSummary) gin.H {
	view := FormView(&summary.Form)
	view["submission_count"] = summary.SubmissionCount
	return view
}

// SubmissionView renders a submission. Data is passed through untouched.
func SubmissionView(row *models.FormData) gin.H {
	data := json.RawMessage(row.Data)
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return gin.H{
		"id":              row.ID,
		"form_id":         row.FormID,
		"data":            data,
		"is_spam":         row.IsSpam,
		"spam_reason":     row.SpamReason,
		"manual_override": row.ManualOverride,
		"created_at":      row.CreatedAt,
	}
}

// StatsView renders form statistics.
func StatsView(stats *forms.Stats) gin.H {
	var last *time.Time
	if stats.LastSubmissionAt != nil {
		t := stats.LastSubmissionAt.UTC()
		last = &t
	}
	return gin.H{
		"total":              stats.Total,
		"spam":               stats.Spam,
		"last_7_days":        stats.Last7Days,
		"last_submission_at": last,
	}
}

// PageView renders a page of submissions.
func PageView(page *forms.SubmissionPage) gin.H {
	items := make([]gin.H, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, SubmissionView(&page.Items[i]))
	}
	totalPages := int64(0)
	if page.Limit > 0 {
		totalPages = (page.Total + int64(page.Limit) - 1) / int64(page.Limit)
	}
	return gin.H{
		"items":       items,
		"total":       page.Total,
		"page":        page.Page,
		"limit":       page.Limit,
		"total_pages": totalPages,
	}
}
