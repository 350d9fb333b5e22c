package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound is returned for missing resources and for resources owned by someone else.
var ErrNotFound = errors.New("not found")

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Service implements form and submission operations shared by the session and API-key surfaces.
type Service struct {
	db *gorm.DB
}

// NewService constructs a Service backed by GORM.
func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// FormSummary is a form with its submission count.
type FormSummary struct {
	models.Form
	SubmissionCount int64
}

// CreateFormInput is the payload for creating a form.
type CreateFormInput struct {
	Title                    string `json:"title" binding:"required,min=1,max=200"`
	Description              string `json:"description" binding:"max=2000"`
	ReturnURL                string `json:"return_url" binding:"omitempty,url,max=2048"`
	EnableSubmissions        *bool  `json:"enable_submissions"`
	EnableEmailNotifications *bool  `json:"enable_email_notifications"`
	DefaultSubmissionEmail   string `json:"default_submission_email" binding:"omitempty,email"`
}

// UpdateFormInput is a partial form update. Nil fields are left unchanged.
type UpdateFormInput struct {
	Title                    *string `json:"title" binding:"omitempty,min=1,max=200"`
	Description              *string `json:"description" binding:"omitempty,max=2000"`
	ReturnURL                *string `json:"return_url" binding:"omitempty,max=2048"`
	EnableSubmissions        *bool   `json:"enable_submissions"`
	EnableEmailNotifications *bool   `json:"enable_email_notifications"`
	DefaultSubmissionEmail   *string `json:"default_submission_email"`
}

// Stats summarizes a form's submissions.
type Stats struct {
	Total            int64
	Spam             int64
	Last7Days        int64
	LastSubmissionAt *time.Time
}

// ListOptions filters and paginates submissions.
type ListOptions struct {
	Page  int
	Limit int
	Spam  *bool // Nil returns both spam and non-spam.
}

// SubmissionPage is one page of submissions.
type SubmissionPage struct {
	Items []models.FormData
	Total int64
	Page  int
	Limit int
}

// ListForms returns the user's forms, newest first, with submission counts.
func (s *Service) ListForms(ctx context.Context, userID uint64, search string) ([]FormSummary, error) {
	query := s.db.WithContext(ctx).Model(&models.Form{}).Where("user_id = ?", userID)
	if strings.TrimSpace(search) != "" {
		query = query.Where(dbutil.CaseInsensitiveLikeExpr(s.db, "title"), dbutil.EscapeLikePattern(s.db, search))
	}

	var rows []models.Form
	if errFind := query.Order("created_at DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("forms: list: %w", errFind)
	}
	if len(rows) == 0 {
		return []FormSummary{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var counts []struct {
		FormID string
		Count  int64
	}
	if errCount := s.db.WithContext(ctx).Model(&models.FormData{}).
		Select("form_id, COUNT(*) AS count").
		Where("form_id IN ?", ids).
		Group("form_id").
		Scan(&counts).Error; errCount != nil {
		return nil, fmt.Errorf("forms: count submissions: %w", errCount)
	}
	byForm := make(map[string]int64, len(counts))
	for _, c := range counts {
		byForm[c.FormID] = c.Count
	}

	out := make([]FormSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, FormSummary{Form: row, SubmissionCount: byForm[row.ID]})
	}
	return out, nil
}

// GetForm returns a form owned by userID.
func (s *Service) GetForm(ctx context.Context, userID uint64, id string) (*models.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&form).Error
	switch {
	case err == nil:
		return &form, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("forms: get: %w", err)
	}
}

// LookupForm returns a form by id regardless of owner. Used by the public submission endpoint.
func (s *Service) LookupForm(ctx context.Context, id string) (*models.Form, error) {
	var form models.Form
	err := s.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&form).Error
	switch {
	case err == nil:
		return &form, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("forms: lookup: %w", err)
	}
}

// CreateForm creates a form owned by userID with an empty key set.
func (s *Service) CreateForm(ctx context.Context, userID uint64, in CreateFormInput) (*models.Form, error) {
	form := models.Form{
		ID:                       uuid.NewString(),
		UserID:                   userID,
		Title:                    strings.TrimSpace(in.Title),
		Description:              strings.TrimSpace(in.Description),
		ReturnURL:                strings.TrimSpace(in.ReturnURL),
		Keys:                     models.EncodeKeys(nil),
		EnableSubmissions:        true,
		EnableEmailNotifications: false,
		DefaultSubmissionEmail:   strings.TrimSpace(in.DefaultSubmissionEmail),
	}
	if in.EnableSubmissions != nil {
		form.EnableSubmissions = *in.EnableSubmissions
	}
	if in.EnableEmailNotifications != nil {
		form.EnableEmailNotifications = *in.EnableEmailNotifications
	}
	// Select all columns so explicit false values are not replaced by column defaults.
	if errCreate := s.db.WithContext(ctx).Select("*").Create(&form).Error; errCreate != nil {
		return nil, fmt.Errorf("forms: create: %w", errCreate)
	}
	return &form, nil
}

// UpdateForm applies a partial update to a form owned by userID.
func (s *Service) UpdateForm(ctx context.Context, userID uint64, id string, in UpdateFormInput) (*models.Form, error) {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if in.ReturnURL != nil {
		updates["return_url"] = strings.TrimSpace(*in.ReturnURL)
	}
	if in.EnableSubmissions != nil {
		updates["enable_submissions"] = *in.EnableSubmissions
	}
	if in.EnableEmailNotifications != nil {
		updates["enable_email_notifications"] = *in.EnableEmailNotifications
	}
	if in.DefaultSubmissionEmail != nil {
		updates["default_submission_email"] = strings.TrimSpace(*in.DefaultSubmissionEmail)
	}

	res := s.db.WithContext(ctx).Model(&models.Form{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("forms: update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetForm(ctx, userID, id)
}

// DeleteForm removes a form and all of its submissions.
func (s *Service) DeleteForm(ctx context.Context, userID uint64, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.Form{}).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; errCount != nil {
			return fmt.Errorf("forms: delete lookup: %w", errCount)
		}
		if count == 0 {
			return ErrNotFound
		}
		if errData := tx.Where("form_id = ?", id).Delete(&models.FormData{}).Error; errData != nil {
			return fmt.Errorf("forms: delete submissions: %w", errData)
		}
		if errOnboarding := tx.Model(&models.OnboardingForm{}).Where("form_id = ?", id).Update("form_id", "").Error; errOnboarding != nil {
			return fmt.Errorf("forms: detach onboarding: %w", errOnboarding)
		}
		if errForm := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Form{}).Error; errForm != nil {
			return fmt.Errorf("forms: delete: %w", errForm)
		}
		return nil
	})
}

// FormStats returns submission statistics for a form owned by userID.
func (s *Service) FormStats(ctx context.Context, userID uint64, id string) (*Stats, error) {
	if _, errGet := s.GetForm(ctx, userID, id); errGet != nil {
		return nil, errGet
	}
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.FormData{}).Where("form_id = ?", id)
	}

	var stats Stats
	if errTotal := base().Count(&stats.Total).Error; errTotal != nil {
		return nil, fmt.Errorf("forms: stats total: %w", errTotal)
	}
	if errSpam := base().Where("is_spam = ?", true).Count(&stats.Spam).Error; errSpam != nil {
		return nil, fmt.Errorf("forms: stats spam: %w", errSpam)
	}
	since := time.Now().UTC().AddDate(0, 0, -7)
	if errRecent := base().Where("created_at >= ?", since).Count(&stats.Last7Days).Error; errRecent != nil {
		return nil, fmt.Errorf("forms: stats recent: %w", errRecent)
	}
	var last models.FormData
	errLast := base().Order("created_at DESC").Limit(1).Take(&last).Error
	switch {
	case errLast == nil:
		at := last.CreatedAt
		stats.LastSubmissionAt = &at
	case errors.Is(errLast, gorm.ErrRecordNotFound):
	default:
		return nil, fmt.Errorf("forms: stats last: %w", errLast)
	}
	return &stats, nil
}

// ListSubmissions returns a page of a form's submissions, newest first.
func (s *Service) ListSubmissions(ctx context.Context, userID uint64, formID string, opts ListOptions) (*SubmissionPage, error) {
	if _, errGet := s.GetForm(ctx, userID, formID); errGet != nil {
		return nil, errGet
	}
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.Limit < 1 || opts.Limit > maxPageLimit {
		opts.Limit = defaultPageLimit
	}

	query := s.db.WithContext(ctx).Model(&models.FormData{}).Where("form_id = ?", formID)
	if opts.Spam != nil {
		query = query.Where("is_spam = ?", *opts.Spam)
	}

	page := &SubmissionPage{Page: opts.Page, Limit: opts.Limit}
	if errCount := query.Count(&page.Total).Error; errCount != nil {
		return nil, fmt.Errorf("forms: count submissions: %w", errCount)
	}
	offset := (opts.Page - 1) * opts.Limit
	if errFind := query.Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(opts.Limit).
		Find(&page.Items).Error; errFind != nil {
		return nil, fmt.Errorf("forms: list submissions: %w", errFind)
	}
	if page.Items == nil {
		page.Items = []models.FormData{}
	}
	return page, nil
}

// ExportSubmissions returns the form and all matching submissions, oldest first.
func (s *Service) ExportSubmissions(ctx context.Context, userID uint64, formID string, spam *bool) (*models.Form, []models.FormData, error) {
	form, errGet := s.GetForm(ctx, userID, formID)
	if errGet != nil {
		return nil, nil, errGet
	}
	query := s.db.WithContext(ctx).Where("form_id = ?", formID)
	if spam != nil {
		query = query.Where("is_spam = ?", *spam)
	}
	var rows []models.FormData
	if errFind := query.Order("created_at ASC").Order("id ASC").Find(&rows).Error; errFind != nil {
		return nil, nil, fmt.Errorf("forms: export submissions: %w", errFind)
	}
	return form, rows, nil
}

// ownedSubmission scopes a query to submissions whose form belongs to userID.
func (s *Service) ownedSubmission(ctx context.Context, userID uint64) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.FormData{}).
		Where("form_id IN (?)", s.db.Model(&models.Form{}).Select("id").Where("user_id = ?", userID))
}

// GetSubmission returns a submission whose form belongs to userID.
func (s *Service) GetSubmission(ctx context.Context, userID uint64, id uint64) (*models.FormData, error) {
	var row models.FormData
	err := s.ownedSubmission(ctx, userID).Where("id = ?", id).First(&row).Error
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("forms: get submission: %w", err)
	}
}

// UpdateSpam sets the spam flag and marks it as a manual override.
func (s *Service) UpdateSpam(ctx context.Context, userID uint64, id uint64, isSpam bool) (*models.FormData, error) {
	reason := ""
	if isSpam {
		reason = "manual"
	}
	res := s.ownedSubmission(ctx, userID).Where("id = ?", id).Updates(map[string]any{
		"is_spam":         isSpam,
		"spam_reason":     reason,
		"manual_override": true,
	})
	if res.Error != nil {
		return nil, fmt.Errorf("forms: update spam: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetSubmission(ctx, userID, id)
}

// DeleteSubmission removes a single submission.
func (s *Service) DeleteSubmission(ctx context.Context, userID uint64, id uint64) error {
	res := s.ownedSubmission(ctx, userID).Where("id = ?", id).Delete(&models.FormData{})
	if res.Error != nil {
		return fmt.Errorf("forms: delete submission: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubmissions removes the owned submissions among ids and returns how many were deleted.
// Ids belonging to other users are ignored.
func (s *Service) DeleteSubmissions(ctx context.Context, userID uint64, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.ownedSubmission(ctx, userID).Where("id IN ?", ids).Delete(&models.FormData{})
	if res.Error != nil {
		return 0, fmt.Errorf("forms: delete submissions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
