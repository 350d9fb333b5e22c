package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/formbase/formbase/internal/forms"
	"github.com/formbase/formbase/internal/http/api/httperr"
	"github.com/formbase/formbase/internal/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OnboardingHandler tracks the onboarding stepper state.
type OnboardingHandler struct {
	db    *gorm.DB
	forms *forms.Service
}

// NewOnboardingHandler constructs an OnboardingHandler.
func NewOnboardingHandler(db *gorm.DB, svc *forms.Service) *OnboardingHandler {
	return &OnboardingHandler{db: db, forms: svc}
}

func (h *OnboardingHandler) ensure(c *gin.Context, userID uint64) (*models.OnboardingForm, error) {
	ctx := c.Request.Context()
	row := models.OnboardingForm{UserID: userID}
	if errCreate := h.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; errCreate != nil {
		return nil, errCreate
	}
	var out models.OnboardingForm
	if errFind := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&out).Error; errFind != nil {
		return nil, errFind
	}
	return &out, nil
}

func serializeOnboarding(row *models.OnboardingForm) gin.H {
	return gin.H{
		"form_id":      row.FormID,
		"completed":    row.CompletedAt != nil,
		"completed_at": row.CompletedAt,
	}
}

// Get returns the onboarding state, creating it on first access.
func (h *OnboardingHandler) Get(c *gin.Context) {
	row, err := h.ensure(c, getUserID(c))
	if err != nil {
		httperr.Internal(c, "load onboarding failed", err)
		return
	}
	c.JSON(http.StatusOK, serializeOnboarding(row))
}

// setOnboardingFormRequest links the first form.
type setOnboardingFormRequest struct {
	FormID string `json:"form_id" binding:"required"`
}

// SetForm records the form created during onboarding. The form must belong to the user.
func (h *OnboardingHandler) SetForm(c *gin.Context) {
	userID := getUserID(c)
	var body setOnboardingFormRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		httperr.BindError(c, errBind)
		return
	}
	if _, errGet := h.forms.GetForm(c.Request.Context(), userID, body.FormID); errGet != nil {
		if errors.Is(errGet, forms.ErrNotFound) {
			httperr.NotFound(c)
			return
		}
		httperr.Internal(c, "load onboarding form failed", errGet)
		return
	}
	row, err := h.ensure(c, userID)
	if err != nil {
		httperr.Internal(c, "load onboarding failed", err)
		return
	}
	if errUpdate := h.db.WithContext(c.Request.Context()).Model(row).Update("form_id", body.FormID).Error; errUpdate != nil {
		httperr.Internal(c, "update onboarding failed", errUpdate)
		return
	}
	row.FormID = body.FormID
	c.JSON(http.StatusOK, serializeOnboarding(row))
}

// Complete marks onboarding as finished. Repeated calls keep the first completion time.
func (h *OnboardingHandler) Complete(c *gin.Context) {
	row, err := h.ensure(c, getUserID(c))
	if err != nil {
		httperr.Internal(c, "load onboarding failed", err)
		return
	}
	if row.CompletedAt == nil {
		now := time.Now().UTC()
		if errUpdate := h.db.WithContext(c.Request.Context()).Model(row).Update("completed_at", now).Error; errUpdate != nil {
			httperr.Internal(c, "complete onboarding failed", errUpdate)
			return
		}
		row.CompletedAt = &now
	}
	c.JSON(http.StatusOK, serializeOnboarding(row))
}
