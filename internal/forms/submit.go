package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	dbutil "github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewSubmission is a submission ready to be stored.
type NewSubmission struct {
	FormID     string
	Data       map[string]any
	IsSpam     bool
	SpamReason string
	FieldOrder []string // Order in which field names appeared; sorted names are used when empty.
}

// RecordSubmission stores a submission, merges its field names into the form's keys and
// bumps the form's updated_at, all in one transaction.
func (s *Service) RecordSubmission(ctx context.Context, in NewSubmission) (*models.FormData, error) {
	data := in.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, errMarshal := json.Marshal(data)
	if errMarshal != nil {
		return nil, fmt.Errorf("forms: encode submission: %w", errMarshal)
	}

	row := models.FormData{
		FormID:     in.FormID,
		Data:       datatypes.JSON(raw),
		IsSpam:     in.IsSpam,
		SpamReason: in.SpamReason,
	}

	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var form models.Form
		query := tx.Model(&models.Form{}).Select("id", "keys").Where("id = ?", in.FormID)
		if !dbutil.IsSQLite(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if errFind := query.First(&form).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("forms: lock form: %w", errFind)
		}

		if errCreate := tx.Create(&row).Error; errCreate != nil {
			return fmt.Errorf("forms: insert submission: %w", errCreate)
		}

		merged := MergeKeys(form.KeyList(), fieldNames(data, in.FieldOrder))
		if errUpdate := tx.Model(&models.Form{}).Where("id = ?", in.FormID).Updates(map[string]any{
			"keys":       models.EncodeKeys(merged),
			"updated_at": time.Now().UTC(),
		}).Error; errUpdate != nil {
			return fmt.Errorf("forms: update keys: %w", errUpdate)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}
	return &row, nil
}

// SortedFieldNames returns the map's keys in lexical order so new keys are appended deterministically.
func SortedFieldNames(data map[string]any) []string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// fieldNames returns the names in data, following order first and then any remaining names sorted.
func fieldNames(data map[string]any, order []string) []string {
	if len(order) == 0 {
		return SortedFieldNames(data)
	}
	names := make([]string, 0, len(data))
	listed := make(map[string]struct{}, len(order))
	for _, name := range order {
		if _, ok := data[name]; !ok {
			continue
		}
		if _, dup := listed[name]; dup {
			continue
		}
		listed[name] = struct{}{}
		names = append(names, name)
	}
	for _, name := range SortedFieldNames(data) {
		if _, ok := listed[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}
