package audit

import (
	"context"
	"time"

	"github.com/formbase/formbase/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recordTimeout bounds a single audit insert.
const recordTimeout = 5 * time.Second

// Entry describes one v1 API call.
type Entry struct {
	APIKeyID    *uint64
	UserID      *uint64
	Method      string
	Path        string
	StatusCode  int
	Duration    time.Duration
	IPAddress   string
	UserAgent   string
	RequestID   string
	RequestBody datatypes.JSON
}

// Logger persists audit entries.
type Logger struct {
	db *gorm.DB
}

// NewLogger constructs a Logger backed by GORM.
func NewLogger(db *gorm.DB) *Logger { return &Logger{db: db} }

// Record inserts an audit row. Failures are logged and never surface to the caller.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil || l.db == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	row := models.APIAuditLog{
		APIKeyID:    entry.APIKeyID,
		UserID:      entry.UserID,
		Method:      entry.Method,
		Path:        entry.Path,
		StatusCode:  entry.StatusCode,
		DurationMS:  entry.Duration.Milliseconds(),
		IPAddress:   entry.IPAddress,
		UserAgent:   entry.UserAgent,
		RequestID:   entry.RequestID,
		RequestBody: entry.RequestBody,
	}
	if errCreate := l.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		log.WithError(errCreate).WithFields(log.Fields{
			"method":     entry.Method,
			"path":       entry.Path,
			"request_id": entry.RequestID,
		}).Warn("audit: record failed")
	}
}
