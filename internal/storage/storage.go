// Package storage stores files uploaded with form submissions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("storage: file too large")

// Uploader persists an uploaded file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader, size int64) (string, error)
}

// DiskUploader writes files below a local directory.
type DiskUploader struct {
	dir      string
	baseURL  string
	maxBytes int64
}

// NewDiskUploader creates dir if needed. baseURL is prefixed to object names to build URLs.
func NewDiskUploader(dir, baseURL string, maxBytes int64) (*DiskUploader, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage: empty dir")
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("storage: create dir: %w", errMkdir)
	}
	return &DiskUploader{
		dir:      dir,
		baseURL:  strings.TrimRight(baseURL, "/"),
		maxBytes: maxBytes,
	}, nil
}

// Dir returns the root directory served for uploads.
func (u *DiskUploader) Dir() string { return u.dir }

// Upload copies r to a new object named <date>/<uuid>-<sanitized name>.
func (u *DiskUploader) Upload(ctx context.Context, name, _ string, r io.Reader, size int64) (string, error) {
	if u.maxBytes > 0 && size > u.maxBytes {
		return "", ErrTooLarge
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return "", errCtx
	}

	object := path.Join(time.Now().UTC().Format("2006/01/02"), uuid.NewString()+"-"+SanitizeFileName(name))
	target := filepath.Join(u.dir, filepath.FromSlash(object))
	if errMkdir := os.MkdirAll(filepath.Dir(target), 0o755); errMkdir != nil {
		return "", fmt.Errorf("storage: create object dir: %w", errMkdir)
	}

	f, errCreate := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errCreate != nil {
		return "", fmt.Errorf("storage: create object: %w", errCreate)
	}
	src := r
	if u.maxBytes > 0 {
		src = io.LimitReader(r, u.maxBytes+1)
	}
	written, errCopy := io.Copy(f, src)
	errClose := f.Close()
	if errCopy == nil && u.maxBytes > 0 && written > u.maxBytes {
		errCopy = ErrTooLarge
	}
	if errCopy == nil {
		errCopy = errClose
	}
	if errCopy != nil {
		_ = os.Remove(target)
		if errors.Is(errCopy, ErrTooLarge) {
			return "", ErrTooLarge
		}
		return "", fmt.Errorf("storage: write object: %w", errCopy)
	}
	return u.baseURL + "/" + object, nil
}

// SanitizeFileName keeps a safe base name made of letters, digits, dot, dash and underscore.
func SanitizeFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, base)
	cleaned = strings.TrimLeft(cleaned, ".")
	if cleaned == "" {
		return "file"
	}
	if len(cleaned) > 100 {
		cleaned = cleaned[len(cleaned)-100:]
	}
	return cleaned
}
