// Package export renders submissions as CSV or JSON documents.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/models"
)

// CreatedAtColumn is appended to the CSV header after the form keys.
const CreatedAtColumn = "createdAt"

// Content types and file extensions for each format.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// CreateCSVContent renders one header row from keys plus a createdAt column, and one row per
// submission. Missing fields and nulls are empty cells, strings are written as-is and every
// other value is JSON encoded without flattening.
func CreateCSVContent(keys []string, submissions []models.FormData) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, 0, len(keys)+1)
	header = append(header, keys...)
	header = append(header, CreatedAtColumn)
	if errWrite := w.Write(header); errWrite != nil {
		return "", fmt.Errorf("export: write csv header: %w", errWrite)
	}

	for i := range submissions {
		fields := submissions[i].Fields()
		record := make([]string, 0, len(header))
		for _, key := range keys {
			cell, errCell := csvCell(fields[key])
			if errCell != nil {
				return "", fmt.Errorf("export: encode field %q: %w", key, errCell)
			}
			record = append(record, cell)
		}
		record = append(record, submissions[i].CreatedAt.UTC().Format(time.RFC3339))
		if errWrite := w.Write(record); errWrite != nil {
			return "", fmt.Errorf("export: write csv row: %w", errWrite)
		}
	}

	w.Flush()
	if errFlush := w.Error(); errFlush != nil {
		return "", fmt.Errorf("export: flush csv: %w", errFlush)
	}
	return buf.String(), nil
}

func csvCell(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		raw, errMarshal := marshalNoEscape(v, "")
		if errMarshal != nil {
			return "", errMarshal
		}
		return string(raw), nil
	}
}

// CreateJSONContent renders the raw data object of every submission as a 2-space indented array.
func CreateJSONContent(submissions []models.FormData) (string, error) {
	items := make([]json.RawMessage, 0, len(submissions))
	for i := range submissions {
		data := submissions[i].Data
		if len(data) == 0 {
			data = []byte("{}")
		}
		items = append(items, json.RawMessage(data))
	}
	raw, errMarshal := marshalNoEscape(items, "  ")
	if errMarshal != nil {
		return "", fmt.Errorf("export: encode json: %w", errMarshal)
	}
	return string(raw), nil
}

// marshalNoEscape encodes v without HTML escaping so text round-trips unchanged.
func marshalNoEscape(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if errEncode := enc.Encode(v); errEncode != nil {
		return nil, errEncode
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// FileName builds a download file name from a form title.
func FileName(title, format string) string {
	base := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, strings.TrimSpace(title))
	if base == "" {
		base = "submissions"
	}
	return fmt.Sprintf("%s-%s.%s", base, time.Now().UTC().Format("2006-01-02"), format)
}
