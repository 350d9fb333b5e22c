package audit

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/formbase/formbase/internal/util"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"gorm.io/datatypes"
)

const (
	// RedactedValue replaces sensitive field values.
	RedactedValue = "[REDACTED]"
	// TruncatedValue stands in for a body too large to capture whole.
	TruncatedValue = "[TRUNCATED]"
	// maxRawBodyBytes caps non-JSON bodies stored as a string.
	maxRawBodyBytes = 4 << 10
)

// TruncatedBody is stored in place of a body that exceeded the capture limit.
// A partial body cannot be redacted reliably, so none of it is kept.
func TruncatedBody() datatypes.JSON {
	return rawBodyString([]byte(TruncatedValue))
}

// SanitizeBody prepares a request body for storage. JSON objects have sensitive top-level
// fields redacted and other JSON is kept. Malformed JSON is replaced by RedactedValue.
// Anything else is stored as a truncated JSON string with sensitive form fields redacted.
// Empty bodies yield nil.
func SanitizeBody(body []byte) datatypes.JSON {
	if len(body) == 0 {
		return nil
	}
	if !gjson.ValidBytes(body) {
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return rawBodyString([]byte(RedactedValue))
		}
		return rawBodyString([]byte(redactFormBody(string(body))))
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return datatypes.JSON(append([]byte(nil), body...))
	}

	out := string(body)
	var errSet error
	parsed.ForEach(func(key, _ gjson.Result) bool {
		if !util.IsSensitiveField(key.String()) {
			return true
		}
		out, errSet = sjson.Set(out, escapePathKey(key.String()), RedactedValue)
		return errSet == nil
	})
	if errSet != nil {
		return rawBodyString([]byte(RedactedValue))
	}
	return datatypes.JSON(out)
}

// rawBodyString encodes b as a JSON string, truncated on a rune boundary.
func rawBodyString(b []byte) datatypes.JSON {
	if len(b) > maxRawBodyBytes {
		b = b[:maxRawBodyBytes]
		for len(b) > 0 && !utf8.Valid(b) {
			b = b[:len(b)-1]
		}
	}
	encoded, errMarshal := json.Marshal(string(b))
	if errMarshal != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}

// redactFormBody replaces the values of sensitive fields in a urlencoded body.
func redactFormBody(raw string) string {
	parts := strings.Split(raw, "&")
	for i, part := range parts {
		key, _, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		decoded, errUnescape := url.QueryUnescape(key)
		if errUnescape != nil {
			decoded = key
		}
		if util.IsSensitiveField(decoded) {
			parts[i] = key + "=" + url.QueryEscape(RedactedValue)
		}
	}
	return strings.Join(parts, "&")
}

// escapePathKey escapes gjson path metacharacters in a literal key.
func escapePathKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%', ':':
			out = append(out, '\\')
		}
		out = append(out, key[i])
	}
	return string(out)
}
