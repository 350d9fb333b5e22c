// Package public serves the unauthenticated submission endpoint used by third-party HTML forms.
package public

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/formbase/formbase/internal/forms"
	"github.com/formbase/formbase/internal/logging"
	"github.com/formbase/formbase/internal/mail"
	"github.com/formbase/formbase/internal/metrics"
	"github.com/formbase/formbase/internal/models"
	"github.com/formbase/formbase/internal/ratelimit"
	"github.com/formbase/formbase/internal/storage"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// SuccessMessage is echoed to non-browser clients.
	SuccessMessage = "Submission successful"

	spamReasonHoneypot = "honeypot"
	notifyTimeout      = 30 * time.Second
)

var errInvalidBody = errors.New("invalid request body")

// Options configures the submission handler.
type Options struct {
	PublicURL     string // Base URL of the dashboard, used for thank-you redirects and mail links.
	HoneypotField string // Hidden field that real users leave empty.
	MaxBodyBytes  int64  // Upper bound for the request body; zero disables the check.
}

// SubmissionHandler accepts submissions for any form.
type SubmissionHandler struct {
	forms    *forms.Service
	uploader storage.Uploader
	mailer   mail.Mailer
	throttle *ratelimit.IPThrottle
	opts     Options

	// notified, when set, receives the result of every async notification.
	notified func(error)
}

// NewSubmissionHandler builds a handler. uploader, mailer and throttle may be nil.
func NewSubmissionHandler(svc *forms.Service, uploader storage.Uploader, mailer mail.Mailer, throttle *ratelimit.IPThrottle, opts Options) *SubmissionHandler {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &SubmissionHandler{forms: svc, uploader: uploader, mailer: mailer, throttle: throttle, opts: opts}
}

// parsedBody holds submitted fields in the order they appeared.
type parsedBody struct {
	data  map[string]any
	order []string
}

func (p *parsedBody) set(name string, value any) {
	if _, exists := p.data[name]; !exists {
		p.order = append(p.order, name)
	}
	p.data[name] = value
}

// add appends a repeated form value, turning the field into a list on the second occurrence.
func (p *parsedBody) add(name, value string) {
	switch existing := p.data[name].(type) {
	case nil:
		p.set(name, value)
	case string:
		p.data[name] = []any{existing, value}
	case []any:
		p.data[name] = append(existing, value)
	}
}

func (p *parsedBody) remove(name string) {
	if _, exists := p.data[name]; !exists {
		return
	}
	delete(p.data, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// Submit handles POST /api/s/:id.
func (h *SubmissionHandler) Submit(c *gin.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.WithFields(log.Fields{
				"form_id":    c.Param("id"),
				"request_id": logging.GinRequestID(c),
				"panic":      recovered,
			}).Error("submission handler panic")
			metrics.RecordSubmission(metrics.OutcomeError)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}()

	if h.throttle != nil && !h.throttle.Allow(c.ClientIP()) {
		metrics.RecordRateLimitRejection("submission")
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
		return
	}

	formID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()
	if h.opts.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes)
	}

	// The form is checked before the body is read: multipart files are uploaded while parsing.
	form, errLookup := h.forms.LookupForm(ctx, formID)
	if errLookup != nil {
		if errors.Is(errLookup, forms.ErrNotFound) {
			metrics.RecordSubmission(metrics.OutcomeRejected)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Form not found"})
			return
		}
		h.fail(c, "lookup form", errLookup)
		return
	}
	if !form.EnableSubmissions {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Form is not accepting submissions"})
		return
	}

	body, errParse := h.parseBody(c)
	if errParse != nil {
		metrics.RecordSubmission(metrics.OutcomeRejected)
		var maxErr *http.MaxBytesError
		if errors.As(errParse, &maxErr) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	isSpam := false
	if field := h.opts.HoneypotField; field != "" {
		if value, ok := body.data[field]; ok {
			isSpam = !isEmptyValue(value)
			body.remove(field)
		}
	}
	spamReason := ""
	if isSpam {
		spamReason = spamReasonHoneypot
	}

	row, errRecord := h.forms.RecordSubmission(ctx, forms.NewSubmission{
		FormID:     form.ID,
		Data:       body.data,
		IsSpam:     isSpam,
		SpamReason: spamReason,
		FieldOrder: body.order,
	})
	if errRecord != nil {
		if errors.Is(errRecord, forms.ErrNotFound) {
			metrics.RecordSubmission(metrics.OutcomeRejected)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Form not found"})
			return
		}
		h.fail(c, "store submission", errRecord)
		return
	}

	if isSpam {
		metrics.RecordSubmission(metrics.OutcomeSpam)
		log.WithFields(log.Fields{"form_id": form.ID, "submission_id": row.ID}).Info("submission flagged as spam")
	} else {
		metrics.RecordSubmission(metrics.OutcomeAccepted)
		if form.EnableEmailNotifications {
			h.notify(ctx, form, body)
		}
	}

	if isBrowserRequest(c.Request) {
		c.Redirect(http.StatusSeeOther, h.redirectTarget(form))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"formId":  form.ID,
		"message": SuccessMessage,
		"data":    body.data,
	})
}

func (h *SubmissionHandler) fail(c *gin.Context, msg string, err error) {
	log.WithError(err).WithFields(log.Fields{
		"form_id":    c.Param("id"),
		"request_id": logging.GinRequestID(c),
	}).Error("submission: " + msg)
	metrics.RecordSubmission(metrics.OutcomeError)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// parseBody reads form encodings first and falls back to a JSON object.
func (h *SubmissionHandler) parseBody(c *gin.Context) (*parsedBody, error) {
	raw, errRead := readNonFileBody(c)
	if errRead != nil {
		return nil, errRead
	}
	if raw == nil {
		// Multipart bodies are streamed part by part.
		return h.parseMultipart(c)
	}

	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if body, errForm := parseURLEncoded(raw); errForm == nil {
			return body, nil
		}
	}
	if body, errJSON := parseJSONObject(raw); errJSON == nil {
		return body, nil
	}
	return nil, errInvalidBody
}

// readNonFileBody buffers the body unless it is multipart, in which case it returns nil.
func readNonFileBody(c *gin.Context) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(c.GetHeader("Content-Type"))
	if mediaType == "multipart/form-data" {
		return nil, nil
	}
	if c.Request.Body == nil {
		return []byte{}, nil
	}
	raw, errRead := io.ReadAll(c.Request.Body)
	if errRead != nil {
		return nil, errRead
	}
	return raw, nil
}

func parseURLEncoded(raw []byte) (*parsedBody, error) {
	body := &parsedBody{data: map[string]any{}}
	for _, pair := range strings.Split(string(raw), "&") {
		if pair == "" {
			continue
		}
		rawName, rawValue, _ := strings.Cut(pair, "=")
		name, errName := url.QueryUnescape(rawName)
		if errName != nil {
			return nil, errName
		}
		value, errValue := url.QueryUnescape(rawValue)
		if errValue != nil {
			return nil, errValue
		}
		if name == "" {
			continue
		}
		body.add(name, value)
	}
	return body, nil
}

func parseJSONObject(raw []byte) (*parsedBody, error) {
	trimmed := bytes.TrimSpace(raw)
	if !gjson.ValidBytes(trimmed) {
		return nil, errInvalidBody
	}
	parsed := gjson.ParseBytes(trimmed)
	if !parsed.IsObject() {
		return nil, errInvalidBody
	}

	data := map[string]any{}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	if errDecode := decoder.Decode(&data); errDecode != nil {
		return nil, errInvalidBody
	}

	body := &parsedBody{data: data}
	seen := make(map[string]struct{}, len(data))
	parsed.ForEach(func(key, _ gjson.Result) bool {
		name := key.String()
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			body.order = append(body.order, name)
		}
		return true
	})
	return body, nil
}

func (h *SubmissionHandler) parseMultipart(c *gin.Context) (*parsedBody, error) {
	reader, errReader := c.Request.MultipartReader()
	if errReader != nil {
		return nil, errReader
	}
	body := &parsedBody{data: map[string]any{}}
	counts := map[string]int{}

	for {
		part, errPart := reader.NextPart()
		if errors.Is(errPart, io.EOF) {
			break
		}
		if errPart != nil {
			return nil, errPart
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			value, errValue := io.ReadAll(part)
			_ = part.Close()
			if errValue != nil {
				return nil, errValue
			}
			body.add(name, string(value))
			continue
		}
		h.storeFile(c.Request.Context(), body, counts, part)
		_ = part.Close()
	}
	return body, nil
}

// storeFile uploads one file part and records its URL under file, image, file_2, ...
// Parts that fail to upload are dropped.
func (h *SubmissionHandler) storeFile(ctx context.Context, body *parsedBody, counts map[string]int, part *multipart.Part) {
	fileName := part.FileName()
	contentType := part.Header.Get("Content-Type")
	if h.uploader == nil {
		log.WithField("field", part.FormName()).Warn("submission file dropped: uploads are not configured")
		_, _ = io.Copy(io.Discard, part)
		return
	}
	publicURL, errUpload := h.uploader.Upload(ctx, fileName, contentType, part, -1)
	if errUpload != nil {
		log.WithError(errUpload).WithFields(log.Fields{
			"field":     part.FormName(),
			"file_name": fileName,
		}).Warn("submission file upload failed")
		_, _ = io.Copy(io.Discard, part)
		return
	}
	class := FileClass(contentType)
	counts[class]++
	body.set(FileKey(class, counts[class]), publicURL)
}

// FileClass returns "image" for image MIME types and "file" otherwise.
func FileClass(contentType string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return "image"
	}
	return "file"
}

// FileKey names the n-th (1-based) uploaded file of a class.
func FileKey(class string, n int) string {
	if n <= 1 {
		return class
	}
	return fmt.Sprintf("%s_%d", class, n)
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		for _, item := range v {
			if !isEmptyValue(item) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// isBrowserRequest reports whether the client is a browser performing a form post.
// Scripted fetches asking for JSON receive the JSON echo even from a browser.
func isBrowserRequest(r *http.Request) bool {
	ua := r.UserAgent()
	if !strings.Contains(ua, "Mozilla/") {
		return false
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return false
	}
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html") {
		return false
	}
	return true
}

func (h *SubmissionHandler) redirectTarget(form *models.Form) string {
	if form.ReturnURL != "" {
		return form.ReturnURL
	}
	return h.opts.PublicURL + "/s/" + url.PathEscape(form.ID) + "/thank-you"
}

// notify mails the form owner without blocking the response.
func (h *SubmissionHandler) notify(ctx context.Context, form *models.Form, body *parsedBody) {
	if h.mailer == nil {
		return
	}
	to := strings.TrimSpace(form.DefaultSubmissionEmail)
	if to == "" && form.User != nil {
		to = form.User.Email
	}
	if to == "" {
		return
	}

	fields := make([]mail.Field, 0, len(body.order))
	for _, name := range body.order {
		fields = append(fields, mail.Field{Name: name, Value: displayValue(body.data[name])})
	}
	link := h.opts.PublicURL + "/dashboard/forms/" + url.PathEscape(form.ID)
	formID, title := form.ID, form.Title
	done := h.notified

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		msg, errRender := mail.SubmissionNotificationMessage(to, title, link, fields)
		errSend := errRender
		if errSend == nil {
			errSend = h.mailer.Send(sendCtx, msg)
		}
		if errSend != nil {
			log.WithError(errSend).WithField("form_id", formID).Warn("submission notification failed")
		}
		if done != nil {
			done(errSend)
		}
	}()
}

func displayValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, errMarshal := json.Marshal(v)
		if errMarshal != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}
