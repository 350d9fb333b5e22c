// Package mail sends transactional email.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig holds SMTP server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail through an SMTP relay, upgrading with STARTTLS when offered.
type SMTPMailer struct {
	cfg     SMTPConfig
	timeout time.Duration
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPMailer{cfg: cfg, timeout: 15 * time.Second}
}

// New returns an SMTP mailer when a host is configured and a LogMailer otherwise.
func New(cfg SMTPConfig) Mailer {
	if strings.TrimSpace(cfg.Host) == "" {
		return LogMailer{}
	}
	return NewSMTPMailer(cfg)
}

// Send delivers msg. The context deadline, if any, bounds the whole exchange.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	from, errFrom := netmail.ParseAddress(m.cfg.From)
	if errFrom != nil {
		return fmt.Errorf("mail: invalid from address: %w", errFrom)
	}
	to, errTo := netmail.ParseAddress(msg.To)
	if errTo != nil {
		return fmt.Errorf("mail: invalid recipient: %w", errTo)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	dialer := net.Dialer{Timeout: m.timeout}
	conn, errDial := dialer.DialContext(ctx, "tcp", addr)
	if errDial != nil {
		return fmt.Errorf("mail: dial %s: %w", addr, errDial)
	}
	deadline := time.Now().Add(m.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, errClient := smtp.NewClient(conn, m.cfg.Host)
	if errClient != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: smtp handshake: %w", errClient)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if errTLS := client.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); errTLS != nil {
			return fmt.Errorf("mail: starttls: %w", errTLS)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if errAuth := client.Auth(auth); errAuth != nil {
			return fmt.Errorf("mail: auth: %w", errAuth)
		}
	}
	if errMail := client.Mail(from.Address); errMail != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", errMail)
	}
	if errRcpt := client.Rcpt(to.Address); errRcpt != nil {
		return fmt.Errorf("mail: RCPT TO: %w", errRcpt)
	}
	w, errData := client.Data()
	if errData != nil {
		return fmt.Errorf("mail: DATA: %w", errData)
	}
	if _, errWrite := w.Write(buildMIME(from, to, msg)); errWrite != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write body: %w", errWrite)
	}
	if errClose := w.Close(); errClose != nil {
		return fmt.Errorf("mail: finish body: %w", errClose)
	}
	return client.Quit()
}

// buildMIME renders a multipart/alternative message with CRLF line endings.
func buildMIME(from, to *netmail.Address, msg Message) []byte {
	boundary := "fb-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	var b strings.Builder
	header := func(k, v string) { b.WriteString(k + ": " + v + "\r\n") }

	header("From", from.String())
	header("To", to.String())
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", time.Now().UTC().Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@formbase>")
	header("MIME-Version", "1.0")
	if msg.HTMLBody == "" {
		header("Content-Type", "text/plain; charset=utf-8")
		b.WriteString("\r\n")
		b.WriteString(crlf(msg.TextBody))
		return []byte(b.String())
	}
	header("Content-Type", "multipart/alternative; boundary="+boundary)
	b.WriteString("\r\n")
	for _, part := range []struct{ contentType, body string }{
		{"text/plain; charset=utf-8", msg.TextBody},
		{"text/html; charset=utf-8", msg.HTMLBody},
	} {
		b.WriteString("--" + boundary + "\r\n")
		header("Content-Type", part.contentType)
		b.WriteString("\r\n")
		b.WriteString(crlf(part.body))
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

// LogMailer logs messages instead of sending them.
type LogMailer struct{}

// Send logs the recipient and subject.
func (LogMailer) Send(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("mail: empty recipient")
	}
	log.WithFields(log.Fields{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("mail: smtp not configured, message logged")
	log.Debug(msg.TextBody)
	return nil
}
