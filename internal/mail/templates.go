package mail

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// Field is one row of a submission notification.
type Field struct {
	Name  string
	Value string
}

// VerifyEmailMessage builds the email-verification message.
func VerifyEmailMessage(to, name, link string) (Message, error) {
	data := map[string]any{"Name": name, "Link": link}
	return render(to, "Verify your email address", "verify_email", data)
}

// PasswordResetMessage builds the password-reset message.
func PasswordResetMessage(to, name, link string) (Message, error) {
	data := map[string]any{"Name": name, "Link": link}
	return render(to, "Reset your password", "reset_password", data)
}

// SubmissionNotificationMessage builds the new-submission notification.
func SubmissionNotificationMessage(to, formTitle, dashboardLink string, fields []Field) (Message, error) {
	data := map[string]any{"FormTitle": formTitle, "Link": dashboardLink, "Fields": fields}
	subject := fmt.Sprintf("New submission for %s", strings.TrimSpace(formTitle))
	return render(to, subject, "submission", data)
}

func render(to, subject, name string, data map[string]any) (Message, error) {
	var text, html bytes.Buffer
	if errText := textTemplates.ExecuteTemplate(&text, name+".txt", data); errText != nil {
		return Message{}, fmt.Errorf("mail: render %s text: %w", name, errText)
	}
	if errHTML := htmlTemplates.ExecuteTemplate(&html, name+".html", data); errHTML != nil {
		return Message{}, fmt.Errorf("mail: render %s html: %w", name, errHTML)
	}
	return Message{To: to, Subject: subject, TextBody: text.String(), HTMLBody: html.String()}, nil
}
