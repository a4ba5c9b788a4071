package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

const boundary = "==PINREPORT_BOUNDARY=="

// SMTPEmailService delivers mail through an SMTP relay.
type SMTPEmailService struct {
	config    SMTPConfig
	baseURL   string
	templates *template.Template
	logger    *slog.Logger

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPEmailService parses the embedded templates. baseURL is used to
// build links back to the application.
func NewSMTPEmailService(config SMTPConfig, baseURL string, logger *slog.Logger) (*SMTPEmailService, error) {
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	tmpl, err := template.New("email").Funcs(template.FuncMap{
		"currentYear": func() int { return time.Now().Year() },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}

	return &SMTPEmailService{
		config:    config,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		templates: tmpl,
		logger:    logger,
		sendMail:  smtp.SendMail,
	}, nil
}

func (s *SMTPEmailService) SendNewReportEmail(ctx context.Context, msg NewReport) error {
	reportURL := fmt.Sprintf("%s/reports/%s", s.baseURL, msg.ReportID)

	var html bytes.Buffer
	err := s.templates.ExecuteTemplate(&html, "new_report.html", map[string]any{
		"OfficialName": msg.OfficialName,
		"ReporterName": msg.ReporterName,
		"IssueType":    msg.IssueType,
		"Jurisdiction": msg.Jurisdiction,
		"ReportURL":    reportURL,
	})
	if err != nil {
		return fmt.Errorf("render new report email: %w", err)
	}

	text := fmt.Sprintf("Hi %s,\n\n%s filed a new %s report in %s.\n\nOpen the report: %s\n",
		msg.OfficialName, msg.ReporterName, msg.IssueType, msg.Jurisdiction, reportURL)

	return s.send(ctx, Email{
		To:       msg.To,
		Subject:  fmt.Sprintf("New %s report in %s", msg.IssueType, msg.Jurisdiction),
		HTMLBody: html.String(),
		TextBody: text,
	})
}

func (s *SMTPEmailService) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	if err := s.sendMail(addr, auth, s.config.From, []string{email.To}, s.buildMessage(email)); err != nil {
		s.logger.Warn("failed to send email", "to", email.To, "subject", email.Subject, "error", err)
		return fmt.Errorf("send email: %w", err)
	}

	s.logger.Info("email sent", "to", email.To, "subject", email.Subject)
	return nil
}

func (s *SMTPEmailService) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", s.config.FromName, s.config.From)
	fmt.Fprintf(&buf, "To: %s\r\n", email.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", email.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	for _, part := range []struct{ contentType, body string }{
		{"text/plain", email.TextBody},
		{"text/html", email.HTMLBody},
	} {
		fmt.Fprintf(&buf, "--%s\r\n", boundary)
		fmt.Fprintf(&buf, "Content-Type: %s; charset=utf-8\r\n", part.contentType)
		buf.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		buf.WriteString(part.body)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)

	return buf.Bytes()
}

var _ EmailService = (*SMTPEmailService)(nil)
