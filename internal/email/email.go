// Package email sends transactional mail to officials.
package email

import (
	"context"
)

// EmailService sends the messages the report pipeline produces.
type EmailService interface {
	// SendNewReportEmail tells an official that a report was filed in
	// their jurisdiction.
	SendNewReportEmail(ctx context.Context, msg NewReport) error
}

// NewReport is the content of a new-report alert.
type NewReport struct {
	To           string
	OfficialName string
	ReporterName string
	IssueType    string
	Jurisdiction string
	ReportID     string
}

// Email is a single outgoing message.
type Email struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// SMTPConfig configures the SMTP relay. Username and Password may be empty
// for local relays such as Mailhog.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

const (
	DefaultFromEmail = "noreply@pinreport.local"
	DefaultFromName  = "PinReport"
)
