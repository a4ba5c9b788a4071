// Package notify fans a new report out to the officials of its
// jurisdiction.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/pinreport/internal/email"
	"github.com/DukeRupert/pinreport/internal/jurisdiction"
	"github.com/DukeRupert/pinreport/internal/metrics"
	"github.com/DukeRupert/pinreport/internal/repository"
)

// KindNewReport is the notification kind recorded for a new report.
const KindNewReport = "new_report"

// Request describes the report officials are told about.
type Request struct {
	ReportID     uuid.UUID `json:"report_id"`
	ReporterID   uuid.UUID `json:"reporter_id"`
	Jurisdiction string    `json:"jurisdiction"`
	IssueType    string    `json:"issue_type"`
	ReporterName string    `json:"reporter_name"`
}

// Store is the persistence the fan-out needs. *repository.Queries
// satisfies it.
type Store interface {
	ListActiveOfficials(ctx context.Context) ([]repository.Official, error)
	CreateNotification(ctx context.Context, arg repository.CreateNotificationParams) (int64, error)
}

// Service records one notification per matching official and, when a mailer
// is configured, emails them.
type Service struct {
	store   Store
	mailer  email.EmailService
	matcher *jurisdiction.Matcher
	logger  *slog.Logger
}

// NewService creates a fan-out service. mailer may be nil.
func NewService(store Store, mailer email.EmailService, matcher *jurisdiction.Matcher, logger *slog.Logger) *Service {
	if matcher == nil {
		matcher = jurisdiction.Default()
	}
	return &Service{store: store, mailer: mailer, matcher: matcher, logger: logger}
}

// Notify creates a notification for every active official whose
// jurisdiction matches req.Jurisdiction. Notification rows are unique per
// official and report, and only officials whose row is new are emailed, so a
// retry after a partial failure reaches only those it missed. Email delivery
// is best-effort and never makes Notify fail.
func (s *Service) Notify(ctx context.Context, req Request) error {
	officials, err := s.store.ListActiveOfficials(ctx)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("list officials: %w", err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	var errs []error
	notified := 0
	for _, o := range officials {
		if !s.matcher.Compare(o.Jurisdiction, req.Jurisdiction) {
			continue
		}

		inserted, err := s.store.CreateNotification(ctx, repository.CreateNotificationParams{
			OfficialID: o.ID,
			ReportID:   req.ReportID,
			Kind:       KindNewReport,
			Payload:    pqtype.NullRawMessage{RawMessage: payload, Valid: true},
		})
		if err != nil {
			metrics.NotificationsTotal.WithLabelValues("failed").Inc()
			errs = append(errs, fmt.Errorf("notify official %s: %w", o.ID, err))
			continue
		}
		notified++
		if inserted == 0 {
			metrics.NotificationsTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("created").Inc()

		s.sendEmail(ctx, o, req)
	}

	if notified == 0 && len(errs) == 0 {
		s.logger.Info("no officials registered for jurisdiction",
			"jurisdiction", req.Jurisdiction,
			"report_id", req.ReportID,
		)
	}

	return errors.Join(errs...)
}

func (s *Service) sendEmail(ctx context.Context, o repository.Official, req Request) {
	if s.mailer == nil || o.Email == "" {
		return
	}

	err := s.mailer.SendNewReportEmail(ctx, email.NewReport{
		To:           o.Email,
		OfficialName: o.Name,
		ReporterName: req.ReporterName,
		IssueType:    req.IssueType,
		Jurisdiction: req.Jurisdiction,
		ReportID:     req.ReportID.String(),
	})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("email_failed").Inc()
		s.logger.Warn("failed to email official",
			"official_id", o.ID,
			"report_id", req.ReportID,
			"error", err,
		)
	}
}
