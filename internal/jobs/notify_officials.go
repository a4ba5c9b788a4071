package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/worker"
)

// Notifier is the fan-out the job retries.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) error
}

// NotifyOfficialsHandler retries official notification for a report whose
// direct fan-out failed at submission time.
type NotifyOfficialsHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

func NewNotifyOfficialsHandler(notifier Notifier, logger *slog.Logger) *NotifyOfficialsHandler {
	return &NotifyOfficialsHandler{notifier: notifier, logger: logger}
}

func (h *NotifyOfficialsHandler) Type() string {
	return worker.JobTypeNotifyOfficials
}

func (h *NotifyOfficialsHandler) Handle(ctx context.Context, payload []byte) error {
	var req notify.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return worker.Permanentf("invalid payload: %w", err)
	}
	if req.ReportID == uuid.Nil || req.Jurisdiction == "" {
		return worker.NewPermanentError(errors.New("payload missing report id or jurisdiction"))
	}

	h.logger.Info("retrying official notification",
		"report_id", req.ReportID,
		"jurisdiction", req.Jurisdiction,
	)

	if err := h.notifier.Notify(ctx, req); err != nil {
		return fmt.Errorf("notify officials: %w", err)
	}
	return nil
}
