package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/worker"
)

type stubNotifier struct {
	got []notify.Request
	err error
}

func (s *stubNotifier) Notify(ctx context.Context, req notify.Request) error {
	s.got = append(s.got, req)
	return s.err
}

func newHandler(n Notifier) *NotifyOfficialsHandler {
	return NewNotifyOfficialsHandler(n, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNotifyOfficialsHandler_Handle(t *testing.T) {
	n := &stubNotifier{}
	req := notify.Request{ReportID: uuid.New(), Jurisdiction: "Mandaue City", IssueType: "Streetlight"}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	h := newHandler(n)
	require.Equal(t, worker.JobTypeNotifyOfficials, h.Type())
	require.NoError(t, h.Handle(context.Background(), payload))

	require.Len(t, n.got, 1)
	assert.Equal(t, req, n.got[0])
}

func TestNotifyOfficialsHandler_BadPayloadIsPermanent(t *testing.T) {
	h := newHandler(&stubNotifier{})

	assert.True(t, worker.IsPermanent(h.Handle(context.Background(), []byte("{"))))
	assert.True(t, worker.IsPermanent(h.Handle(context.Background(), []byte(`{"jurisdiction":"Cebu City"}`))))
}

func TestNotifyOfficialsHandler_NotifyFailureIsRetryable(t *testing.T) {
	h := newHandler(&stubNotifier{err: errors.New("db down")})
	payload, _ := json.Marshal(notify.Request{ReportID: uuid.New(), Jurisdiction: "Cebu City"})

	err := h.Handle(context.Background(), payload)
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
}
