package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/repository"
)

func TestConfig_Validate(t *testing.T) {
	valid := DefaultConfig()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default config", func(c *Config) {}, false},
		{"concurrency too low", func(c *Config) { c.Concurrency = 0 }, true},
		{"concurrency too high", func(c *Config) { c.Concurrency = 101 }, true},
		{"poll interval too short", func(c *Config) { c.PollInterval = 500 * time.Millisecond }, true},
		{"job timeout too short", func(c *Config) { c.JobTimeout = 0 }, true},
		{"stale threshold too short", func(c *Config) { c.StaleJobThreshold = 30 * time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(NewPermanentError(context.Canceled)))
	assert.True(t, IsPermanent(errors.Join(errors.New("ctx"), NewPermanentError(context.Canceled))))
	assert.False(t, IsPermanent(context.Canceled))
	assert.False(t, IsPermanent(nil))
	assert.NoError(t, NewPermanentError(nil))

	err := Permanentf("decode payload: %w", context.Canceled)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Job processing
// =============================================================================

var jobColumns = []string{
	"id", "job_type", "payload", "status", "priority", "attempts", "max_attempts",
	"error_message", "scheduled_at", "started_at", "completed_at", "created_at",
}

type funcHandler struct {
	jobType string
	fn      func(ctx context.Context, payload []byte) error
}

func (h funcHandler) Type() string { return h.jobType }

func (h funcHandler) Handle(ctx context.Context, payload []byte) error { return h.fn(ctx, payload) }

func newTestWorker(t *testing.T) (*Worker, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	w, err := New(db, repository.New(db), DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return w, mock
}

func expectClaim(mock sqlmock.Sqlmock, id uuid.UUID, jobType, payload string) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
			id.String(), jobType, []byte(payload), "pending", 10, 0, 5, nil, now, nil, nil, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'running'")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
}

func TestProcessNextJob_Success(t *testing.T) {
	w, mock := newTestWorker(t)
	id := uuid.New()

	var got []byte
	w.Register(funcHandler{jobType: "echo", fn: func(ctx context.Context, payload []byte) error {
		got = payload
		return nil
	}})

	expectClaim(mock, id, "echo", `{"x":1}`)
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'completed'")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, w.processNextJob(context.Background(), w.logger))
	assert.JSONEq(t, `{"x":1}`, string(got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNextJob_EmptyQueue(t *testing.T) {
	w, mock := newTestWorker(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := w.processNextJob(context.Background(), w.logger)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNextJob_UnknownTypeFailsPermanently(t *testing.T) {
	w, mock := newTestWorker(t)
	id := uuid.New()

	expectClaim(mock, id, "mystery", `{}`)
	mock.ExpectExec(regexp.QuoteMeta("SET status = CASE")).
		WithArgs(true, sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := w.processNextJob(context.Background(), w.logger)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessNextJob_TransientFailureIsRetried(t *testing.T) {
	w, mock := newTestWorker(t)
	id := uuid.New()

	w.Register(funcHandler{jobType: "flaky", fn: func(ctx context.Context, payload []byte) error {
		return errors.New("upstream timeout")
	}})

	expectClaim(mock, id, "flaky", `{}`)
	mock.ExpectExec(regexp.QuoteMeta("SET status = CASE")).
		WithArgs(false, sql.NullString{String: "upstream timeout", Valid: true}, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.Error(t, w.processNextJob(context.Background(), w.logger))
	require.NoError(t, mock.ExpectationsWereMet())
}

// =============================================================================
// Enqueue
// =============================================================================

type recordingEnqueuer struct {
	params []repository.EnqueueJobParams
}

func (r *recordingEnqueuer) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	r.params = append(r.params, arg)
	return repository.Job{ID: uuid.New(), JobType: arg.JobType, Payload: arg.Payload}, nil
}

func TestNotificationQueue_Enqueue(t *testing.T) {
	rec := &recordingEnqueuer{}
	q := NewNotificationQueue(rec, time.Minute)
	req := notify.Request{ReportID: uuid.New(), Jurisdiction: "Cebu City", IssueType: "Flooding"}

	before := time.Now()
	require.NoError(t, q.EnqueueNotification(context.Background(), req))

	require.Len(t, rec.params, 1)
	p := rec.params[0]
	assert.Equal(t, JobTypeNotifyOfficials, p.JobType)
	assert.Equal(t, int32(PriorityHigh), p.Priority)
	assert.True(t, p.ScheduledAt.After(before.Add(59*time.Second)))

	var back notify.Request
	require.NoError(t, json.Unmarshal(p.Payload, &back))
	assert.Equal(t, req, back)
}
