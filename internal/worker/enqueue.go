package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/repository"
)

const (
	JobTypeNotifyOfficials = "notify_officials"
)

const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// Enqueuer inserts job rows. *repository.Queries satisfies it.
type Enqueuer interface {
	EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error)
}

type EnqueueOption func(*repository.EnqueueJobParams)

func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob marshals payload and inserts a pending job.
func EnqueueJob(ctx context.Context, q Enqueuer, jobType string, payload any, opts ...EnqueueOption) (repository.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     data,
		Priority:    PriorityNormal,
		MaxAttempts: 5,
		ScheduledAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	return job, nil
}

// NotificationQueue schedules a retry of the official fan-out for a report
// whose direct notification failed.
type NotificationQueue struct {
	q     Enqueuer
	delay time.Duration
}

func NewNotificationQueue(q Enqueuer, delay time.Duration) *NotificationQueue {
	return &NotificationQueue{q: q, delay: delay}
}

func (n *NotificationQueue) EnqueueNotification(ctx context.Context, req notify.Request) error {
	_, err := EnqueueJob(ctx, n.q, JobTypeNotifyOfficials, req, WithDelay(n.delay), WithPriority(PriorityHigh))
	return err
}
