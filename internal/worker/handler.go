package worker

import (
	"context"
	"errors"
	"fmt"
)

// JobHandler runs the jobs of one type. The server registers
// jobs.NotifyOfficialsHandler, which replays an official fan-out that failed
// during submission.
type JobHandler interface {
	// Type is stored in jobs.job_type by the enqueuer.
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// PermanentError fails a job on its current attempt. Use it for payloads that
// will never decode and for job types with no handler; a notification that
// failed on a database or network error should be returned plainly so it is
// retried with backoff.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err. A nil err stays nil.
func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf formats a PermanentError; %w is honoured.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}
