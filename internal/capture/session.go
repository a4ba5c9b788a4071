// Package capture drives a single camera capture from live preview to a
// confirmed still.
//
// A Session moves through IDLE -> STREAMING -> FROZEN -> CONFIRMED -> CLOSED,
// with FROZEN -> STREAMING on retake and any state -> CLOSED on cancel. The
// video device is held only while STREAMING. Every exit path stops the
// stream, so a closed session never holds the device.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/metrics"
)

// =============================================================================
// States
// =============================================================================

type State int

const (
	StateIdle State = iota
	StateStreaming
	StateFrozen
	StateConfirmed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateFrozen:
		return "frozen"
	case StateConfirmed:
		return "confirmed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// =============================================================================
// Collaborators
// =============================================================================

// Stream is a live video stream holding the device lock until Stop.
type Stream interface {
	// Frame snapshots the current video frame.
	Frame() (image.Image, error)
	// Stop stops all tracks. It may return before the device is released;
	// Done is closed once it has been.
	Stop()
	Done() <-chan struct{}
}

// VideoSource opens exclusive streams on a camera device.
type VideoSource interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Preparer turns an encoded still into an uploadable photo.
type Preparer interface {
	Prepare(ctx context.Context, blob domain.Blob) domain.PreparedMedia
}

// =============================================================================
// Session
// =============================================================================

// Session is one camera capture. It is safe for concurrent use, but callers
// should treat it as a single user's modal: one action at a time.
type Session struct {
	source   VideoSource
	preparer Preparer
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	stream    Stream
	prev      Stream
	still     image.Image
	acquiring bool
	closing   chan struct{}
}

// NewSession creates an idle capture session.
func NewSession(source VideoSource, preparer Preparer, logger *slog.Logger) *Session {
	return &Session{
		source:   source,
		preparer: preparer,
		logger:   logger,
		now:      time.Now,
		state:    StateIdle,
		closing:  make(chan struct{}),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HoldsDevice reports whether the session currently owns a live stream.
func (s *Session) HoldsDevice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Open starts the live preview. If the camera cannot be acquired the session
// closes and a *CaptureError is returned; the caller should fall back to file
// selection.
func (s *Session) Open(ctx context.Context) error {
	return s.startStream(ctx, "open", StateIdle)
}

// Capture freezes the current frame and releases the device.
func (s *Session) Capture() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return s.transitionError("capture")
	}

	frame, err := s.stream.Frame()
	if err != nil {
		return &CaptureError{Reason: ReasonUnknown, Err: fmt.Errorf("snapshot frame: %w", err)}
	}

	s.releaseStream()
	s.still = frame
	s.state = StateFrozen
	return nil
}

// Retake discards the still and restarts the live preview. Failure to
// reacquire the camera closes the session rather than leaving it frozen.
func (s *Session) Retake(ctx context.Context) error {
	return s.startStream(ctx, "retake", StateFrozen)
}

// startStream acquires a stream without holding s.mu, so Cancel can close the
// session while the previous stream is still releasing the device.
func (s *Session) startStream(ctx context.Context, action string, from State) error {
	s.mu.Lock()
	if s.state != from || s.acquiring {
		defer s.mu.Unlock()
		return s.transitionError(action)
	}
	s.acquiring = true
	prev := s.prev
	s.mu.Unlock()

	stream, err := s.acquire(ctx, prev)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquiring = false

	if s.state == StateClosed {
		if stream != nil {
			stream.Stop()
		}
		return ErrSessionClosed
	}
	if err != nil {
		s.closeLocked("error")
		return err
	}
	if prev != nil && s.prev == prev {
		s.prev = nil
	}
	s.stream = stream
	s.still = nil
	s.state = StateStreaming
	return nil
}

// Confirm encodes the frozen still as JPEG, hands it to the preparer and
// closes the session.
func (s *Session) Confirm(ctx context.Context) (domain.PreparedMedia, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFrozen || s.acquiring {
		return domain.PreparedMedia{}, s.transitionError("confirm")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, s.still, imaging.JPEG, imaging.JPEGQuality(domain.CaptureJPEGQuality)); err != nil {
		s.closeLocked("error")
		return domain.PreparedMedia{}, &CaptureError{Reason: ReasonUnknown, Err: fmt.Errorf("encode still: %w", err)}
	}

	s.state = StateConfirmed
	blob := domain.Blob{
		Filename:    fmt.Sprintf("capture-%d.jpg", s.now().UnixMilli()),
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}
	prepared := s.preparer.Prepare(ctx, blob)

	s.closeLocked("confirmed")
	return prepared, nil
}

// Cancel closes the session from any state. It is idempotent.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked("cancelled")
}

// acquire opens a stream once prev has fully released the device. Closing the
// session aborts the wait.
func (s *Session) acquire(ctx context.Context, prev Stream) (Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	if prev != nil {
		select {
		case <-prev.Done():
		case <-ctx.Done():
			return nil, &CaptureError{Reason: ReasonBusy, Err: ctx.Err()}
		}
	}

	stream, err := s.source.Acquire(ctx)
	if err != nil {
		cerr := &CaptureError{Reason: classify(err), Err: err}
		s.logger.Warn("camera acquisition failed", "reason", cerr.Reason, "error", err)
		return nil, cerr
	}
	return stream, nil
}

func (s *Session) releaseStream() {
	if s.stream == nil {
		return
	}
	s.stream.Stop()
	s.prev = s.stream
	s.stream = nil
}

func (s *Session) closeLocked(result string) {
	if s.state == StateClosed {
		return
	}
	s.releaseStream()
	s.still = nil
	s.state = StateClosed
	close(s.closing)
	metrics.CaptureSessions.WithLabelValues(result).Inc()
}

func (s *Session) transitionError(action string) error {
	return fmt.Errorf("%s from %s: %w", action, s.state, ErrInvalidTransition)
}

// =============================================================================
// Errors
// =============================================================================

// Sentinel errors a VideoSource returns so failures can be classified.
var (
	ErrDeviceBusy       = errors.New("video device busy")
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrUnsupported      = errors.New("camera not supported")
)

// ErrInvalidTransition is returned when an action is not valid in the
// session's current state.
var ErrInvalidTransition = errors.New("invalid capture transition")

// ErrSessionClosed is returned by Open or Retake when Cancel closed the
// session while a stream was being acquired.
var ErrSessionClosed = errors.New("capture session closed")

type Reason string

const (
	ReasonBusy             Reason = "busy"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonUnsupported      Reason = "unsupported"
	ReasonUnknown          Reason = "unknown"
)

// CaptureError reports why the camera could not be used.
type CaptureError struct {
	Reason Reason
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s: %v", e.Reason, e.Err)
	}
	return "capture " + string(e.Reason)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, ErrDeviceBusy):
		return ReasonBusy
	case errors.Is(err, ErrPermissionDenied):
		return ReasonPermissionDenied
	case errors.Is(err, ErrUnsupported):
		return ReasonUnsupported
	default:
		return ReasonUnknown
	}
}
