package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/location"
	"github.com/DukeRupert/pinreport/internal/metrics"
	"github.com/DukeRupert/pinreport/internal/notify"
	"github.com/DukeRupert/pinreport/internal/storage"
)

// =============================================================================
// Collaborators
// =============================================================================

// IdentityProvider returns the signed-in user, or nil when there is none.
type IdentityProvider interface {
	CurrentUser(ctx context.Context) (*domain.User, error)
}

// ProfileStore returns a reporter's profile, or nil when none exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ReporterProfile, error)
}

// ReportStore persists reports. PatchMediaRefs replaces the media list in
// a single write.
type ReportStore interface {
	Insert(ctx context.Context, params domain.NewReportParams) (*domain.Report, error)
	PatchMediaRefs(ctx context.Context, id uuid.UUID, refs []string) error
}

// ObjectStore uploads photos and returns their public URI.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// LocationValidator checks a pin against the registered jurisdiction.
type LocationValidator interface {
	Validate(ctx context.Context, coords domain.Coordinates, registered string) (location.Result, error)
}

// Notifier fans a new report out to the jurisdiction's officials.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) error
}

// NotificationQueue schedules a later retry of a failed fan-out.
type NotificationQueue interface {
	EnqueueNotification(ctx context.Context, req notify.Request) error
}

// =============================================================================
// Submission Coordinator
// =============================================================================

// SubmissionResult is a saved report plus anything the reporter should be
// told about it. FailedMedia lists the photos that could not be attached.
type SubmissionResult struct {
	Report      *domain.Report `json:"report"`
	FailedMedia []string       `json:"failed_media"`
	Warnings    []string       `json:"warnings"`
}

// SubmissionCoordinator turns a draft into a stored report.
type SubmissionCoordinator interface {
	// Submit validates the draft, checks the reporter's profile and pin,
	// saves the report, then attaches photos and notifies officials.
	//
	// Errors before the report is saved abort the submission:
	// *domain.ValidationError, *domain.ProfileIncompleteError,
	// *domain.JurisdictionMismatchError and *domain.PersistenceError. Once
	// saved, photo and notification failures never fail the call.
	Submit(ctx context.Context, draft domain.ReportDraft) (*SubmissionResult, error)
}

// SubmissionDeps are the collaborators of a SubmissionCoordinator. Notifier
// and Queue may be nil.
type SubmissionDeps struct {
	Identity  IdentityProvider
	Profiles  ProfileStore
	Reports   ReportStore
	Objects   ObjectStore
	Validator LocationValidator
	Notifier  Notifier
	Queue     NotificationQueue
}

// SubmissionConfig tunes the post-save stages.
type SubmissionConfig struct {
	UploadConcurrency int
	// BackgroundTimeout bounds the work done after the report is saved.
	// That work is detached from the caller's cancellation.
	BackgroundTimeout time.Duration
}

func DefaultSubmissionConfig() SubmissionConfig {
	return SubmissionConfig{
		UploadConcurrency: 4,
		BackgroundTimeout: 2 * time.Minute,
	}
}

type submissionCoordinator struct {
	deps   SubmissionDeps
	config SubmissionConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewSubmissionCoordinator creates a SubmissionCoordinator.
func NewSubmissionCoordinator(deps SubmissionDeps, config SubmissionConfig, logger *slog.Logger) SubmissionCoordinator {
	if config.UploadConcurrency < 1 {
		config.UploadConcurrency = 1
	}
	if config.BackgroundTimeout <= 0 {
		config.BackgroundTimeout = DefaultSubmissionConfig().BackgroundTimeout
	}
	return &submissionCoordinator{
		deps:   deps,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

func (c *submissionCoordinator) Submit(ctx context.Context, draft domain.ReportDraft) (*SubmissionResult, error) {
	const op = "SubmissionCoordinator.Submit"

	start := time.Now()
	defer func() { metrics.SubmissionDuration.Observe(time.Since(start).Seconds()) }()

	if err := draft.Validate(op); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	user, err := c.deps.Identity.CurrentUser(ctx)
	if err != nil {
		return nil, domain.Internal(err, op, "Could not verify your session")
	}
	if user == nil {
		metrics.SubmissionsTotal.WithLabelValues("unauthorized").Inc()
		return nil, domain.Unauthorized(op, "You must be signed in to submit a report")
	}

	// 1. Registered jurisdiction
	profile, err := c.deps.Profiles.GetProfile(ctx, user.ID)
	if err != nil {
		c.logger.Error("failed to load reporter profile", "error", err, "op", op, "user_id", user.ID)
		return nil, domain.Internal(err, op, "Could not load your profile")
	}
	if !profile.HasJurisdiction() {
		metrics.SubmissionsTotal.WithLabelValues("profile_incomplete").Inc()
		return nil, &domain.ProfileIncompleteError{Op: op, UserID: user.ID.String()}
	}
	registered := strings.TrimSpace(profile.Jurisdiction)

	// 2. Pin check
	var warnings []string
	if draft.Coordinates != nil {
		res, err := c.deps.Validator.Validate(ctx, *draft.Coordinates, registered)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}
		if !res.Matched {
			metrics.SubmissionsTotal.WithLabelValues("jurisdiction_mismatch").Inc()
			return nil, &domain.JurisdictionMismatchError{
				Op:         op,
				Resolved:   res.ResolvedJurisdiction,
				Registered: registered,
			}
		}
	}

	// 3. Persist
	report, err := c.deps.Reports.Insert(ctx, domain.NewReportParams{
		ReporterID:   user.ID,
		IssueType:    strings.TrimSpace(draft.IssueType),
		Priority:     strings.TrimSpace(draft.Priority),
		LocationText: draft.Location(),
		Coordinates:  draft.Coordinates,
		Jurisdiction: registered,
		Description:  strings.TrimSpace(draft.Description),
	})
	if err != nil {
		c.logger.Error("failed to persist report", "error", err, "op", op, "user_id", user.ID)
		metrics.SubmissionsTotal.WithLabelValues("persistence_failed").Inc()
		return nil, &domain.PersistenceError{Op: op, Err: err}
	}
	c.logger.Info("report saved",
		"report_id", report.ID,
		"user_id", user.ID,
		"jurisdiction", registered,
		"media_count", len(draft.Media),
	)

	// The report is durable now. Finish even if the caller goes away.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.BackgroundTimeout)
	defer cancel()

	// 4-5. Photos
	failed := c.attachMedia(bg, report, draft.Media)
	if len(failed) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"Your report was saved, but %d photo(s) could not be attached: %s",
			len(failed), strings.Join(failed, ", "),
		))
	}

	// 6. Officials
	c.notifyOfficials(bg, report, user, profile)

	if len(failed) > 0 {
		metrics.SubmissionsTotal.WithLabelValues("saved_partial").Inc()
	} else {
		metrics.SubmissionsTotal.WithLabelValues("saved").Inc()
	}

	return &SubmissionResult{
		Report:      report,
		FailedMedia: failed,
		Warnings:    warnings,
	}, nil
}

type uploadResult struct {
	key string
	uri string
	err error
}

// attachMedia uploads every photo, then patches the report's media list
// once with the successful URIs. It returns the reporter's filenames for the
// photos that did not make it onto the report.
func (c *submissionCoordinator) attachMedia(ctx context.Context, report *domain.Report, media []domain.PreparedMedia) []string {
	if len(media) == 0 {
		return nil
	}

	names := uniqueFilenames(media)
	results := make([]uploadResult, len(media))
	at := c.now()

	var g errgroup.Group
	g.SetLimit(c.config.UploadConcurrency)
	for i, m := range media {
		g.Go(func() error {
			key := storage.MediaKey(report.ReporterID, report.ID, at, names[i])
			uri, err := c.deps.Objects.Upload(ctx, key, m.Blob.ContentType, m.Blob.Data)
			results[i] = uploadResult{key: key, uri: uri, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var refs, keys, failed []string
	for i, r := range results {
		if r.err != nil {
			metrics.MediaUploads.WithLabelValues("failed").Inc()
			c.logger.Warn("photo upload failed",
				"report_id", report.ID,
				"filename", media[i].DisplayName(),
				"error", r.err,
			)
			failed = append(failed, media[i].DisplayName())
			continue
		}
		metrics.MediaUploads.WithLabelValues("uploaded").Inc()
		refs = append(refs, r.uri)
		keys = append(keys, r.key)
	}

	if len(refs) == 0 {
		return failed
	}

	if err := c.deps.Reports.PatchMediaRefs(ctx, report.ID, refs); err != nil {
		c.logger.Warn("failed to attach photos to report, discarding uploads",
			"report_id", report.ID,
			"count", len(refs),
			"error", err,
		)
		c.discardUploads(ctx, keys)

		failed = failed[:0]
		for _, m := range media {
			failed = append(failed, m.DisplayName())
		}
		return failed
	}

	report.MediaRefs = refs
	return failed
}

func (c *submissionCoordinator) discardUploads(ctx context.Context, keys []string) {
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.deps.Objects.Delete(ctx, key); err != nil {
				c.logger.Warn("failed to delete orphaned upload", "key", key, "error", err)
			}
		}()
	}
	wg.Wait()
}

// notifyOfficials is best-effort: failures are logged and, when a queue is
// configured, handed to the job worker for retry.
func (c *submissionCoordinator) notifyOfficials(ctx context.Context, report *domain.Report, user *domain.User, profile *domain.ReporterProfile) {
	if c.deps.Notifier == nil {
		return
	}

	name := strings.TrimSpace(profile.DisplayName)
	if name == "" {
		name = user.Email
	}
	req := notify.Request{
		ReportID:     report.ID,
		ReporterID:   report.ReporterID,
		Jurisdiction: report.Jurisdiction,
		IssueType:    report.IssueType,
		ReporterName: name,
	}

	err := c.deps.Notifier.Notify(ctx, req)
	if err == nil {
		return
	}
	c.logger.Warn("official notification failed", "report_id", report.ID, "error", err)

	if c.deps.Queue == nil {
		return
	}
	if err := c.deps.Queue.EnqueueNotification(ctx, req); err != nil {
		c.logger.Warn("failed to schedule notification retry", "report_id", report.ID, "error", err)
	}
}

// uniqueFilenames returns one filename per photo, suffixing repeats so no
// two uploads share an object key.
func uniqueFilenames(media []domain.PreparedMedia) []string {
	seen := make(map[string]int, len(media))
	names := make([]string, len(media))
	for i, m := range media {
		name := m.Blob.Filename
		if name == "" {
			name = "photo.jpg"
		}
		n := seen[name]
		seen[name] = n + 1
		if n > 0 {
			ext := filepath.Ext(name)
			name = fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
		}
		names[i] = name
	}
	return names
}
