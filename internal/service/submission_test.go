package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/geocode"
	"github.com/DukeRupert/pinreport/internal/location"
	"github.com/DukeRupert/pinreport/internal/notify"
)

// =============================================================================
// Fakes
// =============================================================================

// calls counts every collaborator invocation across fakes.
type calls struct {
	mu    sync.Mutex
	names []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.names)
}

type fakeIdentity struct {
	calls *calls
	user  *domain.User
	err   error
}

func (f *fakeIdentity) CurrentUser(ctx context.Context) (*domain.User, error) {
	f.calls.add("identity")
	return f.user, f.err
}

type fakeProfiles struct {
	calls   *calls
	profile *domain.ReporterProfile
	err     error
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ReporterProfile, error) {
	f.calls.add("profile")
	return f.profile, f.err
}

type fakeReports struct {
	calls     *calls
	insertErr error
	patchErr  error
	inserted  []domain.NewReportParams
	patched   [][]string
}

func (f *fakeReports) Insert(ctx context.Context, params domain.NewReportParams) (*domain.Report, error) {
	f.calls.add("insert")
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, params)
	return &domain.Report{
		ID:           uuid.New(),
		ReporterID:   params.ReporterID,
		IssueType:    params.IssueType,
		Priority:     params.Priority,
		LocationText: params.LocationText,
		Coordinates:  params.Coordinates,
		Jurisdiction: params.Jurisdiction,
		Description:  params.Description,
		MediaRefs:    []string{},
		Status:       domain.ReportStatusPending,
	}, nil
}

func (f *fakeReports) PatchMediaRefs(ctx context.Context, id uuid.UUID, refs []string) error {
	f.calls.add("patch")
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patched = append(f.patched, refs)
	return nil
}

type fakeObjects struct {
	calls   *calls
	mu      sync.Mutex
	failFor map[string]bool
	keys    []string
	deleted []string
}

func (f *fakeObjects) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	f.calls.add("upload")
	f.mu.Lock()
	defer f.mu.Unlock()
	for name := range f.failFor {
		if strings.HasSuffix(key, "-"+name) {
			return "", errors.New("network error")
		}
	}
	f.keys = append(f.keys, key)
	return "https://files.example.com/" + key, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeValidator struct {
	calls  *calls
	result location.Result
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, coords domain.Coordinates, registered string) (location.Result, error) {
	f.calls.add("validate")
	return f.result, f.err
}

type fakeNotifier struct {
	calls *calls
	err   error
	got   []notify.Request
}

func (f *fakeNotifier) Notify(ctx context.Context, req notify.Request) error {
	f.calls.add("notify")
	f.got = append(f.got, req)
	return f.err
}

// stubGeocoder answers every lookup with the same locality.
type stubGeocoder struct {
	city string
}

func (g stubGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (*geocode.Result, error) {
	return &geocode.Result{Address: geocode.Address{
		{Key: "road", Value: "M.L. Quezon National Highway"},
		{Key: "city", Value: g.city},
		{Key: "country", Value: "Philippines"},
	}}, nil
}

type fakeQueue struct {
	got []notify.Request
}

func (f *fakeQueue) EnqueueNotification(ctx context.Context, req notify.Request) error {
	f.got = append(f.got, req)
	return nil
}

type harness struct {
	calls     *calls
	identity  *fakeIdentity
	profiles  *fakeProfiles
	reports   *fakeReports
	objects   *fakeObjects
	validator *fakeValidator
	notifier  *fakeNotifier
	queue     *fakeQueue
}

func newHarness() *harness {
	c := &calls{}
	userID := uuid.New()
	return &harness{
		calls:    c,
		identity: &fakeIdentity{calls: c, user: &domain.User{ID: userID, Email: "juan@example.com"}},
		profiles: &fakeProfiles{calls: c, profile: &domain.ReporterProfile{
			UserID: userID, Jurisdiction: "Cebu City", DisplayName: "Juan dela Cruz",
		}},
		reports:   &fakeReports{calls: c},
		objects:   &fakeObjects{calls: c},
		validator: &fakeValidator{calls: c, result: location.Result{Matched: true, ResolvedJurisdiction: "Cebu City"}},
		notifier:  &fakeNotifier{calls: c},
		queue:     &fakeQueue{},
	}
}

func (h *harness) coordinator() SubmissionCoordinator {
	return h.coordinatorWith(h.validator)
}

func (h *harness) coordinatorWith(validator LocationValidator) SubmissionCoordinator {
	c := NewSubmissionCoordinator(SubmissionDeps{
		Identity:  h.identity,
		Profiles:  h.profiles,
		Reports:   h.reports,
		Objects:   h.objects,
		Validator: validator,
		Notifier:  h.notifier,
		Queue:     h.queue,
	}, DefaultSubmissionConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.(*submissionCoordinator).now = func() time.Time { return time.UnixMilli(1700000000000) }
	return c
}

func photo(name string) domain.PreparedMedia {
	return domain.PreparedMedia{Blob: domain.Blob{Filename: name, ContentType: "image/jpeg", Data: []byte("jpeg")}}
}

func validDraft() domain.ReportDraft {
	return domain.ReportDraft{
		IssueType:   "Pothole",
		Priority:    "High",
		Coordinates: &domain.Coordinates{Lat: 10.2964, Lng: 123.9017},
		Description: "Deep pothole near the market",
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestSubmit_EmptyDescriptionMakesNoCalls(t *testing.T) {
	h := newHarness()
	draft := validDraft()
	draft.Description = "   "

	res, err := h.coordinator().Submit(context.Background(), draft)

	assert.Nil(t, res)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, []string{domain.FieldDescription}, ve.MissingFields)
	assert.Equal(t, 0, h.calls.count())
}

func TestSubmit_PinAloneSatisfiesLocation(t *testing.T) {
	h := newHarness()

	res, err := h.coordinator().Submit(context.Background(), validDraft())

	require.NoError(t, err)
	assert.Equal(t, "10.296400, 123.901700", res.Report.LocationText)
}

func TestSubmit_ProfileIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		profile *domain.ReporterProfile
	}{
		{"no profile", nil},
		{"blank jurisdiction", &domain.ReporterProfile{Jurisdiction: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.profiles.profile = tt.profile

			_, err := h.coordinator().Submit(context.Background(), validDraft())

			var pe *domain.ProfileIncompleteError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, domain.EPROFILE, domain.ErrorCode(err))
			assert.Empty(t, h.reports.inserted)
			assert.NotContains(t, h.calls.names, "validate")
		})
	}
}

func TestSubmit_JurisdictionMismatchCreatesNoReport(t *testing.T) {
	h := newHarness()
	h.validator.result = location.Result{Matched: false, ResolvedJurisdiction: "Lapu-Lapu City"}

	_, err := h.coordinator().Submit(context.Background(), validDraft())

	var me *domain.JurisdictionMismatchError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "Lapu-Lapu City", me.Resolved)
	assert.Equal(t, "Cebu City", me.Registered)
	assert.Empty(t, h.reports.inserted)
	assert.NotContains(t, h.calls.names, "upload")
}

func TestSubmit_PinJurisdictionThroughGeocoder(t *testing.T) {
	tests := []struct {
		name     string
		resolved string
		wantErr  bool
	}{
		{"other city is rejected", "Lapu-Lapu City", true},
		{"alias of registered city is accepted", "City of Cebu", false},
		{"bare name is accepted", "Cebu", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			validator := location.NewValidator(stubGeocoder{city: tt.resolved}, nil,
				slog.New(slog.NewTextHandler(io.Discard, nil)))

			res, err := h.coordinatorWith(validator).Submit(context.Background(), validDraft())

			if tt.wantErr {
				var me *domain.JurisdictionMismatchError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, tt.resolved, me.Resolved)
				assert.Equal(t, "Cebu City", me.Registered)
				assert.Empty(t, h.reports.inserted)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Cebu City", res.Report.Jurisdiction)
			assert.Len(t, h.reports.inserted, 1)
		})
	}
}

func TestSubmit_NoPinSkipsValidation(t *testing.T) {
	h := newHarness()
	draft := validDraft()
	draft.Coordinates = nil
	draft.LocationText = "Colon St."

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	assert.NotContains(t, h.calls.names, "validate")
	assert.Equal(t, "Colon St.", res.Report.LocationText)
}

func TestSubmit_GeocoderWarningIsSurfaced(t *testing.T) {
	h := newHarness()
	h.validator.result = location.Result{Matched: true, Warning: location.WarningGeocoderUnavailable}

	res, err := h.coordinator().Submit(context.Background(), validDraft())

	require.NoError(t, err)
	assert.Equal(t, []string{location.WarningGeocoderUnavailable}, res.Warnings)
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	h := newHarness()
	h.reports.insertErr = errors.New("connection reset")
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg")}

	_, err := h.coordinator().Submit(context.Background(), draft)

	var pe *domain.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.NotContains(t, h.calls.names, "upload")
	assert.NotContains(t, h.calls.names, "notify")
}

func TestSubmit_Unauthenticated(t *testing.T) {
	h := newHarness()
	h.identity.user = nil

	_, err := h.coordinator().Submit(context.Background(), validDraft())

	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.NotContains(t, h.calls.names, "profile")
}

func TestSubmit_PartialUploadFailureStillSaves(t *testing.T) {
	h := newHarness()
	h.objects.failFor = map[string]bool{"b.jpg": true}
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg"), photo("b.jpg")}

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	require.Len(t, res.Report.MediaRefs, 1)
	assert.True(t, strings.HasSuffix(res.Report.MediaRefs[0], "/1700000000000-a.jpg"))
	assert.Equal(t, []string{"b.jpg"}, res.FailedMedia)
	require.Len(t, h.reports.patched, 1)
	assert.Equal(t, res.Report.MediaRefs, h.reports.patched[0])
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "b.jpg")
}

func TestSubmit_FailedMediaUsesReporterFilename(t *testing.T) {
	h := newHarness()
	h.objects.failFor = map[string]bool{"street.jpg": true}
	converted := photo("street.jpg")
	converted.OriginalFilename = "street.png"
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg"), converted}

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	assert.Equal(t, []string{"street.png"}, res.FailedMedia)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "street.png")
}

func TestSubmit_MediaKeysAreScopedToReporterAndReport(t *testing.T) {
	h := newHarness()
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg"), photo("a.jpg")}

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	require.Len(t, h.objects.keys, 2)
	prefix := res.Report.ReporterID.String() + "/" + res.Report.ID.String() + "/1700000000000-"
	assert.ElementsMatch(t, []string{prefix + "a.jpg", prefix + "a-2.jpg"}, h.objects.keys)
	assert.Empty(t, res.FailedMedia)
}

func TestSubmit_AllUploadsFailSkipsPatch(t *testing.T) {
	h := newHarness()
	h.objects.failFor = map[string]bool{"a.jpg": true}
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg")}

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	assert.Empty(t, res.Report.MediaRefs)
	assert.Equal(t, []string{"a.jpg"}, res.FailedMedia)
	assert.NotContains(t, h.calls.names, "patch")
}

func TestSubmit_PatchFailureDiscardsUploads(t *testing.T) {
	h := newHarness()
	h.reports.patchErr = errors.New("deadlock detected")
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg"), photo("b.jpg")}

	res, err := h.coordinator().Submit(context.Background(), draft)

	require.NoError(t, err)
	assert.Empty(t, res.Report.MediaRefs)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, res.FailedMedia)
	assert.ElementsMatch(t, h.objects.keys, h.objects.deleted)
}

func TestSubmit_NotificationFailureDoesNotFailSubmission(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("officials service down")

	res, err := h.coordinator().Submit(context.Background(), validDraft())

	require.NoError(t, err)
	require.NotNil(t, res.Report)
	require.Len(t, h.queue.got, 1)
	assert.Equal(t, res.Report.ID, h.queue.got[0].ReportID)
}

func TestSubmit_NotifiesWithRegisteredJurisdiction(t *testing.T) {
	h := newHarness()
	h.profiles.profile.Jurisdiction = " City of Cebu "
	h.validator.result = location.Result{Matched: true, ResolvedJurisdiction: "Cebu City"}

	res, err := h.coordinator().Submit(context.Background(), validDraft())

	require.NoError(t, err)
	assert.Equal(t, "City of Cebu", res.Report.Jurisdiction)
	require.Len(t, h.notifier.got, 1)
	got := h.notifier.got[0]
	assert.Equal(t, "City of Cebu", got.Jurisdiction)
	assert.Equal(t, "Juan dela Cruz", got.ReporterName)
	assert.Equal(t, "Pothole", got.IssueType)
	assert.Empty(t, h.queue.got)
}

func TestSubmit_SurvivesCallerCancellationAfterSave(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	draft := validDraft()
	draft.Media = []domain.PreparedMedia{photo("a.jpg")}

	// Cancel as soon as the row is written.
	reports := &cancellingReports{fakeReports: h.reports, cancel: cancel}
	c := NewSubmissionCoordinator(SubmissionDeps{
		Identity:  h.identity,
		Profiles:  h.profiles,
		Reports:   reports,
		Objects:   &ctxCheckingObjects{fakeObjects: h.objects},
		Validator: h.validator,
		Notifier:  h.notifier,
	}, DefaultSubmissionConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := c.Submit(ctx, draft)

	require.NoError(t, err)
	assert.Len(t, res.Report.MediaRefs, 1)
	assert.Empty(t, res.FailedMedia)
}

type cancellingReports struct {
	*fakeReports
	cancel context.CancelFunc
}

func (r *cancellingReports) Insert(ctx context.Context, params domain.NewReportParams) (*domain.Report, error) {
	defer r.cancel()
	return r.fakeReports.Insert(ctx, params)
}

type ctxCheckingObjects struct {
	*fakeObjects
}

func (o *ctxCheckingObjects) Upload(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return o.fakeObjects.Upload(ctx, key, contentType, data)
}

func TestUniqueFilenames(t *testing.T) {
	got := uniqueFilenames([]domain.PreparedMedia{photo("a.jpg"), photo("b.png"), photo("a.jpg"), photo(""), photo("a.jpg")})
	assert.Equal(t, []string{"a.jpg", "b.png", "a-2.jpg", "photo.jpg", "a-3.jpg"}, got)
}
