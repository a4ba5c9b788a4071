// Package handler contains HTTP handlers for the pinreport server.
//
// This file implements report submission from the reporting form.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/media"
	"github.com/DukeRupert/pinreport/internal/service"
	"github.com/DukeRupert/pinreport/internal/storage"
)

const (
	// MaxPhotosPerReport caps the photos attached to one report.
	MaxPhotosPerReport = 10

	// maxRequestSize bounds the whole multipart body.
	maxRequestSize = MaxPhotosPerReport*domain.MaxUploadSize + 1<<20

	// multipartMemory is kept in memory before spilling files to disk.
	multipartMemory = 32 << 20
)

// Form field names.
const (
	fieldIssueType   = "issue_type"
	fieldPriority    = "priority"
	fieldLocation    = "location"
	fieldLat         = "lat"
	fieldLng         = "lng"
	fieldDescription = "description"
	fieldPhotos      = "photos"
)

// MediaPreparer shrinks a photo before it joins the draft.
type MediaPreparer interface {
	Prepare(ctx context.Context, blob domain.Blob) domain.PreparedMedia
}

// =============================================================================
// Handler Configuration
// =============================================================================

// ReportHandler accepts report submissions.
type ReportHandler struct {
	submissions service.SubmissionCoordinator
	preparer    MediaPreparer
	previews    *media.PreviewRegistry
	logger      *slog.Logger
}

func NewReportHandler(
	submissions service.SubmissionCoordinator,
	preparer MediaPreparer,
	previews *media.PreviewRegistry,
	logger *slog.Logger,
) *ReportHandler {
	return &ReportHandler{
		submissions: submissions,
		preparer:    preparer,
		previews:    previews,
		logger:      logger,
	}
}

// RegisterRoutes registers report routes. stack wraps each handler with
// identity and rate limiting.
//
// Routes:
// - POST /reports -> Submit
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux, stack func(http.Handler) http.Handler) {
	mux.Handle("POST /reports", stack(http.HandlerFunc(h.Submit)))
}

// =============================================================================
// POST /reports - Submit Report
// =============================================================================

// Submit parses the reporting form, prepares attached photos and hands the
// draft to the submission coordinator. It responds 201 with the saved
// report, the photos that failed to attach and any warnings.
func (h *ReportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	const op = "ReportHandler.Submit"

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "The report is too large to upload"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Could not read the report form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	draft, err := parseDraft(r, op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	blobs, err := readPhotos(r.MultipartForm.File[fieldPhotos], op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Previews only live as long as the draft.
	pending := media.NewPendingList(h.previews)
	defer pending.Clear()
	for _, blob := range blobs {
		pending.Add(h.preparer.Prepare(r.Context(), blob))
	}
	draft.Media = pending.Items()

	result, err := h.submissions.Submit(r.Context(), draft)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if result.FailedMedia == nil {
		result.FailedMedia = []string{}
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, result)
}

// parseDraft reads the text fields. Blank fields are left for the
// coordinator's required-field check; only a malformed pin fails here.
func parseDraft(r *http.Request, op string) (domain.ReportDraft, error) {
	draft := domain.ReportDraft{
		IssueType:    r.FormValue(fieldIssueType),
		Priority:     r.FormValue(fieldPriority),
		LocationText: r.FormValue(fieldLocation),
		Description:  r.FormValue(fieldDescription),
	}

	lat := strings.TrimSpace(r.FormValue(fieldLat))
	lng := strings.TrimSpace(r.FormValue(fieldLng))
	if lat == "" && lng == "" {
		return draft, nil
	}

	latF, latErr := strconv.ParseFloat(lat, 64)
	lngF, lngErr := strconv.ParseFloat(lng, 64)
	if latErr != nil || lngErr != nil {
		return draft, &domain.ValidationError{
			Op:            op,
			InvalidFields: map[string]string{domain.FieldLocation: "pin coordinates are malformed"},
		}
	}
	draft.Coordinates = &domain.Coordinates{Lat: latF, Lng: lngF}
	return draft, nil
}

// readPhotos loads every uploaded photo, rejecting oversized files and
// formats that are not images.
func readPhotos(files []*multipart.FileHeader, op string) ([]domain.Blob, error) {
	if len(files) > MaxPhotosPerReport {
		return nil, domain.Invalid(op, fmt.Sprintf("A report can have at most %d photos", MaxPhotosPerReport))
	}

	blobs := make([]domain.Blob, 0, len(files))
	for _, fh := range files {
		if fh.Size > domain.MaxUploadSize {
			return nil, domain.Errorf(domain.ETOOLARGE, op, "%s exceeds the %dMB photo limit", fh.Filename, domain.MaxUploadSize>>20)
		}

		data, err := readFile(fh)
		if err != nil {
			return nil, domain.Invalid(op, fmt.Sprintf("Could not read %s", fh.Filename))
		}

		provided := fh.Header.Get("Content-Type")
		if provided == "application/octet-stream" {
			provided = ""
		}
		contentType := storage.DetectContentType(provided, fh.Filename, bytes.NewReader(data))
		if !storage.IsAllowedImageType(contentType) {
			return nil, domain.Invalid(op, fmt.Sprintf("%s is not a supported image type", fh.Filename))
		}

		blobs = append(blobs, domain.Blob{
			Filename:    fh.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}
	return blobs, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, domain.MaxUploadSize+1))
}
