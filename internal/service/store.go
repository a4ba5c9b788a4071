package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/repository"
)

// ReportRepository backs the coordinator's profile, user and report stores
// with the database.
type ReportRepository struct {
	queries *repository.Queries
}

func NewReportRepository(queries *repository.Queries) *ReportRepository {
	return &ReportRepository{queries: queries}
}

// GetUser returns nil when the user does not exist.
func (r *ReportRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := r.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.User{ID: u.ID, Email: u.Email}, nil
}

// GetProfile returns nil when the user has no profile yet.
func (r *ReportRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.ReporterProfile, error) {
	p, err := r.queries.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.ReporterProfile{
		UserID:       p.UserID,
		Jurisdiction: p.Jurisdiction,
		DisplayName:  p.DisplayName,
	}, nil
}

func (r *ReportRepository) Insert(ctx context.Context, params domain.NewReportParams) (*domain.Report, error) {
	arg := repository.InsertReportParams{
		ReporterID:   params.ReporterID,
		IssueType:    params.IssueType,
		Priority:     params.Priority,
		Location:     params.LocationText,
		Description:  params.Description,
		Jurisdiction: params.Jurisdiction,
	}
	if params.Coordinates != nil {
		arg.Latitude = sql.NullFloat64{Float64: params.Coordinates.Lat, Valid: true}
		arg.Longitude = sql.NullFloat64{Float64: params.Coordinates.Lng, Valid: true}
	}

	row, err := r.queries.InsertReport(ctx, arg)
	if err != nil {
		return nil, err
	}
	report := repoReportToDomain(row)
	return &report, nil
}

func (r *ReportRepository) PatchMediaRefs(ctx context.Context, id uuid.UUID, refs []string) error {
	return r.queries.UpdateReportMediaRefs(ctx, repository.UpdateReportMediaRefsParams{
		ID:        id,
		MediaRefs: refs,
	})
}

func repoReportToDomain(r repository.Report) domain.Report {
	report := domain.Report{
		ID:           r.ID,
		ReporterID:   r.ReporterID,
		IssueType:    r.IssueType,
		Priority:     r.Priority,
		LocationText: r.Location,
		Jurisdiction: r.Jurisdiction,
		Description:  r.Description,
		MediaRefs:    r.MediaRefs,
		Status:       domain.ReportStatus(r.Status),
		CreatedAt:    r.CreatedAt,
	}
	if report.MediaRefs == nil {
		report.MediaRefs = []string{}
	}
	if r.Latitude.Valid && r.Longitude.Valid {
		report.Coordinates = &domain.Coordinates{Lat: r.Latitude.Float64, Lng: r.Longitude.Float64}
	}
	return report
}
