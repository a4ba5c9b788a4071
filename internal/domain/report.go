// Package domain contains core business types and interfaces.
//
// This file defines the Report domain type, the draft a reporter composes
// before submission, and the coordinates a report may be pinned to.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang/geo/s2"
	"github.com/google/uuid"
)

// =============================================================================
// Report Status
// =============================================================================

// ReportStatus represents the triage state of a filed report.
type ReportStatus string

const (
	// ReportStatusPending is the status of every newly filed report.
	ReportStatusPending ReportStatus = "pending"

	// ReportStatusInProgress indicates an official has picked the report up.
	ReportStatusInProgress ReportStatus = "in_progress"

	// ReportStatusResolved indicates the issue has been addressed.
	ReportStatusResolved ReportStatus = "resolved"
)

// String returns the string representation of the status.
func (s ReportStatus) String() string {
	return string(s)
}

// =============================================================================
// Coordinates
// =============================================================================

// Coordinates is a point pinned on the map, in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within the valid latitude and
// longitude ranges.
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return s2.LatLngFromDegrees(c.Lat, c.Lng).IsValid()
}

// String formats the point the way it is stored as a location text when the
// reporter only dropped a pin.
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lng)
}

// =============================================================================
// Report Domain Type
// =============================================================================

// Report is a filed community issue report.
//
// Jurisdiction is fixed at creation from the reporter's registered profile,
// never from the pinned point. MediaRefs starts empty and is patched once
// after uploads settle.
type Report struct {
	ID           uuid.UUID    `json:"id"`
	ReporterID   uuid.UUID    `json:"reporter_id"`
	IssueType    string       `json:"issue_type"`
	Priority     string       `json:"priority"`
	LocationText string       `json:"location_text"`
	Coordinates  *Coordinates `json:"coordinates,omitempty"`
	Jurisdiction string       `json:"jurisdiction"`
	Description  string       `json:"description"`
	MediaRefs    []string     `json:"media_refs"`
	Status       ReportStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// NewReportParams are the fields of a report at creation.
type NewReportParams struct {
	ReporterID   uuid.UUID
	IssueType    string
	Priority     string
	LocationText string
	Coordinates  *Coordinates
	Jurisdiction string
	Description  string
}

// =============================================================================
// Report Draft
// =============================================================================

// Display names of the required report fields, as shown to the reporter.
const (
	FieldIssueType   = "Issue type"
	FieldPriority    = "Priority"
	FieldLocation    = "Location"
	FieldDescription = "Description"
)

// ReportDraft is what the reporter composed on the form.
type ReportDraft struct {
	IssueType    string
	Priority     string
	LocationText string
	Coordinates  *Coordinates
	Description  string
	Media        []PreparedMedia
}

// Location returns the location string for the report. Typed text wins; a
// pinned point alone satisfies the field.
func (d ReportDraft) Location() string {
	if text := strings.TrimSpace(d.LocationText); text != "" {
		return text
	}
	if d.Coordinates != nil {
		return d.Coordinates.String()
	}
	return ""
}

// Validate runs the required-field check. It returns nil or a
// *ValidationError listing every blank field in form order.
func (d ReportDraft) Validate(op string) error {
	var missing []string
	if strings.TrimSpace(d.IssueType) == "" {
		missing = append(missing, FieldIssueType)
	}
	if strings.TrimSpace(d.Priority) == "" {
		missing = append(missing, FieldPriority)
	}
	if d.Location() == "" {
		missing = append(missing, FieldLocation)
	}
	if strings.TrimSpace(d.Description) == "" {
		missing = append(missing, FieldDescription)
	}

	var invalid map[string]string
	if d.Coordinates != nil && !d.Coordinates.Valid() {
		invalid = map[string]string{FieldLocation: "pin is outside the valid latitude/longitude range"}
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}
	return &ValidationError{Op: op, MissingFields: missing, InvalidFields: invalid}
}
