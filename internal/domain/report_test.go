package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDraft() ReportDraft {
	return ReportDraft{
		IssueType:    "Pothole",
		Priority:     "high",
		LocationText: "M.J. Cuenco Ave",
		Description:  "Deep pothole in the outer lane",
	}
}

func TestReportDraft_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(d *ReportDraft)
		wantMissing []string
	}{
		{"complete draft", func(d *ReportDraft) {}, nil},
		{"blank description", func(d *ReportDraft) { d.Description = "   " }, []string{FieldDescription}},
		{"blank issue type and priority", func(d *ReportDraft) {
			d.IssueType = ""
			d.Priority = "\t"
		}, []string{FieldIssueType, FieldPriority}},
		{"no location text and no pin", func(d *ReportDraft) { d.LocationText = "" }, []string{FieldLocation}},
		{"pin alone satisfies location", func(d *ReportDraft) {
			d.LocationText = ""
			d.Coordinates = &Coordinates{Lat: 10.3157, Lng: 123.8854}
		}, nil},
		{"everything blank", func(d *ReportDraft) { *d = ReportDraft{} },
			[]string{FieldIssueType, FieldPriority, FieldLocation, FieldDescription}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDraft()
			tt.mutate(&d)

			err := d.Validate("report.submit")
			if tt.wantMissing == nil {
				assert.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.wantMissing, ve.MissingFields)
			assert.Equal(t, EINVALID, ErrorCode(err))
			for _, f := range tt.wantMissing {
				assert.Contains(t, ErrorMessage(err), f)
			}
		})
	}
}

func TestReportDraft_ValidateRejectsOutOfRangePin(t *testing.T) {
	d := validDraft()
	d.Coordinates = &Coordinates{Lat: 91, Lng: 10}

	err := d.Validate("report.submit")

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Empty(t, ve.MissingFields)
	assert.Contains(t, ve.InvalidFields, FieldLocation)
}

func TestReportDraft_Location(t *testing.T) {
	d := ReportDraft{Coordinates: &Coordinates{Lat: 10.3157, Lng: 123.8854}}
	assert.Equal(t, "10.315700, 123.885400", d.Location())

	d.LocationText = "  Colon St  "
	assert.Equal(t, "Colon St", d.Location())
}

func TestCoordinates_Valid(t *testing.T) {
	assert.True(t, Coordinates{Lat: 0, Lng: 0}.Valid())
	assert.True(t, Coordinates{Lat: -90, Lng: 180}.Valid())
	assert.False(t, Coordinates{Lat: 90.5, Lng: 0}.Valid())
	assert.False(t, Coordinates{Lat: 0, Lng: -181}.Valid())
	assert.False(t, Coordinates{Lat: math.NaN(), Lng: 0}.Valid())
}

func TestErrorCode_SubmissionErrors(t *testing.T) {
	assert.Equal(t, EPROFILE, ErrorCode(&ProfileIncompleteError{Op: "x"}))
	assert.Equal(t, EMISMATCH, ErrorCode(&JurisdictionMismatchError{Op: "x", Resolved: "Lapu-Lapu City", Registered: "Cebu City"}))
	assert.Equal(t, EINTERNAL, ErrorCode(&PersistenceError{Op: "x", Err: errors.New("boom")}))

	msg := ErrorMessage(&JurisdictionMismatchError{Resolved: "Lapu-Lapu City", Registered: "Cebu City"})
	assert.Contains(t, msg, "Lapu-Lapu City")
	assert.Contains(t, msg, "Cebu City")
}
