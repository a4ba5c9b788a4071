// Package location checks that a pinned point falls inside the reporter's
// registered jurisdiction.
//
// Availability wins over strictness here: when the geocoder is unreachable
// or cannot name a jurisdiction, the pin is accepted and a warning is
// surfaced instead of blocking the report.
package location

import (
	"context"
	"log/slog"
	"strings"

	"github.com/DukeRupert/pinreport/internal/domain"
	"github.com/DukeRupert/pinreport/internal/geocode"
	"github.com/DukeRupert/pinreport/internal/jurisdiction"
	"github.com/DukeRupert/pinreport/internal/metrics"
)

// localityFields are probed in priority order for a jurisdiction name.
var localityFields = []string{"city", "town", "municipality", "village", "county", "state_district"}

// Warnings surfaced to the caller when the pin could not be verified.
const (
	WarningGeocoderUnavailable = "We could not verify the pinned location right now. Your report will be submitted without location verification."
	WarningUnresolved          = "We could not determine the city or municipality of the pinned location."
)

// Result is the outcome of a pin check. ResolvedJurisdiction is "" when the
// geocoder could not name one.
type Result struct {
	Matched              bool
	ResolvedJurisdiction string
	Warning              string
}

// Validator resolves a pin through reverse geocoding and compares it with the
// registered jurisdiction.
type Validator struct {
	geocoder geocode.Geocoder
	matcher  *jurisdiction.Matcher
	logger   *slog.Logger
}

// NewValidator creates a Validator. A nil matcher uses the default alias
// table.
func NewValidator(geocoder geocode.Geocoder, matcher *jurisdiction.Matcher, logger *slog.Logger) *Validator {
	if matcher == nil {
		matcher = jurisdiction.Default()
	}
	return &Validator{geocoder: geocoder, matcher: matcher, logger: logger}
}

// Validate checks coords against registered. Only malformed coordinates are
// an error; geocoder failures degrade to Matched=true with a warning.
func (v *Validator) Validate(ctx context.Context, coords domain.Coordinates, registered string) (Result, error) {
	const op = "location.validate"

	if !coords.Valid() {
		return Result{}, &domain.ValidationError{
			Op:            op,
			InvalidFields: map[string]string{domain.FieldLocation: "pin is outside the valid latitude/longitude range"},
		}
	}

	res, err := v.geocoder.ReverseGeocode(ctx, coords.Lat, coords.Lng)
	if err != nil {
		v.logger.Warn("reverse geocoding failed, skipping location verification",
			"lat", coords.Lat,
			"lng", coords.Lng,
			"error", err,
		)
		metrics.LocationValidations.WithLabelValues("skipped").Inc()
		return Result{Matched: true, Warning: WarningGeocoderUnavailable}, nil
	}

	resolved := ExtractJurisdiction(res.Address)
	if resolved == "" {
		v.logger.Warn("could not determine jurisdiction for pinned location",
			"lat", coords.Lat,
			"lng", coords.Lng,
			"display_name", res.DisplayName,
		)
		metrics.LocationValidations.WithLabelValues("unresolved").Inc()
		return Result{Matched: true, Warning: WarningUnresolved}, nil
	}

	matched := v.matcher.Compare(resolved, registered)
	if matched {
		metrics.LocationValidations.WithLabelValues("matched").Inc()
	} else {
		metrics.LocationValidations.WithLabelValues("mismatched").Inc()
		v.logger.Info("pinned location outside registered jurisdiction",
			"resolved", resolved,
			"registered", registered,
		)
	}

	return Result{Matched: matched, ResolvedJurisdiction: resolved}, nil
}

// ExtractJurisdiction picks a jurisdiction name from address components:
// the first populated locality field in priority order, else the first
// component whose value mentions "city" or "municipality".
func ExtractJurisdiction(addr geocode.Address) string {
	for _, field := range localityFields {
		if v := strings.TrimSpace(addr.Get(field)); v != "" {
			return v
		}
	}

	for _, c := range addr {
		lower := strings.ToLower(c.Value)
		if strings.Contains(lower, "city") || strings.Contains(lower, "municipality") {
			return strings.TrimSpace(c.Value)
		}
	}

	return ""
}
