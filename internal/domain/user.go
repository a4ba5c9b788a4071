package domain

import (
	"strings"

	"github.com/google/uuid"
)

// User is the authenticated caller as reported by the identity provider.
type User struct {
	ID    uuid.UUID
	Email string
}

// ReporterProfile is the reporter's registered profile. It is owned by the
// profile service and read-only here.
type ReporterProfile struct {
	UserID       uuid.UUID
	Jurisdiction string
	DisplayName  string
}

// HasJurisdiction returns true if the profile names a registered
// jurisdiction.
func (p *ReporterProfile) HasJurisdiction() bool {
	return p != nil && strings.TrimSpace(p.Jurisdiction) != ""
}

// Official is a jurisdiction official who receives new-report
// notifications.
type Official struct {
	ID           uuid.UUID
	Name         string
	Email        string
	Jurisdiction string
}
