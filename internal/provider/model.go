package provider

import (
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

var ErrProviderNotFound = errs.NotFound("provider not found")

// Projection is the local copy of a clinician's identity record, kept fresh
// by identity-change events. Rows are overwritten, never deleted.
type Projection struct {
	ID                 uuid.UUID
	Name               string
	RegistrationNumber string
	Specialty          string
	Role               identity.Role
	UpdatedAt          time.Time
}

// Schedulable reports whether appointments can be booked against this record.
func (p Projection) Schedulable() bool {
	return p.Role == identity.RoleProvider
}

// Summary is what the provider listing exposes.
type Summary struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	Specialty          string    `json:"specialty"`
	RegistrationNumber string    `json:"registrationNumber"`
}

func (p Projection) Summary() Summary {
	return Summary{
		ID:                 p.ID,
		Name:               p.Name,
		Specialty:          p.Specialty,
		RegistrationNumber: p.RegistrationNumber,
	}
}
