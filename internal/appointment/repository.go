package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ExistsForPatient(ctx context.Context, id, patientID uuid.UUID) (bool, error)

	// FindConflicting returns non-cancelled appointments of the provider whose
	// start falls in w. excludeID (uuid.Nil for none) is skipped.
	FindConflicting(ctx context.Context, providerID uuid.UUID, w Window, excludeID uuid.UUID) ([]Appointment, error)

	InsertAppointment(ctx context.Context, a Appointment) error
	// UpdateAppointment writes every mutable field when the stored status
	// still equals expected; otherwise it returns ErrStaleAppointment.
	UpdateAppointment(ctx context.Context, a Appointment, expected Status) error

	// Reconciliation
	FindScheduledBefore(ctx context.Context, before time.Time) ([]Appointment, error)
	FindScheduledBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkCompleted(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error)

	// WithinTx runs fn against a repository bound to one transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
