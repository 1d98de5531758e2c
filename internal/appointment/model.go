package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

var (
	ErrAppointmentNotFound = errs.NotFound("appointment not found")
	ErrProviderNotFound    = errs.NotFound("provider not found")
	ErrPatientNotFound     = errs.NotFound("patient not found")

	ErrSlotTaken         = errs.BusinessRule("slot already taken")
	ErrScheduleBusy      = errs.BusinessRule("provider schedule is being updated, please retry")
	ErrNotScheduled      = errs.BusinessRule("only scheduled appointments can be edited")
	ErrAlreadyCancelled  = errs.BusinessRule("appointment already cancelled")
	ErrAlreadyCompleted  = errs.BusinessRule("appointment already completed")
	ErrPatientNameDiffer = errs.BusinessRule("patient name does not match identity record")
	ErrStaleAppointment  = errs.BusinessRule("appointment was modified concurrently, please retry")
)

// Appointment is owned by the scheduling engine. PatientName and
// ProviderName are snapshots taken at create/edit time and are not kept in
// sync with later identity changes.
type Appointment struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	PatientName  string
	ProviderID   uuid.UUID
	ProviderName string
	ScheduledAt  time.Time
	Details      string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Reschedule returns a copy with the new time, details and refreshed name
// snapshots. Only scheduled appointments can be rescheduled.
func (a Appointment) Reschedule(at time.Time, details, patientName, providerName string, now time.Time) (Appointment, error) {
	if a.Status != StatusScheduled {
		return a, ErrNotScheduled
	}
	a.ScheduledAt = at
	a.Details = details
	a.PatientName = patientName
	a.ProviderName = providerName
	a.UpdatedAt = now
	return a, nil
}

// Cancel returns a cancelled copy whose details record when staff cancelled it.
func (a Appointment) Cancel(now time.Time) (Appointment, error) {
	switch a.Status {
	case StatusCancelled:
		return a, ErrAlreadyCancelled
	case StatusCompleted:
		return a, ErrAlreadyCompleted
	}
	a.Status = StatusCancelled
	a.Details = fmt.Sprintf("Cancelled by staff at %s", now.Format(time.RFC3339))
	a.UpdatedAt = now
	return a, nil
}

func (a Appointment) Complete(now time.Time) (Appointment, error) {
	switch a.Status {
	case StatusCancelled:
		return a, ErrAlreadyCancelled
	case StatusCompleted:
		return a, ErrAlreadyCompleted
	}
	a.Status = StatusCompleted
	a.UpdatedAt = now
	return a, nil
}

// CreateRequest carries the caller-supplied fields of a new booking.
type CreateRequest struct {
	PatientID   uuid.UUID
	PatientName string
	ProviderID  uuid.UUID
	ScheduledAt time.Time
	Details     string
}
