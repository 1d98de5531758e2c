package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

var ErrRecordNotFound = errs.NotFound("history record not found")

// Record mirrors the last known state of an appointment. ProjectedAt is the
// timestamp of the event that produced it, so replays write identical rows.
type Record struct {
	ID            uuid.UUID   `json:"id"`
	PatientID     uuid.UUID   `json:"patientId"`
	PatientName   string      `json:"patientName"`
	ProviderID    uuid.UUID   `json:"providerId"`
	ProviderName  string      `json:"providerName"`
	ScheduledAt   time.Time   `json:"scheduledAt"`
	Status        string      `json:"status"`
	LastEventKind events.Kind `json:"lastEventKind"`
	ProjectedAt   time.Time   `json:"projectedAt"`
}

func FromEvent(ev events.AppointmentChanged) Record {
	return Record{
		ID:            ev.AppointmentID,
		PatientID:     ev.PatientID,
		PatientName:   ev.PatientName,
		ProviderID:    ev.ProviderID,
		ProviderName:  ev.ProviderName,
		ScheduledAt:   ev.ScheduledTime.UTC(),
		Status:        ev.Status,
		LastEventKind: ev.EventKind,
		ProjectedAt:   ev.EventTimestamp.UTC(),
	}
}
