// Package events defines the wire shapes exchanged over the event bus.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

// ErrMalformed marks payloads that can never be processed, no matter how
// often they are redelivered.
var ErrMalformed = errs.New("malformed event")

// Kind is the appointment event kind as it appears on the wire.
type Kind string

const (
	KindCreated   Kind = "CRIACAO"
	KindUpdated   Kind = "ATUALIZACAO"
	KindCancelled Kind = "CANCELAMENTO"
	KindReminder  Kind = "LEMBRETE"
)

// ParseKind accepts the wire values, the historical CREACAO spelling and the
// English names.
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRIACAO", "CREACAO", "CREATED":
		return KindCreated, nil
	case "ATUALIZACAO", "UPDATED":
		return KindUpdated, nil
	case "CANCELAMENTO", "CANCELLED":
		return KindCancelled, nil
	case "LEMBRETE", "REMINDER":
		return KindReminder, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", s)
	}
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// AppointmentChanged is published on every appointment state change and for
// next-day reminders. It is keyed by appointment id.
type AppointmentChanged struct {
	AppointmentID  uuid.UUID `json:"appointmentId"`
	PatientID      uuid.UUID `json:"patientId"`
	PatientName    string    `json:"patientName"`
	PatientEmail   string    `json:"patientEmail,omitempty"`
	PatientPhone   string    `json:"patientPhone,omitempty"`
	ProviderID     uuid.UUID `json:"providerId"`
	ProviderName   string    `json:"providerName,omitempty"`
	ScheduledTime  time.Time `json:"scheduledTime"`
	Status         string    `json:"status"`
	EventKind      Kind      `json:"eventKind"`
	EventTimestamp time.Time `json:"eventTimestamp"`
}

func (e AppointmentChanged) Key() string  { return e.AppointmentID.String() }
func (e AppointmentChanged) Kind() string { return string(e.EventKind) }

func DecodeAppointmentChanged(payload []byte) (AppointmentChanged, error) {
	var ev AppointmentChanged
	if err := json.Unmarshal(payload, &ev); err != nil {
		return AppointmentChanged{}, errs.Mark(errs.Wrap(err, "decode appointment event"), ErrMalformed)
	}

	switch {
	case ev.AppointmentID == uuid.Nil:
		return AppointmentChanged{}, errs.Mark(errs.New("appointmentId is required"), ErrMalformed)
	case ev.PatientID == uuid.Nil:
		return AppointmentChanged{}, errs.Mark(errs.New("patientId is required"), ErrMalformed)
	case ev.ProviderID == uuid.Nil:
		return AppointmentChanged{}, errs.Mark(errs.New("providerId is required"), ErrMalformed)
	case ev.EventKind == "":
		return AppointmentChanged{}, errs.Mark(errs.New("eventKind is required"), ErrMalformed)
	case ev.ScheduledTime.IsZero():
		return AppointmentChanged{}, errs.Mark(errs.New("scheduledTime is required"), ErrMalformed)
	}
	return ev, nil
}

// IdentityChanged is emitted by the identity service when a user record is
// created or updated. It is keyed by user id.
type IdentityChanged struct {
	UserID             uuid.UUID `json:"userId"`
	Name               string    `json:"name"`
	RegistrationNumber string    `json:"registrationNumber"`
	Specialty          string    `json:"specialty"`
	Role               string    `json:"role"`
	EventKind          string    `json:"eventKind"`
	EventTimestamp     time.Time `json:"eventTimestamp"`
}

func (e IdentityChanged) Key() string  { return e.UserID.String() }
func (e IdentityChanged) Kind() string { return e.EventKind }

func DecodeIdentityChanged(payload []byte) (IdentityChanged, error) {
	var ev IdentityChanged
	if err := json.Unmarshal(payload, &ev); err != nil {
		return IdentityChanged{}, errs.Mark(errs.Wrap(err, "decode identity event"), ErrMalformed)
	}
	if ev.UserID == uuid.Nil {
		return IdentityChanged{}, errs.Mark(errs.New("userId is required"), ErrMalformed)
	}
	if strings.TrimSpace(ev.Role) == "" {
		return IdentityChanged{}, errs.Mark(errs.New("role is required"), ErrMalformed)
	}
	return ev, nil
}
