package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

type Status string

const (
	StatusSent           Status = "SENT"
	StatusFailedNoEmail  Status = "FAILED_NO_EMAIL"
	StatusFailedDelivery Status = "FAILED_DELIVERY"
)

// LogEntry is written once per consumed event, whatever the delivery outcome.
type LogEntry struct {
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	EventKind     events.Kind
	Recipient     string
	Status        Status
	Error         string
	Payload       json.RawMessage
	CreatedAt     time.Time
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type Mail struct {
	From       string
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
}
