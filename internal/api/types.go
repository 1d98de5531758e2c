package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
)

type CreateAppointmentRequest struct {
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName"`
	ProviderID  string    `json:"providerId"`
	ScheduledAt time.Time `json:"scheduledAt"`
	Details     string    `json:"details"`
}

type EditAppointmentRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
	Details     string    `json:"details"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	PatientID    uuid.UUID `json:"patientId"`
	PatientName  string    `json:"patientName"`
	ProviderID   uuid.UUID `json:"providerId"`
	ProviderName string    `json:"providerName"`
	ScheduledAt  time.Time `json:"scheduledAt"`
	Details      string    `json:"details"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:           a.ID,
		PatientID:    a.PatientID,
		PatientName:  a.PatientName,
		ProviderID:   a.ProviderID,
		ProviderName: a.ProviderName,
		ScheduledAt:  a.ScheduledAt,
		Details:      a.Details,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
