package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/provider"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	EditAppointment(ctx context.Context, id uuid.UUID, at time.Time, details string) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) error
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAvailableProviders(ctx context.Context, specialty string) ([]provider.Summary, error)
	Authorize(ctx context.Context, caller identity.Principal, action appointment.Action, appointmentID uuid.UUID) (appointment.Decision, error)
}

type AppointmentHandler struct {
	svc    AppointmentService
	clock  clock.Clock
	logger zerolog.Logger
}

func NewAppointmentHandler(svc AppointmentService, clk clock.Clock, logger zerolog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, clock: clk, logger: logger}
}

// authorize writes the response and returns false when the caller may not
// perform action.
func (h *AppointmentHandler) authorize(w http.ResponseWriter, r *http.Request, action appointment.Action, id uuid.UUID) bool {
	caller, ok := PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing principal")
		return false
	}
	decision, err := h.svc.Authorize(r.Context(), caller, action, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return false
	}
	if !decision.Allowed {
		writeError(w, http.StatusForbidden, "forbidden", decision.Reason)
		return false
	}
	return true
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, appointment.ActionCreate, uuid.Nil) {
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patientId must be a valid UUID")
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_provider_id", "providerId must be a valid UUID")
		return
	}
	if strings.TrimSpace(req.PatientName) == "" {
		writeError(w, http.StatusBadRequest, "invalid_patient_name", "patientName is required")
		return
	}
	if !h.inFuture(w, req.ScheduledAt) {
		return
	}

	appt, err := h.svc.CreateAppointment(r.Context(), appointment.CreateRequest{
		PatientID:   patientID,
		PatientName: req.PatientName,
		ProviderID:  providerID,
		ScheduledAt: req.ScheduledAt,
		Details:     req.Details,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok || !h.authorize(w, r, appointment.ActionEdit, id) {
		return
	}

	var req EditAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}
	if !h.inFuture(w, req.ScheduledAt) {
		return
	}

	appt, err := h.svc.EditAppointment(r.Context(), id, req.ScheduledAt, req.Details)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok || !h.authorize(w, r, appointment.ActionCancel, id) {
		return
	}

	if err := h.svc.CancelAppointment(r.Context(), id); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok || !h.authorize(w, r, appointment.ActionView, id) {
		return
	}

	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *AppointmentHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, appointment.ActionListProviders, uuid.Nil) {
		return
	}

	providers, err := h.svc.ListAvailableProviders(r.Context(), r.URL.Query().Get("specialty"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

func (h *AppointmentHandler) inFuture(w http.ResponseWriter, at time.Time) bool {
	if at.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduledAt is required")
		return false
	}
	if !at.After(h.clock.Now()) {
		writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduledAt must be in the future")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
