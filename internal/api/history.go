package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/history"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

type HistoryService interface {
	List(ctx context.Context, caller identity.Principal) ([]history.Record, error)
	Get(ctx context.Context, caller identity.Principal, id uuid.UUID) (*history.Record, error)
	ByPatient(ctx context.Context, caller identity.Principal, patientID uuid.UUID) ([]history.Record, error)
	ByProvider(ctx context.Context, caller identity.Principal, providerID uuid.UUID) ([]history.Record, error)
}

type HistoryHandler struct {
	q      HistoryService
	logger zerolog.Logger
}

func NewHistoryHandler(q HistoryService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{q: q, logger: logger}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := PrincipalFrom(r.Context())
	records, err := h.q.List(r.Context(), caller)
	h.respondList(w, r, records, err)
}

func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	caller, _ := PrincipalFrom(r.Context())
	rec, err := h.q.Get(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *HistoryHandler) ByPatient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "patientId")
	if !ok {
		return
	}
	caller, _ := PrincipalFrom(r.Context())
	records, err := h.q.ByPatient(r.Context(), caller, id)
	h.respondList(w, r, records, err)
}

func (h *HistoryHandler) ByProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "providerId")
	if !ok {
		return
	}
	caller, _ := PrincipalFrom(r.Context())
	records, err := h.q.ByProvider(r.Context(), caller, id)
	h.respondList(w, r, records, err)
}

func (h *HistoryHandler) respondList(w http.ResponseWriter, r *http.Request, records []history.Record, err error) {
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}
