package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/metrics"
)

type RouterConfig struct {
	Appointments AppointmentService
	History      HistoryService
	Auth         *Authenticator
	Health       *HealthHandler
	Metrics      *metrics.Metrics
	Clock        clock.Clock
	Logger       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewRealClock()
	}
	logger := cfg.Logger.With().Str("component", "http").Logger()

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(logger, cfg.Metrics))
	r.Use(Recoverer(logger))

	// Health endpoints
	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	appts := NewAppointmentHandler(cfg.Appointments, cfg.Clock, logger)
	hist := NewHistoryHandler(cfg.History, logger)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Post("/appointments", appts.Create)
		r.Get("/appointments/{id}", appts.Get)
		r.Put("/appointments/{id}", appts.Edit)
		r.Delete("/appointments/{id}", appts.Cancel)

		r.Get("/providers", appts.ListProviders)

		r.Get("/history", hist.List)
		r.Get("/history/{id}", hist.Get)
		r.Get("/history/patients/{patientId}", hist.ByPatient)
		r.Get("/history/providers/{providerId}", hist.ByProvider)
	})

	return r
}
