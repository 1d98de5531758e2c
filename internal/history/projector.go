package history

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

// Projector keeps appointment_history in step with the appointment stream.
type Projector struct {
	repo   Repository
	logger zerolog.Logger
}

func NewProjector(repo Repository, logger zerolog.Logger) *Projector {
	return &Projector{
		repo:   repo,
		logger: logger.With().Str("component", "history_projector").Logger(),
	}
}

// Handle overwrites every field of the record keyed by appointment id.
func (p *Projector) Handle(ctx context.Context, msg eventbus.Message) error {
	ev, err := events.DecodeAppointmentChanged(msg.Payload)
	if err != nil {
		return err
	}

	rec := FromEvent(ev)
	if err := p.repo.Upsert(ctx, rec); err != nil {
		return err
	}

	p.logger.Debug().
		Str("appointment_id", rec.ID.String()).
		Str("event_kind", string(rec.LastEventKind)).
		Str("status", rec.Status).
		Msg("history record projected")
	return nil
}
