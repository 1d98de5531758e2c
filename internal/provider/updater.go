package provider

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/clock"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/eventbus"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

// Updater applies identity-change events to the projection store.
type Updater struct {
	repo   Repository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewUpdater(repo Repository, clk clock.Clock, logger zerolog.Logger) *Updater {
	return &Updater{
		repo:   repo,
		clock:  clk,
		logger: logger.With().Str("component", "provider_updater").Logger(),
	}
}

// Handle upserts unconditionally, whatever the event kind. Redelivery of the
// same event writes the same row.
func (u *Updater) Handle(ctx context.Context, msg eventbus.Message) error {
	ev, err := events.DecodeIdentityChanged(msg.Payload)
	if err != nil {
		return err
	}

	role, known := identity.ParseRole(ev.Role)
	if !known {
		u.logger.Warn().Str("user_id", ev.UserID.String()).Str("role", ev.Role).Msg("unrecognized role, storing as-is")
	}

	updatedAt := ev.EventTimestamp
	if updatedAt.IsZero() {
		updatedAt = u.clock.Now()
	}

	p := Projection{
		ID:                 ev.UserID,
		Name:               strings.TrimSpace(ev.Name),
		RegistrationNumber: ev.RegistrationNumber,
		Specialty:          strings.TrimSpace(ev.Specialty),
		Role:               role,
		UpdatedAt:          updatedAt,
	}
	if err := u.repo.Upsert(ctx, p); err != nil {
		return err
	}

	u.logger.Info().
		Str("user_id", p.ID.String()).
		Str("role", string(p.Role)).
		Str("event_kind", ev.EventKind).
		Msg("provider projection upserted")
	return nil
}
