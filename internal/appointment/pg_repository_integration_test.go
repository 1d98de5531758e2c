//go:build integration

package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/appointment"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/testinfra"
)

func newAppointment(providerID uuid.UUID, at time.Time) appointment.Appointment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return appointment.Appointment{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		PatientName:  "Maria Souza",
		ProviderID:   providerID,
		ProviderName: "Dr. Carlos Lima",
		ScheduledAt:  at,
		Details:      "retorno",
		Status:       appointment.StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestPgRepository(t *testing.T) {
	pool := testinfra.Postgres(t)
	repo := appointment.NewPgRepository(pool, db.NewTxRunner(pool, 3, zerolog.Nop()))
	ctx := context.Background()

	providerID := uuid.New()
	base := time.Date(2030, 3, 4, 13, 0, 0, 0, time.UTC)

	first := newAppointment(providerID, base)
	require.NoError(t, repo.InsertAppointment(ctx, first))

	t.Run("get round trip", func(t *testing.T) {
		got, err := repo.GetAppointmentByID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first.PatientName, got.PatientName)
		assert.True(t, got.ScheduledAt.Equal(base))
		assert.Equal(t, appointment.StatusScheduled, got.Status)
	})

	t.Run("missing is not found", func(t *testing.T) {
		_, err := repo.GetAppointmentByID(ctx, uuid.New())
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	})

	t.Run("ownership", func(t *testing.T) {
		owner, err := repo.ExistsForPatient(ctx, first.ID, first.PatientID)
		require.NoError(t, err)
		assert.True(t, owner)

		owner, err = repo.ExistsForPatient(ctx, first.ID, uuid.New())
		require.NoError(t, err)
		assert.False(t, owner)
	})

	t.Run("conflict window", func(t *testing.T) {
		hits, err := repo.FindConflicting(ctx, providerID, appointment.Window{
			From: base.Add(-29 * time.Minute),
			To:   base.Add(29 * time.Minute),
		}, uuid.Nil)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, first.ID, hits[0].ID)

		hits, err = repo.FindConflicting(ctx, providerID, appointment.Window{
			From: base.Add(-29 * time.Minute),
			To:   base.Add(29 * time.Minute),
		}, first.ID)
		require.NoError(t, err)
		assert.Empty(t, hits, "excluded id is ignored")

		hits, err = repo.FindConflicting(ctx, providerID, appointment.Window{
			From:          base,
			To:            base.Add(time.Hour),
			FromInclusive: false,
		}, uuid.Nil)
		require.NoError(t, err)
		assert.Empty(t, hits, "exclusive lower bound")
	})

	t.Run("exclusion constraint backstop", func(t *testing.T) {
		clash := newAppointment(providerID, base.Add(15*time.Minute))
		err := repo.InsertAppointment(ctx, clash)
		require.Error(t, err)
		assert.True(t, db.IsExclusionViolation(err))
		assert.Equal(t, errs.KindIntegrity, errs.KindOf(err))
		assert.Equal(t, "conflicting record exists", db.IntegrityMessage(err))

		adjacent := newAppointment(providerID, base.Add(30*time.Minute))
		assert.NoError(t, repo.InsertAppointment(ctx, adjacent))

		other := newAppointment(uuid.New(), base)
		assert.NoError(t, repo.InsertAppointment(ctx, other), "different provider")
	})

	t.Run("cancelled frees the slot", func(t *testing.T) {
		slot := base.Add(5 * time.Hour)
		a := newAppointment(providerID, slot)
		require.NoError(t, repo.InsertAppointment(ctx, a))

		cancelled, err := a.Cancel(time.Now().UTC())
		require.NoError(t, err)
		require.NoError(t, repo.UpdateAppointment(ctx, cancelled, appointment.StatusScheduled))

		assert.NoError(t, repo.InsertAppointment(ctx, newAppointment(providerID, slot)))
	})

	t.Run("stale update", func(t *testing.T) {
		a := newAppointment(providerID, base.Add(10*time.Hour))
		require.NoError(t, repo.InsertAppointment(ctx, a))

		err := repo.UpdateAppointment(ctx, a, appointment.StatusCompleted)
		assert.ErrorIs(t, err, appointment.ErrStaleAppointment)
	})

	t.Run("mark completed only touches scheduled", func(t *testing.T) {
		pid := uuid.New()
		past := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
		a := newAppointment(pid, past)
		b := newAppointment(pid, past.Add(time.Hour))
		require.NoError(t, repo.InsertAppointment(ctx, a))
		require.NoError(t, repo.InsertAppointment(ctx, b))

		due, err := repo.FindScheduledBefore(ctx, past.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, due, 2)

		n, err := repo.MarkCompleted(ctx, []uuid.UUID{a.ID, b.ID}, time.Now().UTC())
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = repo.MarkCompleted(ctx, []uuid.UUID{a.ID}, time.Now().UTC())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("between is half open", func(t *testing.T) {
		got, err := repo.FindScheduledBetween(ctx, base, base.Add(30*time.Minute))
		require.NoError(t, err)
		for _, a := range got {
			assert.False(t, a.ScheduledAt.Before(base))
			assert.True(t, a.ScheduledAt.Before(base.Add(30*time.Minute)))
		}
	})

	t.Run("transaction rolls back", func(t *testing.T) {
		a := newAppointment(uuid.New(), base)
		err := repo.WithinTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
			if err := tx.InsertAppointment(ctx, a); err != nil {
				return err
			}
			return errs.BusinessRule("abort")
		})
		require.Error(t, err)

		_, err = repo.GetAppointmentByID(ctx, a.ID)
		assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	})
}
