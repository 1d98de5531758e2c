package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

func scheduled() Appointment {
	at := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	return Appointment{
		ID:           uuid.New(),
		PatientID:    uuid.New(),
		PatientName:  "Ana",
		ProviderID:   uuid.New(),
		ProviderName: "Dr. Silva",
		ScheduledAt:  at,
		Details:      "checkup",
		Status:       StatusScheduled,
		CreatedAt:    at.Add(-48 * time.Hour),
		UpdatedAt:    at.Add(-48 * time.Hour),
	}
}

func TestAppointment_Reschedule(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	a := scheduled()
	newAt := a.ScheduledAt.Add(2 * time.Hour)

	got, err := a.Reschedule(newAt, "follow-up", "Ana Souza", "Dr. Silva Jr", now)
	require.NoError(t, err)
	assert.Equal(t, newAt, got.ScheduledAt)
	assert.Equal(t, "follow-up", got.Details)
	assert.Equal(t, "Ana Souza", got.PatientName)
	assert.Equal(t, "Dr. Silva Jr", got.ProviderName)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, now, got.UpdatedAt)

	// receiver untouched
	assert.Equal(t, "checkup", a.Details)
}

func TestAppointment_TerminalStatesRejectTransitions(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)

	for _, status := range []Status{StatusCancelled, StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			a := scheduled()
			a.Status = status

			got, err := a.Reschedule(a.ScheduledAt.Add(time.Hour), "x", "y", "z", now)
			assert.Equal(t, errs.KindBusinessRule, errs.KindOf(err))
			assert.Equal(t, a, got)

			got, err = a.Cancel(now)
			assert.Equal(t, errs.KindBusinessRule, errs.KindOf(err))
			assert.Equal(t, a, got)

			got, err = a.Complete(now)
			assert.Equal(t, errs.KindBusinessRule, errs.KindOf(err))
			assert.Equal(t, a, got)

			assert.True(t, status.Terminal())
		})
	}
}

func TestAppointment_Cancel(t *testing.T) {
	now := time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC)
	got, err := scheduled().Cancel(now)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, "Cancelled by staff at 2026-03-09T09:15:00Z", got.Details)
}

func TestAppointment_Complete(t *testing.T) {
	now := time.Date(2026, 3, 11, 1, 0, 0, 0, time.UTC)
	got, err := scheduled().Complete(now)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.False(t, StatusScheduled.Terminal())
}
