//go:build integration

package notification_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/notification"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/testinfra"
)

func TestPgLogRepository_Save(t *testing.T) {
	pool := testinfra.Postgres(t)
	repo := notification.NewPgLogRepository(pool)
	ctx := context.Background()

	entry := notification.LogEntry{
		AppointmentID: uuid.New(),
		PatientID:     uuid.New(),
		EventKind:     events.KindReminder,
		Recipient:     "paciente@example.com",
		Status:        notification.StatusSent,
		Payload:       json.RawMessage(`{"eventKind":"LEMBRETE"}`),
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, repo.Save(ctx, entry))

	failed := entry
	failed.Status = notification.StatusFailedNoEmail
	failed.Recipient = ""
	require.NoError(t, repo.Save(ctx, failed), "one row per attempt")

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM notification_logs WHERE appointment_id = $1`, entry.AppointmentID,
	).Scan(&count))
	assert.Equal(t, 2, count)

	bad := entry
	bad.Status = "BOUNCED"
	err := repo.Save(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, errs.KindIntegrity, errs.KindOf(err))
}
