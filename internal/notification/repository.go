package notification

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
)

type LogRepository interface {
	Save(ctx context.Context, e LogEntry) error
}

type PgLogRepository struct {
	pool *pgxpool.Pool
}

func NewPgLogRepository(pool *pgxpool.Pool) *PgLogRepository {
	return &PgLogRepository{pool: pool}
}

func (r *PgLogRepository) Save(ctx context.Context, e LogEntry) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_logs
			(appointment_id, patient_id, event_kind, recipient, status, error, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		e.AppointmentID,
		e.PatientID,
		string(e.EventKind),
		e.Recipient,
		string(e.Status),
		e.Error,
		e.Payload,
		e.CreatedAt,
	)
	return db.TranslateError(err, "insert notification log")
}
