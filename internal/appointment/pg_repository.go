package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
)

type PgRepository struct {
	q  db.DBTX
	tx *db.TxRunner
}

func NewPgRepository(q db.DBTX, tx *db.TxRunner) *PgRepository {
	return &PgRepository{q: q, tx: tx}
}

const appointmentColumns = `id, patient_id, patient_name, provider_id, provider_name,
		scheduled_at, details, status, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PatientName,
		&a.ProviderID,
		&a.ProviderName,
		&a.ScheduledAt,
		&a.Details,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Status = Status(status)
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, db.TranslateError(err, "iterate appointments")
	}
	return out, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ExistsForPatient(ctx context.Context, id, patientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1 AND patient_id = $2)
	`, id, patientID).Scan(&exists)
	if err != nil {
		return false, db.TranslateError(err, "check appointment ownership")
	}
	return exists, nil
}

func (r *PgRepository) FindConflicting(ctx context.Context, providerID uuid.UUID, w Window, excludeID uuid.UUID) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'CANCELLED'
		  AND scheduled_at < $3
		  AND (scheduled_at > $2 OR ($4 AND scheduled_at = $2))
		  AND id <> $5
		ORDER BY scheduled_at
	`, providerID, w.From, w.To, w.FromInclusive, excludeID)
	if err != nil {
		return nil, db.TranslateError(err, "find conflicting appointments")
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		a.ID, a.PatientID, a.PatientName, a.ProviderID, a.ProviderName,
		a.ScheduledAt, a.Details, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return db.TranslateError(err, "insert appointment")
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a Appointment, expected Status) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET patient_name = $2,
		    provider_name = $3,
		    scheduled_at = $4,
		    details = $5,
		    status = $6,
		    updated_at = $7
		WHERE id = $1 AND status = $8
	`,
		a.ID, a.PatientName, a.ProviderName, a.ScheduledAt, a.Details,
		string(a.Status), a.UpdatedAt, string(expected),
	)
	if err != nil {
		return db.TranslateError(err, "update appointment")
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleAppointment
	}
	return nil
}

func (r *PgRepository) FindScheduledBefore(ctx context.Context, before time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'SCHEDULED' AND scheduled_at < $1
		ORDER BY scheduled_at
	`, before)
	if err != nil {
		return nil, db.TranslateError(err, "find past scheduled appointments")
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindScheduledBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'SCHEDULED' AND scheduled_at >= $1 AND scheduled_at < $2
		ORDER BY scheduled_at
	`, from, to)
	if err != nil {
		return nil, db.TranslateError(err, "find scheduled appointments in range")
	}
	return collectAppointments(rows)
}

func (r *PgRepository) MarkCompleted(ctx context.Context, ids []uuid.UUID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET status = 'COMPLETED', updated_at = $2
		WHERE id = ANY($1) AND status = 'SCHEDULED'
	`, ids, now)
	if err != nil {
		return 0, db.TranslateError(err, "mark appointments completed")
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.tx == nil {
		// already bound to a transaction
		return fn(ctx, r)
	}
	return r.tx.RunInTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &PgRepository{q: tx})
	})
}
