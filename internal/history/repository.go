package history

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/events"
)

type Repository interface {
	Upsert(ctx context.Context, r Record) error
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Record, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Record, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const recordColumns = `id, patient_id, patient_name, provider_id, provider_name,
		scheduled_at, status, last_event_kind, projected_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	var kind string

	err := row.Scan(
		&r.ID,
		&r.PatientID,
		&r.PatientName,
		&r.ProviderID,
		&r.ProviderName,
		&r.ScheduledAt,
		&r.Status,
		&kind,
		&r.ProjectedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	r.LastEventKind = events.Kind(kind)
	return &r, nil
}

func (p *PgRepository) Upsert(ctx context.Context, r Record) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO appointment_history (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			patient_name = EXCLUDED.patient_name,
			provider_id = EXCLUDED.provider_id,
			provider_name = EXCLUDED.provider_name,
			scheduled_at = EXCLUDED.scheduled_at,
			status = EXCLUDED.status,
			last_event_kind = EXCLUDED.last_event_kind,
			projected_at = EXCLUDED.projected_at
	`,
		r.ID, r.PatientID, r.PatientName, r.ProviderID, r.ProviderName,
		r.ScheduledAt, r.Status, string(r.LastEventKind), r.ProjectedAt,
	)
	return db.TranslateError(err, "upsert history record")
}

func (p *PgRepository) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM appointment_history WHERE id = $1`, id)
	return scanRecord(row)
}

func (p *PgRepository) ListAll(ctx context.Context) ([]Record, error) {
	return p.list(ctx, `SELECT `+recordColumns+` FROM appointment_history ORDER BY scheduled_at DESC`)
}

func (p *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Record, error) {
	return p.list(ctx, `SELECT `+recordColumns+` FROM appointment_history WHERE patient_id = $1 ORDER BY scheduled_at DESC`, patientID)
}

func (p *PgRepository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]Record, error) {
	return p.list(ctx, `SELECT `+recordColumns+` FROM appointment_history WHERE provider_id = $1 ORDER BY scheduled_at DESC`, providerID)
}

func (p *PgRepository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, db.TranslateError(err, "query history")
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
