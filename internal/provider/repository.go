package provider

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/db"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

type Repository interface {
	Upsert(ctx context.Context, p Projection) error
	GetProvider(ctx context.Context, id uuid.UUID) (*Projection, error)
	// ListProviders filters by specialty case-insensitively; an empty
	// specialty returns every projection.
	ListProviders(ctx context.Context, specialty string) ([]Projection, error)
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanProjection(row pgx.Row) (*Projection, error) {
	var p Projection
	var role string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.RegistrationNumber,
		&p.Specialty,
		&role,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Role = identity.Role(role)
	return &p, nil
}

func (r *PgRepository) Upsert(ctx context.Context, p Projection) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_projections (id, name, registration_number, specialty, role, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			registration_number = EXCLUDED.registration_number,
			specialty = EXCLUDED.specialty,
			role = EXCLUDED.role,
			updated_at = EXCLUDED.updated_at
	`, p.ID, p.Name, p.RegistrationNumber, p.Specialty, string(p.Role), p.UpdatedAt)
	return db.TranslateError(err, "upsert provider projection")
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Projection, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, registration_number, specialty, role, updated_at
		FROM provider_projections
		WHERE id = $1
	`, id)
	return scanProjection(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, specialty string) ([]Projection, error) {
	specialty = strings.TrimSpace(specialty)

	var (
		rows pgx.Rows
		err  error
	)
	if specialty == "" {
		rows, err = r.pool.Query(ctx, `
			SELECT id, name, registration_number, specialty, role, updated_at
			FROM provider_projections
			ORDER BY name
		`)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT id, name, registration_number, specialty, role, updated_at
			FROM provider_projections
			WHERE lower(specialty) = lower($1)
			ORDER BY name
		`, specialty)
	}
	if err != nil {
		return nil, db.TranslateError(err, "list provider projections")
	}
	defer rows.Close()

	var out []Projection
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
