package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	OverlapConstraint = "appointments_no_provider_overlap"
	StartUniqueIndex  = "appointments_provider_start_unique"

	overlapGuardLockID = 7240531
)

// OverlapGuard is the storage backstop for the per-provider overlap rule.
// The interval form excludes intersecting [t, t+Duration) ranges. StartOnly
// keeps just a unique (provider, start) index, for schedules where
// intervals are allowed to intersect.
type OverlapGuard struct {
	Duration  time.Duration
	StartOnly bool
}

// Tag identifies the guard in the catalog comment so an unchanged guard is
// not rebuilt.
func (g OverlapGuard) Tag() string {
	if g.StartOnly {
		return "start-only"
	}
	return fmt.Sprintf("interval=%ds", int64(g.Duration/time.Second))
}

func (g OverlapGuard) validate() error {
	if g.StartOnly {
		return nil
	}
	if g.Duration < time.Second || g.Duration%time.Second != 0 {
		return fmt.Errorf("overlap guard duration must be a positive whole number of seconds, got %s", g.Duration)
	}
	return nil
}

func (g OverlapGuard) statements() []string {
	stmts := []string{
		`ALTER TABLE appointments DROP CONSTRAINT IF EXISTS ` + OverlapConstraint,
		`DROP INDEX IF EXISTS ` + StartUniqueIndex,
	}
	if g.StartOnly {
		return append(stmts,
			`CREATE UNIQUE INDEX `+StartUniqueIndex+` ON appointments (provider_id, scheduled_at) WHERE status <> 'CANCELLED'`,
			fmt.Sprintf(`COMMENT ON INDEX %s IS '%s'`, StartUniqueIndex, g.Tag()),
		)
	}
	return append(stmts,
		fmt.Sprintf(`ALTER TABLE appointments ADD CONSTRAINT %s EXCLUDE USING gist (
    provider_id WITH =,
    tstzrange(scheduled_at, scheduled_at + interval '%d seconds', '[)') WITH &&
) WHERE (status <> 'CANCELLED')`, OverlapConstraint, int64(g.Duration/time.Second)),
		fmt.Sprintf(`COMMENT ON CONSTRAINT %s ON appointments IS '%s'`, OverlapConstraint, g.Tag()),
	)
}

// CurrentOverlapGuard returns the tag of the guard installed in the database,
// or "" when none is.
func CurrentOverlapGuard(ctx context.Context, q DBTX) (string, error) {
	var tag *string
	err := q.QueryRow(ctx, `
		SELECT coalesce(
			(SELECT obj_description(oid, 'pg_constraint') FROM pg_constraint WHERE conname = $1),
			obj_description(to_regclass($2), 'pg_class')
		)
	`, OverlapConstraint, StartUniqueIndex).Scan(&tag)
	if err != nil {
		return "", fmt.Errorf("read overlap guard: %w", err)
	}
	if tag == nil {
		return "", nil
	}
	return *tag, nil
}

// ApplyOverlapGuard rebuilds the backstop when the installed one does not
// match g and reports whether it changed anything. Rebuilding fails if the
// stored appointments already violate g.
func ApplyOverlapGuard(ctx context.Context, pool *pgxpool.Pool, g OverlapGuard) (bool, error) {
	if err := g.validate(); err != nil {
		return false, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// replicas starting together apply it once
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, overlapGuardLockID); err != nil {
		return false, fmt.Errorf("lock overlap guard: %w", err)
	}

	current, err := CurrentOverlapGuard(ctx, tx)
	if err != nil {
		return false, err
	}
	if current == g.Tag() {
		return false, nil
	}

	for _, stmt := range g.statements() {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return false, fmt.Errorf("apply overlap guard %s: %w", g.Tag(), err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit overlap guard: %w", err)
	}
	return true, nil
}

// IsOverlapGuardViolation reports whether err was raised by the overlap
// backstop in either of its forms.
func IsOverlapGuardViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23P01":
		return true
	case "23505":
		return pgErr.ConstraintName == StartUniqueIndex
	default:
		return false
	}
}
