package db

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

func TestOverlapGuard_Statements(t *testing.T) {
	t.Run("interval follows duration", func(t *testing.T) {
		g := OverlapGuard{Duration: 45 * time.Minute}
		assert.Equal(t, "interval=2700s", g.Tag())

		stmts := g.statements()
		require.Len(t, stmts, 4)
		assert.Contains(t, stmts[0], "DROP CONSTRAINT IF EXISTS "+OverlapConstraint)
		assert.Contains(t, stmts[1], "DROP INDEX IF EXISTS "+StartUniqueIndex)
		assert.Contains(t, stmts[2], "interval '2700 seconds'")
		assert.Contains(t, stmts[2], "WHERE (status <> 'CANCELLED')")
		assert.Contains(t, stmts[3], "'interval=2700s'")
	})

	t.Run("start only", func(t *testing.T) {
		g := OverlapGuard{Duration: 30 * time.Minute, StartOnly: true}
		assert.Equal(t, "start-only", g.Tag())

		stmts := g.statements()
		require.Len(t, stmts, 4)
		assert.Contains(t, stmts[2], "CREATE UNIQUE INDEX "+StartUniqueIndex)
		assert.NotContains(t, stmts[2], "tstzrange")
		assert.Contains(t, stmts[3], "COMMENT ON INDEX")
	})

	t.Run("default matches migration", func(t *testing.T) {
		assert.Equal(t, "interval=1800s", OverlapGuard{Duration: 30 * time.Minute}.Tag())
	})
}

func TestOverlapGuard_Validate(t *testing.T) {
	assert.NoError(t, OverlapGuard{Duration: time.Hour}.validate())
	assert.NoError(t, OverlapGuard{StartOnly: true}.validate())
	assert.Error(t, OverlapGuard{}.validate())
	assert.Error(t, OverlapGuard{Duration: 1500 * time.Millisecond}.validate())
}

func TestIsOverlapGuardViolation(t *testing.T) {
	assert.True(t, IsOverlapGuardViolation(&pgconn.PgError{Code: "23P01", ConstraintName: OverlapConstraint}))
	assert.True(t, IsOverlapGuardViolation(errs.Wrap(&pgconn.PgError{Code: "23505", ConstraintName: StartUniqueIndex}, "insert")))
	assert.False(t, IsOverlapGuardViolation(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_pkey"}))
	assert.False(t, IsOverlapGuardViolation(errors.New("boom")))
}
