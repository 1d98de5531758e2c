package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      errs.Kind
		message   string
		exclusion bool
	}{
		{"exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_provider_overlap"}, errs.KindIntegrity, "conflicting record exists", true},
		{"unique", &pgconn.PgError{Code: "23505", TableName: "appointments"}, errs.KindIntegrity, "record already exists", false},
		{"check", &pgconn.PgError{Code: "23514"}, errs.KindIntegrity, "field value not allowed", false},
		{"syntax", &pgconn.PgError{Code: "42601"}, errs.KindInternal, "data integrity violation", false},
		{"plain", errors.New("conn reset"), errs.KindInternal, "data integrity violation", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := TranslateError(tt.err, "insert appointment")
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, tt.message, IntegrityMessage(err))
			assert.Equal(t, tt.exclusion, IsExclusionViolation(err))
			assert.NotContains(t, IntegrityMessage(err), "appointments")
		})
	}

	assert.NoError(t, TranslateError(nil, "noop"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(errs.Wrap(&pgconn.PgError{Code: "40P01"}, "update")))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23P01"}))
	assert.False(t, isRetryable(errors.New("boom")))
}
