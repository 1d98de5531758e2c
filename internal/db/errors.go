package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
)

var integrityMessages = map[string]string{
	"23505": "record already exists",
	"23P01": "conflicting record exists",
	"23503": "referenced record does not exist",
	"23502": "required field is missing",
	"23514": "field value not allowed",
}

// TranslateError marks constraint violations as data-integrity errors. Other
// errors are wrapped with msg and returned unmarked.
func TranslateError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := integrityMessages[pgErr.Code]; ok {
			return errs.Mark(errs.Wrap(err, msg), errs.ErrDataIntegrity)
		}
	}
	return errs.Wrap(err, msg)
}

// IntegrityMessage returns a client-safe description of a constraint
// violation. Table and constraint names never appear in it.
func IntegrityMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if m, ok := integrityMessages[pgErr.Code]; ok {
			return m
		}
	}
	return "data integrity violation"
}

// IsExclusionViolation reports whether err came from an exclusion constraint.
func IsExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
