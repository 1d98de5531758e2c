// Package errs classifies failures into the kinds the HTTP layer and the
// workers know how to surface.
package errs

import (
	"fmt"
	"strings"

	cr "github.com/cockroachdb/errors"
)

// Kind markers. Concrete errors are marked with exactly one of them.
var (
	ErrNotFound              = cr.New("not found")
	ErrBusinessRule          = cr.New("business rule violation")
	ErrDependencyUnavailable = cr.New("dependency unavailable")
	ErrDataIntegrity         = cr.New("data integrity violation")
	ErrForbidden             = cr.New("forbidden")
)

type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindBusinessRule Kind = "BUSINESS_RULE_VIOLATION"
	KindUnavailable  Kind = "DEPENDENCY_UNAVAILABLE"
	KindIntegrity    Kind = "DATA_INTEGRITY_VIOLATION"
	KindForbidden    Kind = "FORBIDDEN"
	KindInternal     Kind = "INTERNAL"
)

func NotFound(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrNotFound)
}

func BusinessRule(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrBusinessRule)
}

func DataIntegrity(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrDataIntegrity)
}

func Forbidden(format string, args ...any) error {
	return cr.Mark(cr.Newf(format, args...), ErrForbidden)
}

// Unavailable marks err as a dependency failure. A nil err produces a fresh
// error carrying only msg.
func Unavailable(err error, msg string) error {
	if err == nil {
		return cr.Mark(cr.New(msg), ErrDependencyUnavailable)
	}
	return cr.Mark(cr.Wrap(err, msg), ErrDependencyUnavailable)
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return cr.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return cr.Wrapf(err, format, args...)
}

func New(msg string) error {
	return cr.New(msg)
}

func Mark(err error, markErr error) error {
	if err == nil {
		return markErr
	}
	return cr.Mark(err, markErr)
}

func Is(err, reference error) bool {
	return cr.Is(err, reference)
}

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case cr.Is(err, ErrNotFound):
		return KindNotFound
	case cr.Is(err, ErrBusinessRule):
		return KindBusinessRule
	case cr.Is(err, ErrDependencyUnavailable):
		return KindUnavailable
	case cr.Is(err, ErrDataIntegrity):
		return KindIntegrity
	case cr.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}

// ExtractStackLines renders the error with its stack trace, truncated for logs.
func ExtractStackLines(err error, maxLines int) []string {
	if err == nil {
		return nil
	}
	s := fmt.Sprintf("%+v", err)
	lines := strings.Split(s, "\n")
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}
