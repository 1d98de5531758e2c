package history

import (
	"context"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/errs"
	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

var ErrClinicalOnly = errs.Forbidden("history query requires a clinical role")

// Query serves history reads filtered by what the caller may see.
type Query struct {
	repo Repository
}

func NewQuery(repo Repository) *Query {
	return &Query{repo: repo}
}

// List returns everything to clinical roles, a patient's own records to a
// patient, and nothing to anyone else.
func (q *Query) List(ctx context.Context, caller identity.Principal) ([]Record, error) {
	switch {
	case caller.Role.IsClinical():
		return q.repo.ListAll(ctx)
	case caller.Role == identity.RolePatient:
		return q.repo.ListByPatient(ctx, caller.UserID)
	default:
		return []Record{}, nil
	}
}

// Get hides records the caller may not see behind ErrRecordNotFound.
func (q *Query) Get(ctx context.Context, caller identity.Principal, id uuid.UUID) (*Record, error) {
	rec, err := q.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !Visible(caller, *rec) {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

func (q *Query) ByPatient(ctx context.Context, caller identity.Principal, patientID uuid.UUID) ([]Record, error) {
	if !caller.Role.IsClinical() {
		return nil, ErrClinicalOnly
	}
	return q.repo.ListByPatient(ctx, patientID)
}

func (q *Query) ByProvider(ctx context.Context, caller identity.Principal, providerID uuid.UUID) ([]Record, error) {
	if !caller.Role.IsClinical() {
		return nil, ErrClinicalOnly
	}
	return q.repo.ListByProvider(ctx, providerID)
}

func Visible(caller identity.Principal, r Record) bool {
	if caller.Role.IsClinical() {
		return true
	}
	return caller.Role == identity.RolePatient && caller.UserID != uuid.Nil && caller.UserID == r.PatientID
}
