package appointment

import (
	"context"

	"github.com/google/uuid"

	"github.com/JavaTeamPosTech/meu-hospital-microservices/internal/identity"
)

type Action string

const (
	ActionView          Action = "view"
	ActionCreate        Action = "create"
	ActionEdit          Action = "edit"
	ActionCancel        Action = "cancel"
	ActionListProviders Action = "list_providers"
)

type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Authorize is evaluated before the action runs. Clinical roles may do
// anything; a patient may only view appointments it owns.
func (s *Service) Authorize(ctx context.Context, caller identity.Principal, action Action, appointmentID uuid.UUID) (Decision, error) {
	if caller.UserID == uuid.Nil {
		return deny("unauthenticated"), nil
	}
	if caller.Role.IsClinical() {
		return allow("clinical role"), nil
	}
	if action == ActionListProviders {
		return allow("authenticated"), nil
	}
	if caller.Role != identity.RolePatient {
		return deny("role not permitted"), nil
	}
	if action != ActionView {
		return deny("action requires a clinical role"), nil
	}

	owner, err := s.IsOwner(ctx, appointmentID, caller.UserID)
	if err != nil {
		return Decision{}, err
	}
	if !owner {
		return deny("patient does not own this appointment"), nil
	}
	return allow("patient owns appointment"), nil
}
