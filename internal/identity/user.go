package identity

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleProvider Role = "provider"
	RoleNurse    Role = "nurse"
	RolePatient  Role = "patient"
)

// ParseRole normalizes the English role names and the legacy Portuguese ones
// (MEDICO, ENFERMEIRO, PACIENTE). Unknown roles come back lower-cased with
// ok=false.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "provider", "medico", "médico", "doctor":
		return RoleProvider, true
	case "nurse", "enfermeiro":
		return RoleNurse, true
	case "patient", "paciente":
		return RolePatient, true
	default:
		return Role(strings.ToLower(strings.TrimSpace(s))), false
	}
}

// IsClinical reports whether the role may act on any appointment.
func (r Role) IsClinical() bool {
	return r == RoleProvider || r == RoleNurse
}

// User is the identity directory's canonical record.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	CPF                string    `json:"cpf"`
	Email              string    `json:"email"`
	Phone              string    `json:"phone"`
	Role               string    `json:"role"`
	RegistrationNumber string    `json:"registrationNumber,omitempty"`
	Specialty          string    `json:"specialty,omitempty"`
	BirthDate          string    `json:"birthDate,omitempty"`
}

func (u User) NormalizedRole() Role {
	r, _ := ParseRole(u.Role)
	return r
}

// Principal is the authenticated caller behind a request.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
