package models

type Role string

const (
	RoleDesk       Role = "desk"
	RoleSpecialist Role = "specialist"
	RolePatient    Role = "patient"
	RoleDisplay    Role = "display"
	RoleSystem     Role = "system"
)

// External reports whether r may come from a token. The system role only
// exists inside the process.
func (r Role) External() bool {
	switch r {
	case RoleDesk, RoleSpecialist, RolePatient, RoleDisplay:
		return true
	}
	return false
}

// Actor is the caller identity handed over by the auth collaborator.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}
