package report

import "strings"

type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleCitizen   Role = "citizen"
	RoleStaff     Role = "staff"
	RoleOfficer   Role = "officer"
)

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAnonymous, RoleCitizen, RoleStaff, RoleOfficer:
		return true
	}
	return false
}

func (r Role) IsStaffLike() bool {
	return r == RoleStaff || r == RoleOfficer
}

// ParseRole falls back to anonymous for anything it does not recognise.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleAnonymous
}

// Actor is an already-authenticated identity. Ref is a stable reference to the person
// (user id or verified contact hash); Department is only meaningful for officers.
type Actor struct {
	Role       Role   `json:"role"`
	Ref        string `json:"ref,omitempty"`
	Department string `json:"department,omitempty"`
}

func Anonymous() Actor {
	return Actor{Role: RoleAnonymous}
}

func Citizen(ref string) Actor {
	return Actor{Role: RoleCitizen, Ref: ref}
}

func Staff(ref string) Actor {
	return Actor{Role: RoleStaff, Ref: ref}
}

func Officer(ref, department string) Actor {
	return Actor{Role: RoleOfficer, Ref: ref, Department: department}
}

func sameDepartment(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
