package user

import (
	"strconv"

	"github.com/rahulsahu-12/nexus2/core"
)

// Roles
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var (
	AllRoles = []string{RoleAdmin, RoleTeacher, RoleStudent}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

// IsValidRole reports whether role is one of AllRoles.
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Identity is the authenticated caller, resolved by the auth layer and trusted verbatim.
// Year is empty for users not attached to a class (teachers, admins).
type Identity struct {
	ID     int64  `json:"user_id"`
	Role   string `json:"role"`
	Branch string `json:"branch"`
	Year   string `json:"year"`
}

func NewIdentity(id int64, role, branch, year string) Identity {
	return Identity{
		ID:     id,
		Role:   core.CleanString(role, true /* lower */),
		Branch: core.CleanString(branch),
		Year:   core.CleanString(year),
	}
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

func (i Identity) IsTeacher() bool {
	return i.Role == RoleTeacher
}

func (i Identity) IsStudent() bool {
	return i.Role == RoleStudent
}

func (i Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if i.Role == role {
			return true
		}
	}
	return false
}

// InClass reports whether the identity belongs to the class (branch + year).
func (i Identity) InClass(branch, year string) bool {
	return i.Branch == branch && i.Year == year
}

// IDString is used where a textual user reference is needed (eg. rollbar person, JWT subject).
func (i Identity) IDString() string {
	return strconv.FormatInt(i.ID, 10)
}
