package models

import "time"

// UserRole is the closed set of roles known to the application.
type UserRole string

const (
	RoleStudent   UserRole = "STUDENT"
	RoleTeacher   UserRole = "TEACHER"
	RoleLibrarian UserRole = "LIBRARIAN"
)

// Valid reports whether the role is one of the known variants.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleLibrarian:
		return true
	default:
		return false
	}
}

// CanVerifyBooks reports whether the role may approve or reject book logs.
func (r UserRole) CanVerifyBooks() bool {
	return r == RoleLibrarian
}

// CanManageRoster reports whether the role may administer users, lexile
// records and points.
func (r UserRole) CanManageRoster() bool {
	return r == RoleLibrarian
}

// CanComment reports whether the role may leave comments on book logs.
func (r UserRole) CanComment() bool {
	return r == RoleTeacher || r == RoleLibrarian
}

// CanViewClassOverview reports whether the role may read class-wide lexile
// data.
func (r UserRole) CanViewClassOverview() bool {
	return r == RoleTeacher || r == RoleLibrarian
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Grade        *string    `db:"grade" json:"grade,omitempty"`
	ClassName    *string    `db:"class_name" json:"class_name,omitempty"`
	LexileLevel  *int       `db:"lexile_level" json:"lexile_level,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Grade     string
	ClassName string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
