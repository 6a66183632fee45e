package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleWarden  UserRole = "WARDEN"
	RoleFaculty UserRole = "FACULTY"
	RoleGate    UserRole = "GATE"
	RoleStudent UserRole = "STUDENT"
)

// Staff reports whether the role may review requests and see all outings.
func (r UserRole) Staff() bool {
	return r == RoleAdmin || r == RoleWarden || r == RoleFaculty
}

// User represents an application user stored in the users table.
type User struct {
	ID           string       `db:"id" json:"id"`
	Email        string       `db:"email" json:"email"`
	PasswordHash string       `db:"password_hash" json:"-"`
	FullName     string       `db:"full_name" json:"full_name"`
	Role         UserRole     `db:"role" json:"role"`
	Active       bool         `db:"active" json:"active"`
	Guardians    GuardianList `db:"guardians" json:"guardians,omitempty"`
	LastLogin    *time.Time   `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
