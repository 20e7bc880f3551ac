package model

import "time"

// Role values carried in access tokens.
const (
	RoleStudent    = "student"
	RoleClubAdmin  = "club_admin"
	RoleSuperAdmin = "super_admin"
)

// User represents an application user record as stored in the
// `users` table.  Students register for events; club and super admins
// organize them.
//
// Fields:
//
//	ID           – opaque identifier (UUID).
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash; nil for accounts without a password.
//	FirstName    – optional given name.
//	LastName     – optional family name.
//	Role         – student, club_admin or super_admin.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash *string   `json:"-"`
	FirstName    *string   `json:"first_name,omitempty"`
	LastName     *string   `json:"last_name,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

