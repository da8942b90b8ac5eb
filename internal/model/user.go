package model

import "time"

// Role is the authoritative privilege level of a user. The set is closed:
// user ⊂ therapist ⊂ admin.
type Role string

const (
	RoleUser      Role = "user"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// Roles lists every valid role from least to most privileged.
var Roles = []Role{RoleUser, RoleTherapist, RoleAdmin}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTherapist, RoleAdmin:
		return true
	}
	return false
}

// User represents an account as stored in the `users` table. Users are
// never deleted; IsActive=false locks the account out of the gateway.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password (never serialised).
//  Role         – authoritative role, changed only by the workflow engine.
//  IsActive     – whether the account may authenticate.
//  CreatedAt    – timestamp of creation.
//  LastLoginAt  – last successful login (nil if never).
type User struct {
	ID           uint64     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// UserFilter narrows admin user listings. Search matches username or
// email as a substring; an empty Role matches every role.
type UserFilter struct {
	Search string
	Role   Role
	Skip   int
	Limit  int
}

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA‑256 hash of the raw token is kept.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
