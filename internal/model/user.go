// Package model defines the data structures used throughout the application.
package model

import "time"

// Role is the closed set of access levels a user record can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// DefaultRole is assigned to new users and to legacy records that predate
// role tracking.
const DefaultRole = RoleUser

// Valid reports whether r is one of the known roles. The empty Role is what
// the store returns for a legacy record without a role and is not valid.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ParseRole converts untrusted input into a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// User is the internal record for an external identity.
//
// ExternalID is empty only for orphaned records created before sign-in was
// wired to an identity provider. Role is empty only for legacy records; use
// EffectiveRole when making decisions.
type User struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"externalId,omitempty"`
	Role        Role      `json:"role,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EffectiveRole returns the stored role, or DefaultRole when none is set.
func (u *User) EffectiveRole() Role {
	if u.Role.Valid() {
		return u.Role
	}
	return DefaultRole
}
