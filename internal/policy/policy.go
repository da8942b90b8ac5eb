// Package policy is the single place where role capabilities are decided.
// It is pure: no I/O, no global state.
package policy

import (
	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

// Actor is the resolved identity of the caller. It is built once at the
// HTTP boundary from the bearer credential and the identity store, then
// passed explicitly to every operation.
type Actor struct {
	UserID uint64     `json:"user_id"`
	Role   model.Role `json:"role"`
}

// closure maps a role to every capability it holds.
var closure = map[model.Role][]model.Role{
	model.RoleAdmin:     {model.RoleAdmin, model.RoleTherapist, model.RoleUser},
	model.RoleTherapist: {model.RoleTherapist, model.RoleUser},
	model.RoleUser:      {model.RoleUser},
}

// HasCapability reports whether actor's capability closure intersects
// required. An unknown actor role or an empty required set denies.
func HasCapability(actor model.Role, required ...model.Role) bool {
	for _, held := range closure[actor] {
		for _, r := range required {
			if held == r {
				return true
			}
		}
	}
	return false
}

// Authorize is HasCapability as an error.
func Authorize(a Actor, required ...model.Role) error {
	if HasCapability(a.Role, required...) {
		return nil
	}
	return apperr.PermissionDenied("role %q lacks capability %v", a.Role, required)
}

// IsAdmin is shorthand for the admin capability check.
func IsAdmin(a Actor) bool { return HasCapability(a.Role, model.RoleAdmin) }

// IsStaff reports whether a holds therapist capability (therapists and admins).
func IsStaff(a Actor) bool { return HasCapability(a.Role, model.RoleTherapist) }
