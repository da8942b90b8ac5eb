package workflow

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
	"github.com/iliyamo/mindwell/internal/queue"
)

// PromoteUser sets a user's role directly, outside the application
// workflow. Admins cannot change their own role, which keeps at least the
// caller's admin seat in place. Setting the current role is a no-op.
func (e *Engine) PromoteUser(ctx context.Context, a policy.Actor, userID uint64, role model.Role) (*model.User, error) {
	defer observe("promote_user", time.Now())
	if err := policy.Authorize(a, model.RoleAdmin); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}
	if userID == a.UserID {
		return nil, apperr.Validation("admins cannot change their own role")
	}

	var before model.Role
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		before = u.Role
		u.Role = role
		return nil
	})
	if err != nil {
		e.logFailure("promote_user", err)
		return nil, err
	}
	if before == role {
		return u, nil
	}

	e.log.Info("user role changed by admin",
		zap.Uint64("user_id", u.ID), zap.String("from", string(before)),
		zap.String("to", string(role)), zap.Uint64("actor_id", a.UserID))
	ev := e.event(a, queue.EventUserRoleChanged, u.ID)
	ev.From, ev.To = string(before), string(role)
	ev.Data = map[string]string{"cause": "admin_override"}
	e.emit(ctx, ev)
	return u, nil
}

// SetUserActive activates or deactivates an account. Deactivated users
// keep their role and records but can no longer authenticate.
func (e *Engine) SetUserActive(ctx context.Context, a policy.Actor, userID uint64, active bool) (*model.User, error) {
	defer observe("set_user_active", time.Now())
	if err := policy.Authorize(a, model.RoleAdmin); err != nil {
		return nil, err
	}
	if userID == a.UserID && !active {
		return nil, apperr.Validation("admins cannot deactivate themselves")
	}

	var before bool
	u, err := e.users.Update(ctx, userID, func(u *model.User) error {
		before = u.IsActive
		u.IsActive = active
		return nil
	})
	if err != nil {
		e.logFailure("set_user_active", err)
		return nil, err
	}
	if before == active {
		return u, nil
	}

	ev := e.event(a, queue.EventUserActiveChanged, u.ID)
	ev.Data = map[string]string{"is_active": strconv.FormatBool(active)}
	e.emit(ctx, ev)
	return u, nil
}

// GetUser returns the actor's own record, or any record to staff.
func (e *Engine) GetUser(ctx context.Context, a policy.Actor, userID uint64) (*model.User, error) {
	if err := policy.Authorize(a, model.RoleUser); err != nil {
		return nil, err
	}
	if userID != a.UserID && !policy.IsStaff(a) {
		return nil, apperr.PermissionDenied("user %d is not visible", userID)
	}
	u, err := e.users.GetByID(ctx, userID)
	e.logFailure("get_user", err)
	return u, err
}

// ListUsers is the admin directory.
func (e *Engine) ListUsers(ctx context.Context, a policy.Actor, f model.UserFilter) ([]model.User, int, error) {
	if err := policy.Authorize(a, model.RoleAdmin); err != nil {
		return nil, 0, err
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperr.Validation("unknown role %q", f.Role)
	}
	users, total, err := e.users.List(ctx, f)
	e.logFailure("list_users", err)
	return users, total, err
}
