package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/queue"
)

func TestPromoteUser(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", model.RoleUser)
	doc := f.user(t, "doc", model.RoleTherapist)

	_, err := f.engine.PromoteUser(f.ctx, doc, alice.UserID, model.RoleTherapist)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.engine.PromoteUser(f.ctx, f.admin, alice.UserID, "owner")
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.engine.PromoteUser(f.ctx, f.admin, f.admin.UserID, model.RoleUser)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.engine.PromoteUser(f.ctx, f.admin, 777, model.RoleTherapist)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	u, err := f.engine.PromoteUser(f.ctx, f.admin, alice.UserID, model.RoleTherapist)
	require.NoError(t, err)
	assert.Equal(t, model.RoleTherapist, u.Role)
	assert.Equal(t, []string{queue.EventUserRoleChanged}, f.events.types())

	// Same role again is accepted but emits nothing.
	_, err = f.engine.PromoteUser(f.ctx, f.admin, alice.UserID, model.RoleTherapist)
	require.NoError(t, err)
	assert.Len(t, f.events.types(), 1)

	u, err = f.engine.PromoteUser(f.ctx, f.admin, doc.UserID, model.RoleUser)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, u.Role)
}

func TestSetUserActive(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", model.RoleUser)

	_, err := f.engine.SetUserActive(f.ctx, alice, alice.UserID, false)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = f.engine.SetUserActive(f.ctx, f.admin, f.admin.UserID, false)
	require.ErrorIs(t, err, apperr.ErrValidation)

	u, err := f.engine.SetUserActive(f.ctx, f.admin, alice.UserID, false)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	assert.Equal(t, model.RoleUser, u.Role)
}

func TestUserReads(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice", model.RoleUser)
	bob := f.user(t, "bob", model.RoleTherapist)

	me, err := f.engine.GetUser(f.ctx, alice, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", me.Username)

	_, err = f.engine.GetUser(f.ctx, alice, bob.UserID)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, _, err = f.engine.ListUsers(f.ctx, bob, model.UserFilter{})
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	users, total, err := f.engine.ListUsers(f.ctx, f.admin, model.UserFilter{Role: model.RoleTherapist})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, users, 1)
	assert.Equal(t, bob.UserID, users[0].ID)

	_, _, err = f.engine.ListUsers(f.ctx, f.admin, model.UserFilter{Role: "root"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}
