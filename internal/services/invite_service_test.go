package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dealbridge/dataroom/internal/models"
)

func TestInviteCreateOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")
	editor := env.createUser("editor@example.com")
	env.grantRole(room.ID, editor, models.RoleEditor)

	_, _, err := env.invites.Create(context.Background(), env.identity(editor), CreateInviteInput{
		DataRoomID: room.ID,
		Email:      "guest@example.com",
		Role:       models.RoleViewer,
	})
	require.ErrorIs(t, err, ErrNoPermission)
}

func TestInviteCreateRejectsOwnerRole(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")

	_, _, err := env.invites.Create(context.Background(), env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID,
		Email:      "guest@example.com",
		Role:       models.RoleOwner,
	})
	require.ErrorIs(t, err, ErrInviteRoleInvalid)
}

func TestInviteCreateStoresOnlyHash(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")

	invite, token, err := env.invites.Create(context.Background(), env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID,
		Email:      "Guest@Example.com",
		Role:       models.RoleViewer,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "guest@example.com", invite.Email)
	require.Equal(t, models.InviteStatusPending, invite.Status)
	require.NotEqual(t, token, invite.TokenHash)
	require.Equal(t, tokenHash(token), invite.TokenHash)
	require.Equal(t, env.now.Add(7*24*time.Hour), invite.ExpiresAt)

	require.EqualValues(t, 1, env.auditCount(room.ID, AuditActionInviteCreate))
}

func TestInviteCreateDuplicatePending(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	_, _, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	_, _, err = env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleEditor,
	})
	require.ErrorIs(t, err, ErrInviteAlreadyPending)
}

func TestInviteCreateEmailAlreadyHasAccess(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")
	env.grantRole(room.ID, guest, models.RoleViewer)

	_, _, err := env.invites.Create(context.Background(), env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.ErrorIs(t, err, ErrInviteEmailHasAccess)
}

func TestInviteAcceptHappyPath(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")

	ctx := context.Background()
	_, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	result, err := env.invites.Accept(ctx, env.identity(guest), token)
	require.NoError(t, err)
	require.False(t, result.AlreadyHadAccess)
	require.NotNil(t, result.Permission)
	require.Equal(t, models.RoleViewer, result.Permission.Role)
	require.Equal(t, models.InviteStatusAccepted, result.Invite.Status)
	require.NotNil(t, result.Invite.AcceptedAt)

	role, err := env.access.ResolveRole(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, role)
}

func TestInviteAcceptSingleUse(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")

	ctx := context.Background()
	_, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	_, err = env.invites.Accept(ctx, env.identity(guest), token)
	require.NoError(t, err)

	_, err = env.invites.Accept(ctx, env.identity(guest), token)
	require.ErrorIs(t, err, ErrInviteAlreadyUsed)
}

func TestInviteAcceptEmailMismatch(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	other := env.createUser("other@example.com")

	ctx := context.Background()
	_, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	_, err = env.invites.Accept(ctx, env.identity(other), token)
	require.ErrorIs(t, err, ErrInviteEmailMismatch)
}

func TestInviteAcceptExpiredFlipsStatus(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")

	ctx := context.Background()
	invite, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	env.advance(7*24*time.Hour + time.Minute)

	_, err = env.invites.Accept(ctx, env.identity(guest), token)
	require.ErrorIs(t, err, ErrInviteExpired)

	var stored models.DataRoomInvite
	require.NoError(t, env.db.First(&stored, "id = ?", invite.ID).Error)
	require.Equal(t, models.InviteStatusExpired, stored.Status)

	// No permission row resulted from the failed acceptance.
	role, err := env.access.ResolveRole(ctx, room.ID, guest.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleNone, role)
}

func TestInviteAcceptExistingPermissionIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")

	ctx := context.Background()
	_, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	// A concurrent acceptance already produced the permission row.
	env.grantRole(room.ID, guest, models.RoleViewer)

	result, err := env.invites.Accept(ctx, env.identity(guest), token)
	require.NoError(t, err)
	require.True(t, result.AlreadyHadAccess)

	var count int64
	require.NoError(t, env.db.Model(&models.DataRoomPermission{}).
		Where("data_room_id = ? AND user_id = ?", room.ID, guest.ID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestInviteRevoke(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	guest := env.createUser("guest@example.com")

	ctx := context.Background()
	invite, token, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
		DataRoomID: room.ID, Email: "guest@example.com", Role: models.RoleViewer,
	})
	require.NoError(t, err)

	require.NoError(t, env.invites.Revoke(ctx, env.identity(owner), room.ID, invite.ID))

	_, err = env.invites.Accept(ctx, env.identity(guest), token)
	require.ErrorIs(t, err, ErrInviteRevoked)

	// Revoking again is a no-op on a terminal invite.
	require.NoError(t, env.invites.Revoke(ctx, env.identity(owner), room.ID, invite.ID))
}

func TestExpireStaleSweep(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, _, err := env.invites.Create(ctx, env.identity(owner), CreateInviteInput{
			DataRoomID: room.ID, Email: email, Role: models.RoleViewer,
		})
		require.NoError(t, err)
	}

	env.advance(8 * 24 * time.Hour)

	affected, err := env.invites.ExpireStale(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, affected)

	invites, err := env.invites.List(ctx, env.identity(owner), room.ID)
	require.NoError(t, err)
	for _, invite := range invites {
		require.Equal(t, models.InviteStatusExpired, invite.Status)
	}
}
