package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dealbridge/dataroom/internal/models"
)

func TestResolveRolePermissionRowWins(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)

	role, err := env.access.ResolveRole(context.Background(), room.ID, viewer.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, role)
}

func TestResolveRoleListingOwnerWithoutRow(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")

	var count int64
	require.NoError(t, env.db.Model(&models.DataRoomPermission{}).
		Where("data_room_id = ?", room.ID).Count(&count).Error)
	require.Zero(t, count, "owner role must stay computed, never stored")

	role, err := env.access.ResolveRole(context.Background(), room.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, role)
}

func TestResolveRoleStranger(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")
	stranger := env.createUser("stranger@example.com")

	role, err := env.access.ResolveRole(context.Background(), room.ID, stranger.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleNone, role)
}

func TestAcceptNDARequiresRole(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")
	stranger := env.createUser("stranger@example.com")

	err := env.access.AcceptNDA(context.Background(), room.ID, env.identity(stranger))
	require.ErrorIs(t, err, ErrNoPermission)
}

func TestAcceptNDAIdempotent(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")
	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)

	ctx := context.Background()
	require.NoError(t, env.access.AcceptNDA(ctx, room.ID, env.identity(viewer)))
	require.NoError(t, env.access.AcceptNDA(ctx, room.ID, env.identity(viewer)))

	var count int64
	require.NoError(t, env.db.Model(&models.NDAAcceptance{}).
		Where("data_room_id = ?", room.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.EqualValues(t, 1, env.auditCount(room.ID, AuditActionNDAAccept))
}

func TestNDASatisfiedMatchesByEmail(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")
	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)

	acceptance := models.NDAAcceptance{
		DataRoomID: room.ID,
		Email:      "viewer@example.com",
		AcceptedAt: env.now,
	}
	require.NoError(t, env.db.Create(&acceptance).Error)

	ok, err := env.access.NDASatisfied(context.Background(), room.ID, Identity{UserID: viewer.ID, Email: "Viewer@Example.com"})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRequireDocumentAccessNDAGate(t *testing.T) {
	env := newTestEnv(t)
	owner, room := env.createRoom("owner@example.com")
	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)

	ctx := context.Background()

	_, _, err := env.access.RequireDocumentAccess(ctx, room, env.identity(viewer))
	require.ErrorIs(t, err, ErrNDARequired)

	// Managers bypass the gate without an acceptance on record.
	role, ndaOK, err := env.access.RequireDocumentAccess(ctx, room, env.identity(owner))
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, role)
	require.True(t, ndaOK)

	env.acceptNDA(room.ID, viewer)
	role, ndaOK, err = env.access.RequireDocumentAccess(ctx, room, env.identity(viewer))
	require.NoError(t, err)
	require.Equal(t, models.RoleViewer, role)
	require.True(t, ndaOK)
}

func TestHasActiveTransaction(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.createRoom("owner@example.com")
	buyer := env.createUser("buyer@example.com")

	registry, err := NewDBTransactionRegistry(env.db)
	require.NoError(t, err)

	var listing models.Listing
	require.NoError(t, env.db.First(&listing, "owner_id = ?", owner.ID).Error)

	ctx := context.Background()
	active, err := registry.HasActiveTransaction(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	require.False(t, active)

	txn := models.Transaction{
		ListingID: listing.ID,
		BuyerID:   buyer.ID,
		SellerID:  owner.ID,
		Status:    models.TransactionStatusActive,
	}
	require.NoError(t, env.db.Create(&txn).Error)

	active, err = registry.HasActiveTransaction(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	require.True(t, active)

	// A closed transaction no longer qualifies.
	require.NoError(t, env.db.Model(&txn).Update("status", models.TransactionStatusClosed).Error)
	active, err = registry.HasActiveTransaction(ctx, listing.ID, buyer.ID)
	require.NoError(t, err)
	require.False(t, active)
}
