package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/pkg/metrics"
)

func TestAuditLogPersistsEntry(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	err := env.audit.Log(context.Background(), AuditRecord{
		DataRoomID: room.ID,
		Actor:      Identity{UserID: "11111111-1111-4111-8111-111111111111", Email: "Viewer@Example.com", IPAddress: "203.0.113.9", UserAgent: "test-agent"},
		Action:     AuditActionRoomView,
		TargetType: AuditTargetRoom,
		TargetID:   room.ID,
		Metadata:   map[string]any{"source": "test"},
	})
	require.NoError(t, err)

	var entry models.AuditEntry
	require.NoError(t, env.db.First(&entry, "data_room_id = ?", room.ID).Error)
	require.Equal(t, AuditActionRoomView, entry.Action)
	require.Equal(t, "viewer@example.com", entry.ActorEmail)
	require.NotNil(t, entry.ActorID)
	require.Equal(t, "203.0.113.9", entry.IPAddress)
	require.NotEmpty(t, entry.Metadata)
}

func TestAuditLogRequiresActionAndRoom(t *testing.T) {
	env := newTestEnv(t)

	require.Error(t, env.audit.Log(context.Background(), AuditRecord{DataRoomID: "room"}))
	require.Error(t, env.audit.Log(context.Background(), AuditRecord{Action: AuditActionRoomView}))
}

func TestAuditListPaginationAndFilters(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	actor := Identity{UserID: "22222222-2222-4222-8222-222222222222", Email: "a@example.com"}
	for i := 0; i < 3; i++ {
		require.NoError(t, env.audit.Log(ctx, AuditRecord{
			DataRoomID: room.ID,
			Actor:      actor,
			Action:     AuditActionRoomView,
			TargetType: AuditTargetRoom,
			TargetID:   room.ID,
		}))
	}
	require.NoError(t, env.audit.Log(ctx, AuditRecord{
		DataRoomID: room.ID,
		Actor:      actor,
		Action:     AuditActionUpload,
		TargetType: AuditTargetDocument,
		TargetID:   "doc",
	}))

	entries, total, err := env.audit.List(ctx, room.ID, AuditListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, entries, 2)

	entries, total, err = env.audit.List(ctx, room.ID, AuditListOptions{
		Filters: AuditFilters{Action: AuditActionUpload},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, AuditActionUpload, entries[0].Action)
}

func TestAuditExportHonoursTimeWindow(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	require.NoError(t, env.audit.Log(ctx, AuditRecord{
		DataRoomID: room.ID,
		Action:     AuditActionRoomView,
		TargetType: AuditTargetRoom,
		TargetID:   room.ID,
	}))

	future := time.Now().Add(time.Hour)
	entries, err := env.audit.Export(ctx, room.ID, AuditFilters{Since: &future})
	require.NoError(t, err)
	require.Empty(t, entries)

	past := time.Now().Add(-time.Hour)
	entries, err = env.audit.Export(ctx, room.ID, AuditFilters{Since: &past})
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAuditCleanupOlderThan(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	stale := models.AuditEntry{
		DataRoomID: room.ID,
		Action:     AuditActionRoomView,
		CreatedAt:  time.Now().AddDate(0, 0, -400),
	}
	require.NoError(t, env.db.Create(&stale).Error)
	require.NoError(t, env.audit.Log(context.Background(), AuditRecord{
		DataRoomID: room.ID,
		Action:     AuditActionRoomView,
		TargetType: AuditTargetRoom,
		TargetID:   room.ID,
	}))

	removed, err := env.audit.CleanupOlderThan(context.Background(), 365)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = env.audit.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}

func TestAuditWriteFailureModes(t *testing.T) {
	env := newTestEnv(t)
	_, room := env.createRoom("owner@example.com")

	lenient, err := NewAuditService(env.db, WithLenientWrites())
	require.NoError(t, err)

	// Force every insert to fail.
	require.NoError(t, env.db.Migrator().DropTable(&models.AuditEntry{}))

	record := AuditRecord{
		DataRoomID: room.ID,
		Action:     AuditActionRoomView,
		TargetType: AuditTargetRoom,
		TargetID:   room.ID,
	}

	require.Error(t, env.audit.Log(context.Background(), record))

	before := testutil.ToFloat64(metrics.AuditWriteFailures)
	require.NoError(t, lenient.Log(context.Background(), record))
	require.Equal(t, before+1, testutil.ToFloat64(metrics.AuditWriteFailures))
}
