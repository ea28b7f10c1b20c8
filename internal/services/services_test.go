package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/database/testutil"
	"github.com/dealbridge/dataroom/internal/models"
)

// testEnv wires the full service graph against an in-memory database with
// an adjustable clock shared by every service.
type testEnv struct {
	t   *testing.T
	db  *gorm.DB
	now time.Time

	audit     *AuditService
	access    *AccessService
	rooms     *DataRoomService
	documents *DocumentService
	invites   *InviteService
	settings  *SettingsService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		t:   t,
		db:  testutil.MustOpenTestDB(t),
		now: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }

	var err error
	env.audit, err = NewAuditService(env.db)
	require.NoError(t, err)

	env.access, err = NewAccessService(env.db, env.audit, WithAccessClock(clock))
	require.NoError(t, err)

	env.rooms, err = NewDataRoomService(env.db)
	require.NoError(t, err)

	registry, err := NewDBTransactionRegistry(env.db)
	require.NoError(t, err)

	env.documents, err = NewDocumentService(env.db, env.rooms, env.access, env.audit, registry, WithDocumentClock(clock))
	require.NoError(t, err)

	env.invites, err = NewInviteService(env.db, env.access, env.audit, nil, WithInviteClock(clock))
	require.NoError(t, err)

	env.settings, err = NewSettingsService(env.db, env.access, env.audit)
	require.NoError(t, err)

	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// clock returns a function bound to the env's adjustable time.
func (e *testEnv) clock() func() time.Time {
	return func() time.Time { return e.now }
}

func (e *testEnv) createUser(email string) models.User {
	e.t.Helper()
	user := models.User{Email: email, Name: "Test User"}
	require.NoError(e.t, e.db.Create(&user).Error)
	return user
}

func (e *testEnv) createListing(ownerID string) models.Listing {
	e.t.Helper()
	listing := models.Listing{OwnerID: ownerID, Title: "Craft Brewery"}
	require.NoError(e.t, e.db.Create(&listing).Error)
	return listing
}

// createRoom provisions a listing owned by a fresh user and its data room.
// Returns the owner and the room with settings loaded.
func (e *testEnv) createRoom(ownerEmail string) (models.User, *models.DataRoom) {
	e.t.Helper()
	owner := e.createUser(ownerEmail)
	listing := e.createListing(owner.ID)
	room, err := e.rooms.EnsureForListing(context.Background(), listing.ID, owner.ID)
	require.NoError(e.t, err)
	return owner, room
}

func (e *testEnv) grantRole(roomID string, user models.User, role models.Role) {
	e.t.Helper()
	permission := models.DataRoomPermission{DataRoomID: roomID, UserID: user.ID, Role: role}
	require.NoError(e.t, e.db.Create(&permission).Error)
}

func (e *testEnv) acceptNDA(roomID string, user models.User) {
	e.t.Helper()
	id := user.ID
	acceptance := models.NDAAcceptance{
		DataRoomID: roomID,
		UserID:     &id,
		Email:      user.Email,
		AcceptedAt: e.now,
	}
	require.NoError(e.t, e.db.Create(&acceptance).Error)
}

func (e *testEnv) createDocument(roomID string, visibility models.Visibility, mutate ...func(*models.Document)) models.Document {
	e.t.Helper()
	document := models.Document{
		DataRoomID: roomID,
		Title:      "Financials",
		Visibility: visibility,
	}
	for _, fn := range mutate {
		fn(&document)
	}
	require.NoError(e.t, e.db.Create(&document).Error)
	return document
}

// withCleanVersion attaches a clean version and promotes it to current.
func (e *testEnv) withCleanVersion(document *models.Document) models.DocumentVersion {
	e.t.Helper()
	version := models.DocumentVersion{
		DocumentID:      document.ID,
		Version:         1,
		StorageKey:      "rooms/" + document.DataRoomID + "/" + document.ID + "/v1",
		FileName:        "financials.pdf",
		MimeType:        "application/pdf",
		Size:            2048,
		VirusScanStatus: models.ScanStatusClean,
		UploadedAt:      e.now,
	}
	require.NoError(e.t, e.db.Create(&version).Error)
	require.NoError(e.t, e.db.Model(document).Update("current_version_id", version.ID).Error)
	document.CurrentVersionID = &version.ID
	return version
}

func (e *testEnv) identity(user models.User) Identity {
	return Identity{UserID: user.ID, Email: user.Email, IPAddress: "203.0.113.7"}
}

func (e *testEnv) auditCount(roomID, action string) int64 {
	e.t.Helper()
	var count int64
	require.NoError(e.t, e.db.Model(&models.AuditEntry{}).
		Where("data_room_id = ? AND action = ?", roomID, action).
		Count(&count).Error)
	return count
}
