package services

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dealbridge/dataroom/internal/blobstore"
	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/policy"
	"github.com/dealbridge/dataroom/internal/watermark"
)

func newIssuer(t *testing.T, env *testEnv, watermarkEndpoint string) *URLService {
	t.Helper()

	store, err := blobstore.NewLocalStore("http://localhost:8080", t.TempDir(), []byte("test-secret"),
		blobstore.WithLocalClock(env.clock()))
	require.NoError(t, err)

	signer, err := watermark.New(watermark.Config{Endpoint: watermarkEndpoint, Secret: "wm-secret"})
	require.NoError(t, err)

	issuer, err := NewURLService(env.documents, env.audit, store, signer, "dataroom-bucket",
		WithURLClock(env.clock()))
	require.NoError(t, err)
	return issuer
}

func TestIssueViewURLHappyPath(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll)
	env.withCleanVersion(&document)

	issued, err := issuer.IssueViewURL(context.Background(), env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
	require.False(t, issued.Watermarked)
	require.Equal(t, 1, issued.Version)
	require.Equal(t, int(blobstore.DefaultURLTTL.Seconds()), issued.ExpiresIn)
	require.True(t, strings.HasPrefix(issued.URL, "http://localhost:8080/blob/"))

	parsed, err := url.Parse(issued.URL)
	require.NoError(t, err)
	require.Equal(t, blobstore.DispositionInline, parsed.Query().Get("disp"))
	require.NotEmpty(t, parsed.Query().Get("sig"))

	require.EqualValues(t, 1, env.auditCount(room.ID, AuditActionViewURL))
}

func TestIssueDownloadURLDisposition(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll)
	env.withCleanVersion(&document)

	issued, err := issuer.IssueDownloadURL(context.Background(), env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)

	parsed, err := url.Parse(issued.URL)
	require.NoError(t, err)
	require.Equal(t, blobstore.DispositionAttachment, parsed.Query().Get("disp"))
	require.Equal(t, "financials.pdf", parsed.Query().Get("name"))

	require.EqualValues(t, 1, env.auditCount(room.ID, AuditActionDownloadURL))
}

func TestPendingScanIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	document, _, err := env.documents.Upload(ctx, env.identity(owner), UploadInput{
		DataRoomID: room.ID,
		Title:      "Deck",
		StorageKey: "k1",
		FileName:   "deck.pdf",
	})
	require.NoError(t, err)

	_, err = issuer.IssueViewURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.ErrorIs(t, err, policy.ErrScanPending)
}

func TestBlockedScanDeniesEveryRole(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")

	ctx := context.Background()
	document, version, err := env.documents.Upload(ctx, env.identity(owner), UploadInput{
		DataRoomID: room.ID,
		Title:      "Deck",
		StorageKey: "k1",
		FileName:   "deck.pdf",
	})
	require.NoError(t, err)
	_, err = env.documents.SetScanStatus(ctx, Identity{UserID: "scanner"}, version.ID, models.ScanStatusBlocked)
	require.NoError(t, err)

	_, err = issuer.IssueViewURL(ctx, env.identity(owner), room.ID, document.ID, version.ID)
	require.ErrorIs(t, err, policy.ErrScanBlocked)
	_, err = issuer.IssueDownloadURL(ctx, env.identity(owner), room.ID, document.ID, version.ID)
	require.ErrorIs(t, err, policy.ErrScanBlocked)
}

func TestDownloadBlockedBindsOwnerToo(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll, func(d *models.Document) {
		d.DownloadBlocked = true
	})
	env.withCleanVersion(&document)

	ctx := context.Background()

	_, err := issuer.IssueDownloadURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.ErrorIs(t, err, ErrVisibilityDenied)

	// Viewing stays allowed; only downloads are blocked.
	_, err = issuer.IssueViewURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
}

func TestRoomDownloadsDisabledExemptsManagers(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")
	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)
	env.acceptNDA(room.ID, viewer)

	document := env.createDocument(room.ID, models.VisibilityAll)
	env.withCleanVersion(&document)

	require.NoError(t, env.db.Model(&models.DataRoomSettings{}).
		Where("data_room_id = ?", room.ID).
		Update("downloads_enabled", false).Error)

	ctx := context.Background()

	_, err := issuer.IssueDownloadURL(ctx, env.identity(viewer), room.ID, document.ID, "")
	require.ErrorIs(t, err, ErrVisibilityDenied)

	_, err = issuer.IssueDownloadURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
}

func TestNDARequiredBeforeIssuing(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	_, room := env.createRoom("owner@example.com")
	viewer := env.createUser("viewer@example.com")
	env.grantRole(room.ID, viewer, models.RoleViewer)

	document := env.createDocument(room.ID, models.VisibilityAll)
	env.withCleanVersion(&document)

	_, err := issuer.IssueViewURL(context.Background(), env.identity(viewer), room.ID, document.ID, "")
	require.ErrorIs(t, err, ErrNDARequired)
}

func TestWatermarkedDownloadURL(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "https://wm.internal/render")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll, func(d *models.Document) {
		d.WatermarkRequired = true
	})
	version := env.withCleanVersion(&document)

	issued, err := issuer.IssueDownloadURL(context.Background(), env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
	require.True(t, issued.Watermarked)

	parsed, err := url.Parse(issued.URL)
	require.NoError(t, err)
	require.Equal(t, "wm.internal", parsed.Host)
	require.Equal(t, "dataroom-bucket", parsed.Query().Get("bucket"))
	require.Equal(t, version.StorageKey, parsed.Query().Get("key"))
	require.Equal(t, "owner@example.com", parsed.Query().Get("subject"))
	require.NotEmpty(t, parsed.Query().Get("signature"))
}

func TestWatermarkFallsBackWhenDisabled(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll, func(d *models.Document) {
		d.WatermarkRequired = true
	})
	env.withCleanVersion(&document)

	issued, err := issuer.IssueDownloadURL(context.Background(), env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
	require.False(t, issued.Watermarked)
	require.True(t, strings.HasPrefix(issued.URL, "http://localhost:8080/blob/"))
}

func TestRoomWatermarkTogglesDownloadsOnly(t *testing.T) {
	env := newTestEnv(t)
	issuer := newIssuer(t, env, "https://wm.internal/render")
	owner, room := env.createRoom("owner@example.com")
	document := env.createDocument(room.ID, models.VisibilityAll)
	env.withCleanVersion(&document)

	require.NoError(t, env.db.Model(&models.DataRoomSettings{}).
		Where("data_room_id = ?", room.ID).
		Update("watermark_downloads", true).Error)

	ctx := context.Background()

	download, err := issuer.IssueDownloadURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
	require.True(t, download.Watermarked)

	view, err := issuer.IssueViewURL(ctx, env.identity(owner), room.ID, document.ID, "")
	require.NoError(t, err)
	require.False(t, view.Watermarked)
}
