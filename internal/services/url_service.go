package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dealbridge/dataroom/internal/blobstore"
	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/policy"
	"github.com/dealbridge/dataroom/internal/watermark"
	"github.com/dealbridge/dataroom/pkg/metrics"
)

// Serving modes for issued URLs.
const (
	URLModeView     = "view"
	URLModeDownload = "download"
)

// ErrNoServableVersion indicates the document has no version eligible for
// serving.
var ErrNoServableVersion = errors.New("url: no servable version")

// Issued is a minted, short-lived retrieval URL.
type Issued struct {
	URL         string `json:"url"`
	ExpiresIn   int    `json:"expires_in"`
	Watermarked bool   `json:"watermarked"`
	FileName    string `json:"file_name"`
	Version     int    `json:"version"`
}

// URLOption customises URLService behaviour.
type URLOption func(*URLService)

// WithURLTTL overrides the configured lifetime for issued URLs, clamped to
// the allowed window.
func WithURLTTL(ttl time.Duration) URLOption {
	return func(s *URLService) {
		s.ttl = blobstore.ClampTTL(ttl)
	}
}

// WithURLClock injects a custom clock primarily for testing.
func WithURLClock(clock func() time.Time) URLOption {
	return func(s *URLService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// URLService is the only serving path for document bytes. It runs the full
// decision chain for each request: role, NDA, visibility, scan status, and
// only then mints a short-lived URL, watermarked when policy asks for it.
// Every issuance is audited before the URL is returned.
type URLService struct {
	documents *DocumentService
	audit     *AuditService
	store     blobstore.Store
	signer    *watermark.Signer
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

// NewURLService constructs a URLService. The bucket names the storage
// container forwarded to the watermark renderer so it can fetch the
// original bytes itself.
func NewURLService(documents *DocumentService, audit *AuditService, store blobstore.Store, signer *watermark.Signer, bucket string, opts ...URLOption) (*URLService, error) {
	if documents == nil {
		return nil, errors.New("url service: document service is required")
	}
	if audit == nil {
		return nil, errors.New("url service: audit service is required")
	}
	if store == nil {
		return nil, errors.New("url service: blob store is required")
	}
	if signer == nil {
		return nil, errors.New("url service: watermark signer is required")
	}

	service := &URLService{
		documents: documents,
		audit:     audit,
		store:     store,
		signer:    signer,
		bucket:    bucket,
		ttl:       blobstore.DefaultURLTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// IssueViewURL mints an inline URL for the document's current version, or
// a specific version when versionID is set.
func (s *URLService) IssueViewURL(ctx context.Context, caller Identity, dataRoomID, documentID, versionID string) (*Issued, error) {
	return s.issue(ctx, caller, dataRoomID, documentID, versionID, URLModeView)
}

// IssueDownloadURL mints an attachment URL for the document's current
// version, or a specific version when versionID is set.
func (s *URLService) IssueDownloadURL(ctx context.Context, caller Identity, dataRoomID, documentID, versionID string) (*Issued, error) {
	return s.issue(ctx, caller, dataRoomID, documentID, versionID, URLModeDownload)
}

func (s *URLService) issue(ctx context.Context, caller Identity, dataRoomID, documentID, versionID, mode string) (*Issued, error) {
	ctx = ensureContext(ctx)

	action := policy.ActionView
	auditAction := AuditActionViewURL
	disposition := blobstore.DispositionInline
	if mode == URLModeDownload {
		action = policy.ActionDownload
		auditAction = AuditActionDownloadURL
		disposition = blobstore.DispositionAttachment
	}

	document, role, err := s.documents.ResolveForAccess(ctx, caller, dataRoomID, documentID, action)
	if err != nil {
		return nil, err
	}

	version, err := selectVersion(document, versionID)
	if err != nil {
		return nil, err
	}
	if err := policy.VersionAvailable(version.VirusScanStatus); err != nil {
		return nil, err
	}

	room, err := s.documents.rooms.GetByID(ctx, dataRoomID)
	if err != nil {
		return nil, err
	}

	watermarked := s.shouldWatermark(document, room, action)

	var rawURL string
	if watermarked {
		rawURL, err = s.signer.SignURL(s.bucket, version.StorageKey, watermarkSubject(caller), s.now())
	} else {
		rawURL, err = s.store.Presign(ctx, version.StorageKey, blobstore.PresignOptions{
			Disposition: disposition,
			ContentType: version.MimeType,
			Filename:    version.FileName,
			TTL:         s.ttl,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("url service: mint url: %w", err)
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: dataRoomID,
		Actor:      caller,
		Action:     auditAction,
		TargetType: AuditTargetDocument,
		TargetID:   document.ID,
		Metadata: map[string]any{
			"version":     version.Version,
			"role":        string(role),
			"watermarked": watermarked,
		},
	}); err != nil {
		return nil, err
	}

	metrics.URLsIssued.WithLabelValues(mode, fmt.Sprintf("%t", watermarked)).Inc()

	return &Issued{
		URL:         rawURL,
		ExpiresIn:   int(s.ttl / time.Second),
		Watermarked: watermarked,
		FileName:    version.FileName,
		Version:     version.Version,
	}, nil
}

// shouldWatermark applies the document-level flag to every serving mode
// and the room-level toggle to downloads only. Both are best effort when
// the renderer endpoint is not configured.
func (s *URLService) shouldWatermark(document *models.Document, room *models.DataRoom, action policy.Action) bool {
	if !s.signer.Enabled() {
		return false
	}
	if document.WatermarkRequired {
		return true
	}
	if action == policy.ActionDownload && room.Settings != nil && room.Settings.WatermarkDownloads {
		return true
	}
	return false
}

func selectVersion(document *models.Document, versionID string) (*models.DocumentVersion, error) {
	if versionID == "" {
		if document.CurrentVersionID == nil {
			// No clean version has ever been promoted. Fall back to the
			// newest upload so pending surfaces as a retryable state
			// instead of a silent miss.
			return latestVersion(document)
		}
		versionID = *document.CurrentVersionID
	}
	for i := range document.Versions {
		if document.Versions[i].ID == versionID {
			return &document.Versions[i], nil
		}
	}
	return nil, ErrVersionNotFound
}

func latestVersion(document *models.Document) (*models.DocumentVersion, error) {
	if len(document.Versions) == 0 {
		return nil, ErrNoServableVersion
	}
	latest := &document.Versions[0]
	for i := range document.Versions {
		if document.Versions[i].Version > latest.Version {
			latest = &document.Versions[i]
		}
	}
	return latest, nil
}

func watermarkSubject(caller Identity) string {
	if caller.Email != "" {
		return normaliseEmail(caller.Email)
	}
	return caller.UserID
}
