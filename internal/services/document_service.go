package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/internal/policy"
	"github.com/dealbridge/dataroom/pkg/metrics"
)

var (
	// ErrDocumentNotFound indicates the document does not exist in the room.
	ErrDocumentNotFound = errors.New("document: not found")
	// ErrVersionNotFound indicates the referenced version does not exist.
	ErrVersionNotFound = errors.New("document: version not found")
	// ErrFolderNotFound indicates the referenced folder is not in the room.
	ErrFolderNotFound = errors.New("document: folder not found")
	// ErrVisibilityInvalid rejects visibility values outside the closed set.
	ErrVisibilityInvalid = errors.New("document: invalid visibility")
	// ErrScanStatusInvalid rejects unknown scan verdicts.
	ErrScanStatusInvalid = errors.New("document: invalid scan status")
	// ErrVisibilityDenied is the per-document denial for callers whose room
	// role passed but whose visibility check did not.
	ErrVisibilityDenied = errors.New("document: visibility denied")
)

// DocumentOption customises DocumentService behaviour.
type DocumentOption func(*DocumentService)

// WithDocumentClock injects a custom clock primarily for testing.
func WithDocumentClock(clock func() time.Time) DocumentOption {
	return func(s *DocumentService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// DocumentService owns the document catalogue: listing with per-document
// filtering, uploads and versioning, metadata updates and the scan status
// feed from the external scanner.
type DocumentService struct {
	db           *gorm.DB
	rooms        *DataRoomService
	access       *AccessService
	audit        *AuditService
	transactions TransactionRegistry
	now          func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(db *gorm.DB, rooms *DataRoomService, access *AccessService, audit *AuditService, transactions TransactionRegistry, opts ...DocumentOption) (*DocumentService, error) {
	if db == nil {
		return nil, errors.New("document service: db is required")
	}
	if rooms == nil {
		return nil, errors.New("document service: dataroom service is required")
	}
	if access == nil {
		return nil, errors.New("document service: access service is required")
	}
	if audit == nil {
		return nil, errors.New("document service: audit service is required")
	}
	if transactions == nil {
		return nil, errors.New("document service: transaction registry is required")
	}

	service := &DocumentService{
		db:           db,
		rooms:        rooms,
		access:       access,
		audit:        audit,
		transactions: transactions,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// FolderSummary pairs a folder with the number of documents the caller can
// see inside it. Counts are computed after visibility filtering so a
// folder never leaks how many hidden documents it holds.
type FolderSummary struct {
	Folder        models.Folder `json:"folder"`
	DocumentCount int           `json:"document_count"`
}

// RoomListing is the filtered catalogue returned to a caller.
type RoomListing struct {
	Room      *models.DataRoom  `json:"room"`
	Role      models.Role       `json:"role"`
	Documents []models.Document `json:"documents"`
	Folders   []FolderSummary   `json:"folders"`
}

// List returns the room's documents filtered down to what the caller may
// see. The room view is audited once access is established, before
// filtering, so the trail records the visit even when every document is
// hidden. Managers see the full catalogue including grants and version
// history; everyone else gets a shaped view carrying only the current
// version.
func (s *DocumentService) List(ctx context.Context, caller Identity, dataRoomID string) (*RoomListing, error) {
	ctx = ensureContext(ctx)

	room, err := s.rooms.GetByID(ctx, dataRoomID)
	if err != nil {
		return nil, err
	}

	role, err := s.access.ResolveRole(ctx, room.ID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if role == models.RoleNone {
		return nil, ErrNoPermission
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: room.ID,
		Actor:      caller,
		Action:     AuditActionRoomView,
		TargetType: AuditTargetRoom,
		TargetID:   room.ID,
	}); err != nil {
		return nil, err
	}

	ndaOK := true
	if !role.ManagesRoom() {
		ndaOK, err = s.access.NDASatisfied(ctx, room.ID, caller)
		if err != nil {
			return nil, err
		}
		if !ndaOK {
			return nil, ErrNDARequired
		}
	}

	var documents []models.Document
	if err := s.db.WithContext(ctx).
		Preload("Versions").
		Preload("Grants").
		Where("data_room_id = ?", room.ID).
		Order("created_at ASC").
		Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("document service: list documents: %w", err)
	}

	env := evalEnv{room: room, role: role, ndaOK: ndaOK}
	visible := make([]models.Document, 0, len(documents))
	for i := range documents {
		allowed, err := s.evaluate(ctx, &env, &documents[i], caller, policy.ActionList)
		if err != nil {
			return nil, err
		}
		if !allowed {
			continue
		}
		visible = append(visible, shapeDocument(documents[i], role))
	}

	var folders []models.Folder
	if err := s.db.WithContext(ctx).
		Where("data_room_id = ?", room.ID).
		Order("name ASC").
		Find(&folders).Error; err != nil {
		return nil, fmt.Errorf("document service: list folders: %w", err)
	}

	counts := make(map[string]int, len(folders))
	for i := range visible {
		if visible[i].FolderID != nil {
			counts[*visible[i].FolderID]++
		}
	}
	summaries := make([]FolderSummary, 0, len(folders))
	for _, folder := range folders {
		summaries = append(summaries, FolderSummary{Folder: folder, DocumentCount: counts[folder.ID]})
	}

	return &RoomListing{Room: room, Role: role, Documents: visible, Folders: summaries}, nil
}

// UploadInput registers a document upload. The bytes are already in the
// object store under StorageKey; this records the metadata and opens a
// pending scan.
type UploadInput struct {
	DataRoomID string
	// DocumentID targets an existing document for a new version. Leave
	// empty to create a new document.
	DocumentID        string
	FolderID          *string
	RequirementID     *string
	Title             string
	Visibility        models.Visibility
	DownloadBlocked   bool
	WatermarkRequired bool
	StorageKey        string
	FileName          string
	MimeType          string
	Size              int64
}

// Upload creates a document (or a new version of an existing one) with a
// pending scan status. Editors and owners only. Version numbers are
// assigned under the document's unique (document_id, version) index, so a
// concurrent upload race surfaces as a retryable conflict instead of a
// duplicate.
func (s *DocumentService) Upload(ctx context.Context, caller Identity, input UploadInput) (*models.Document, *models.DocumentVersion, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, input.DataRoomID, caller.UserID)
	if err != nil {
		return nil, nil, err
	}
	if !role.ManagesRoom() {
		return nil, nil, ErrNoPermission
	}

	if strings.TrimSpace(input.StorageKey) == "" {
		return nil, nil, errors.New("document service: storage key is required")
	}
	if strings.TrimSpace(input.FileName) == "" {
		return nil, nil, errors.New("document service: file name is required")
	}

	var document models.Document
	var version models.DocumentVersion

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.DocumentID != "" {
			if err := tx.Where("id = ? AND data_room_id = ?", input.DocumentID, input.DataRoomID).
				First(&document).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDocumentNotFound
				}
				return fmt.Errorf("document service: load document: %w", err)
			}
		} else {
			visibility := input.Visibility
			if visibility == "" {
				visibility = models.VisibilityAll
			}
			if !visibility.Valid() {
				return ErrVisibilityInvalid
			}
			if input.FolderID != nil {
				if err := s.folderInRoom(tx, input.DataRoomID, *input.FolderID); err != nil {
					return err
				}
			}
			document = models.Document{
				DataRoomID:        input.DataRoomID,
				FolderID:          input.FolderID,
				RequirementID:     input.RequirementID,
				Title:             strings.TrimSpace(input.Title),
				Visibility:        visibility,
				DownloadBlocked:   input.DownloadBlocked,
				WatermarkRequired: input.WatermarkRequired,
			}
			if document.Title == "" {
				document.Title = input.FileName
			}
			if err := tx.Create(&document).Error; err != nil {
				return fmt.Errorf("document service: create document: %w", err)
			}
		}

		var maxVersion int
		row := tx.Model(&models.DocumentVersion{}).
			Where("document_id = ?", document.ID).
			Select("COALESCE(MAX(version), 0)").
			Row()
		if err := row.Scan(&maxVersion); err != nil {
			return fmt.Errorf("document service: max version: %w", err)
		}

		version = models.DocumentVersion{
			DocumentID:      document.ID,
			Version:         maxVersion + 1,
			StorageKey:      input.StorageKey,
			FileName:        input.FileName,
			MimeType:        input.MimeType,
			Size:            input.Size,
			VirusScanStatus: models.ScanStatusPending,
			UploadedBy:      caller.UserID,
			UploadedAt:      s.now(),
		}
		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("document service: create version: %w", err)
		}

		// The pointer always tracks the newest upload. Serving anything
		// still pending is the policy evaluator's problem, not storage's.
		if err := tx.Model(&models.Document{}).Where("id = ?", document.ID).
			Update("current_version_id", version.ID).Error; err != nil {
			return fmt.Errorf("document service: move current version: %w", err)
		}
		document.CurrentVersionID = &version.ID
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: input.DataRoomID,
		Actor:      caller,
		Action:     AuditActionUpload,
		TargetType: AuditTargetDocument,
		TargetID:   document.ID,
		Metadata: map[string]any{
			"version":   version.Version,
			"file_name": version.FileName,
			"size":      version.Size,
		},
	}); err != nil {
		return nil, nil, err
	}

	return &document, &version, nil
}

// UpdateInput patches document metadata. Nil pointers leave fields alone.
type UpdateInput struct {
	Title             *string
	FolderID          *string
	ClearFolder       bool
	Visibility        *models.Visibility
	DownloadBlocked   *bool
	WatermarkRequired *bool
	// Grants replaces the allow list when non-nil. Each entry names a user
	// id or an email. Meaningful only under custom visibility but stored
	// regardless, so flipping visibility back restores the list.
	Grants []GrantInput
}

// GrantInput names one allow-list entry.
type GrantInput struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Update patches a document's metadata and, optionally, its grant list.
// Editors and owners only.
func (s *DocumentService) Update(ctx context.Context, caller Identity, dataRoomID, documentID string, input UpdateInput) (*models.Document, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !role.ManagesRoom() {
		return nil, ErrNoPermission
	}

	var document models.Document
	if err := s.db.WithContext(ctx).
		Where("id = ? AND data_room_id = ?", documentID, dataRoomID).
		First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("document service: load document: %w", err)
	}

	updates := map[string]any{}
	changed := map[string]any{}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, errors.New("document service: title cannot be empty")
		}
		updates["title"] = title
		changed["title"] = title
	}
	if input.ClearFolder {
		updates["folder_id"] = nil
		changed["folder_id"] = nil
	} else if input.FolderID != nil {
		if err := s.folderInRoom(s.db.WithContext(ctx), dataRoomID, *input.FolderID); err != nil {
			return nil, err
		}
		updates["folder_id"] = *input.FolderID
		changed["folder_id"] = *input.FolderID
	}
	if input.Visibility != nil {
		if !input.Visibility.Valid() {
			return nil, ErrVisibilityInvalid
		}
		updates["visibility"] = *input.Visibility
		changed["visibility"] = string(*input.Visibility)
	}
	if input.DownloadBlocked != nil {
		updates["download_blocked"] = *input.DownloadBlocked
		changed["download_blocked"] = *input.DownloadBlocked
	}
	if input.WatermarkRequired != nil {
		updates["watermark_required"] = *input.WatermarkRequired
		changed["watermark_required"] = *input.WatermarkRequired
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(&document).Updates(updates).Error; err != nil {
				return fmt.Errorf("document service: update document: %w", err)
			}
		}
		if input.Grants != nil {
			if err := tx.Where("document_id = ?", document.ID).
				Delete(&models.DocumentGrant{}).Error; err != nil {
				return fmt.Errorf("document service: clear grants: %w", err)
			}
			for _, grant := range input.Grants {
				row := models.DocumentGrant{
					DocumentID: document.ID,
					Email:      normaliseEmail(grant.Email),
					GrantedBy:  caller.UserID,
				}
				if grant.UserID != "" {
					id := grant.UserID
					row.UserID = &id
				}
				if row.UserID == nil && row.Email == "" {
					return errors.New("document service: grant needs a user id or email")
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("document service: create grant: %w", err)
				}
			}
			changed["grants"] = len(input.Grants)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: dataRoomID,
		Actor:      caller,
		Action:     AuditActionDocumentUpdate,
		TargetType: AuditTargetDocument,
		TargetID:   document.ID,
		Metadata:   changed,
	}); err != nil {
		return nil, err
	}

	var fresh models.Document
	if err := s.db.WithContext(ctx).
		Preload("Versions").
		Preload("Grants").
		First(&fresh, "id = ?", document.ID).Error; err != nil {
		return nil, fmt.Errorf("document service: reload document: %w", err)
	}
	return &fresh, nil
}

// CreateFolder adds a folder to the room. Editors and owners only.
func (s *DocumentService) CreateFolder(ctx context.Context, caller Identity, dataRoomID, name string, parentID *string) (*models.Folder, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !role.ManagesRoom() {
		return nil, ErrNoPermission
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("document service: folder name is required")
	}
	if parentID != nil {
		if err := s.folderInRoom(s.db.WithContext(ctx), dataRoomID, *parentID); err != nil {
			return nil, err
		}
	}

	folder := models.Folder{DataRoomID: dataRoomID, Name: name, ParentID: parentID}
	if err := s.db.WithContext(ctx).Create(&folder).Error; err != nil {
		return nil, fmt.Errorf("document service: create folder: %w", err)
	}
	return &folder, nil
}

// SetScanStatus records the scanner verdict for a version. Promotion and
// demotion of the document's current pointer happen in the same
// transaction: a version becoming clean takes the pointer when it is the
// newest clean one, and a current version becoming blocked hands the
// pointer to the latest remaining clean version, or clears it.
func (s *DocumentService) SetScanStatus(ctx context.Context, caller Identity, versionID string, status models.ScanStatus) (*models.DocumentVersion, error) {
	ctx = ensureContext(ctx)

	if !status.Valid() {
		return nil, ErrScanStatusInvalid
	}

	var version models.DocumentVersion

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&version, "id = ?", versionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return fmt.Errorf("document service: load version: %w", err)
		}

		if err := tx.Model(&version).Update("virus_scan_status", status).Error; err != nil {
			return fmt.Errorf("document service: update scan status: %w", err)
		}
		version.VirusScanStatus = status

		var document models.Document
		if err := tx.First(&document, "id = ?", version.DocumentID).Error; err != nil {
			return fmt.Errorf("document service: load document: %w", err)
		}

		switch status {
		case models.ScanStatusClean:
			if shouldPromote(tx, &document, &version) {
				if err := tx.Model(&document).Update("current_version_id", version.ID).Error; err != nil {
					return fmt.Errorf("document service: promote version: %w", err)
				}
			}
		case models.ScanStatusBlocked:
			if document.CurrentVersionID != nil && *document.CurrentVersionID == version.ID {
				if err := demoteCurrent(tx, &document, version.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: s.roomIDForVersion(ctx, &version),
		Actor:      caller,
		Action:     AuditActionScanStatus,
		TargetType: AuditTargetVersion,
		TargetID:   version.ID,
		Metadata:   map[string]any{"status": string(status), "version": version.Version},
	}); err != nil {
		return nil, err
	}

	return &version, nil
}

// ResolveForAccess loads a document with the caller's decision context and
// evaluates the requested action. Used by the URL issuer so every serving
// path shares one decision routine.
func (s *DocumentService) ResolveForAccess(ctx context.Context, caller Identity, dataRoomID, documentID string, action policy.Action) (*models.Document, models.Role, error) {
	ctx = ensureContext(ctx)

	room, err := s.rooms.GetByID(ctx, dataRoomID)
	if err != nil {
		return nil, models.RoleNone, err
	}

	role, ndaOK, err := s.access.RequireDocumentAccess(ctx, room, caller)
	if err != nil {
		return nil, role, err
	}

	var document models.Document
	if err := s.db.WithContext(ctx).
		Preload("Versions").
		Where("id = ? AND data_room_id = ?", documentID, dataRoomID).
		First(&document).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, role, ErrDocumentNotFound
		}
		return nil, role, fmt.Errorf("document service: load document: %w", err)
	}

	env := evalEnv{room: room, role: role, ndaOK: ndaOK}
	allowed, err := s.evaluate(ctx, &env, &document, caller, action)
	if err != nil {
		return nil, role, err
	}
	if !allowed {
		return nil, role, ErrVisibilityDenied
	}

	return &document, role, nil
}

// evalEnv caches per-request decision facts that are identical across the
// documents of one listing pass.
type evalEnv struct {
	room  *models.DataRoom
	role  models.Role
	ndaOK bool

	txnResolved bool
	txnActive   bool
}

func (s *DocumentService) evaluate(ctx context.Context, env *evalEnv, document *models.Document, caller Identity, action policy.Action) (bool, error) {
	in := policy.Input{
		Action:               action,
		Role:                 env.role,
		NDASatisfied:         env.ndaOK,
		Visibility:           document.Visibility,
		DownloadBlocked:      document.DownloadBlocked,
		RoomDownloadsEnabled: roomDownloadsEnabled(env.room),
	}

	if !env.role.ManagesRoom() {
		switch document.Visibility {
		case models.VisibilityTransactionOnly:
			if !env.txnResolved {
				active, err := s.transactions.HasActiveTransaction(ctx, env.room.ListingID, caller.UserID)
				if err != nil {
					return false, err
				}
				env.txnResolved = true
				env.txnActive = active
			}
			in.HasTransaction = env.txnActive
		case models.VisibilityCustom:
			granted, err := s.access.HasGrant(ctx, document.ID, caller)
			if err != nil {
				return false, err
			}
			in.HasGrant = granted
		}
	}

	allowed := policy.Allowed(in)
	result := "allow"
	if !allowed {
		result = "deny"
	}
	metrics.PolicyDecisions.WithLabelValues(string(action), result).Inc()
	return allowed, nil
}

// RoomIDForDocument resolves which room a document belongs to. Used by
// handlers addressing documents by id alone.
func (s *DocumentService) RoomIDForDocument(ctx context.Context, documentID string) (string, error) {
	ctx = ensureContext(ctx)

	var document models.Document
	if err := s.db.WithContext(ctx).
		Select("id", "data_room_id").
		First(&document, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", fmt.Errorf("document service: load document: %w", err)
	}
	return document.DataRoomID, nil
}

func (s *DocumentService) folderInRoom(tx *gorm.DB, dataRoomID, folderID string) error {
	var count int64
	if err := tx.Model(&models.Folder{}).
		Where("id = ? AND data_room_id = ?", folderID, dataRoomID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("document service: check folder: %w", err)
	}
	if count == 0 {
		return ErrFolderNotFound
	}
	return nil
}

func (s *DocumentService) roomIDForVersion(ctx context.Context, version *models.DocumentVersion) string {
	var document models.Document
	if err := s.db.WithContext(ctx).
		Select("data_room_id").
		First(&document, "id = ?", version.DocumentID).Error; err != nil {
		return ""
	}
	return document.DataRoomID
}

func shouldPromote(tx *gorm.DB, document *models.Document, version *models.DocumentVersion) bool {
	if document.CurrentVersionID == nil {
		return true
	}
	var current models.DocumentVersion
	if err := tx.First(&current, "id = ?", *document.CurrentVersionID).Error; err != nil {
		return true
	}
	return version.Version > current.Version
}

func demoteCurrent(tx *gorm.DB, document *models.Document, blockedVersionID string) error {
	var replacement models.DocumentVersion
	err := tx.Where("document_id = ? AND virus_scan_status = ? AND id <> ?",
		document.ID, models.ScanStatusClean, blockedVersionID).
		Order("version DESC").
		First(&replacement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Model(document).Update("current_version_id", nil).Error
		}
		return fmt.Errorf("document service: find replacement version: %w", err)
	}
	return tx.Model(document).Update("current_version_id", replacement.ID).Error
}

func roomDownloadsEnabled(room *models.DataRoom) bool {
	if room.Settings == nil {
		return true
	}
	return room.Settings.DownloadsEnabled
}

// shapeDocument trims the payload for non-managing callers: no grants, no
// scan pipeline detail, and only the current version.
func shapeDocument(document models.Document, role models.Role) models.Document {
	if role.ManagesRoom() {
		return document
	}

	document.Grants = nil
	if document.CurrentVersionID == nil {
		document.Versions = nil
		return document
	}
	for _, version := range document.Versions {
		if version.ID == *document.CurrentVersionID {
			document.Versions = []models.DocumentVersion{version}
			return document
		}
	}
	document.Versions = nil
	return document
}
