package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/pkg/logger"
	"github.com/dealbridge/dataroom/pkg/metrics"
)

// Audit actions recorded by the engine.
const (
	AuditActionRoomView       = "dataroom.view"
	AuditActionNDAAccept      = "nda.accept"
	AuditActionInviteCreate   = "invite.create"
	AuditActionInviteAccept   = "invite.accept"
	AuditActionInviteRevoke   = "invite.revoke"
	AuditActionUpload         = "document.upload"
	AuditActionDocumentUpdate = "document.update"
	AuditActionScanStatus     = "document.scan_status"
	AuditActionViewURL        = "document.view_url"
	AuditActionDownloadURL    = "document.download_url"
	AuditActionSettingsUpdate = "settings.update"
)

// Audit target types.
const (
	AuditTargetRoom     = "data_room"
	AuditTargetDocument = "document"
	AuditTargetVersion  = "document_version"
	AuditTargetInvite   = "invite"
	AuditTargetSettings = "settings"
)

// AuditRecord captures a single audit event to persist.
type AuditRecord struct {
	DataRoomID string
	Actor      Identity
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// AuditFilters encapsulates optional filters when querying audit entries.
type AuditFilters struct {
	Action  string
	ActorID string
	Since   *time.Time
	Until   *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditOption customises AuditService behaviour.
type AuditOption func(*AuditService)

// WithLenientWrites makes audit failures non-fatal: the error is logged
// and surfaced through metrics instead of failing the primary operation.
// The default is strict (audit-then-respond).
func WithLenientWrites() AuditOption {
	return func(s *AuditService) {
		s.strict = false
	}
}

// AuditService persists and retrieves append-only audit entries.
type AuditService struct {
	db     *gorm.DB
	strict bool
	log    *zap.Logger
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}

	service := &AuditService{
		db:     db,
		strict: true,
		log:    logger.WithModule("audit"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Log stores an audit entry. In strict mode a failed write is returned to
// the caller so the triggering response never outruns its audit trail; in
// lenient mode the failure is logged and counted instead.
func (s *AuditService) Log(ctx context.Context, record AuditRecord) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(record.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(record.DataRoomID) == "" {
		return errors.New("audit service: data room id is required")
	}

	entry := models.AuditEntry{
		DataRoomID: record.DataRoomID,
		ActorEmail: normaliseEmail(record.Actor.Email),
		Action:     record.Action,
		TargetType: record.TargetType,
		TargetID:   record.TargetID,
		IPAddress:  strings.TrimSpace(record.Actor.IPAddress),
		UserAgent:  strings.TrimSpace(record.Actor.UserAgent),
	}

	if id := strings.TrimSpace(record.Actor.UserID); id != "" {
		entry.ActorID = &id
	}

	if record.Metadata != nil {
		encoded, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		entry.Metadata = encoded
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if s.strict {
			return fmt.Errorf("audit service: write entry: %w", err)
		}
		metrics.AuditWriteFailures.Inc()
		s.log.Error("audit write failed",
			zap.String("action", record.Action),
			zap.String("data_room_id", record.DataRoomID),
			zap.Error(err),
		)
	}

	return nil
}

// List returns paginated audit entries for one data room, newest first.
func (s *AuditService) List(ctx context.Context, dataRoomID string, opts AuditListOptions) ([]models.AuditEntry, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditEntry
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditEntry{}).Where("data_room_id = ?", dataRoomID)
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count entries: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list entries: %w", err)
	}

	return results, total, nil
}

// Export returns all audit entries matching the filters without pagination.
func (s *AuditService) Export(ctx context.Context, dataRoomID string, filters AuditFilters) ([]models.AuditEntry, error) {
	ctx = ensureContext(ctx)

	var entries []models.AuditEntry
	query := s.db.WithContext(ctx).Model(&models.AuditEntry{}).Where("data_room_id = ?", dataRoomID)
	query = applyAuditFilters(query, filters)

	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit service: export entries: %w", err)
	}

	return entries, nil
}

// CleanupOlderThan removes audit entries older than the retention window in days.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup entries: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
