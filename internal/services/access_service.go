package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
)

// ErrNoPermission is the hard denial: the caller has no role in the room.
var ErrNoPermission = errors.New("access: no permission")

// ErrNDARequired is the soft denial: the caller has a role but must accept
// the NDA before any document access.
var ErrNDARequired = errors.New("access: nda required")

// TransactionRegistry answers whether a user is party to an active
// transaction on a listing. Consulted only for transaction-gated
// visibility.
type TransactionRegistry interface {
	HasActiveTransaction(ctx context.Context, listingID, userID string) (bool, error)
}

// AccessService resolves roles and the NDA gate. Decisions are re-derived
// from durable records on every request; nothing is cached, so a revoked
// permission takes effect immediately.
type AccessService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// AccessOption customises AccessService behaviour.
type AccessOption func(*AccessService)

// WithAccessClock injects a custom clock primarily for testing.
func WithAccessClock(clock func() time.Time) AccessOption {
	return func(s *AccessService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewAccessService constructs an AccessService.
func NewAccessService(db *gorm.DB, audit *AuditService, opts ...AccessOption) (*AccessService, error) {
	if db == nil {
		return nil, errors.New("access service: db is required")
	}
	if audit == nil {
		return nil, errors.New("access service: audit service is required")
	}

	service := &AccessService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ResolveRole computes the caller's role for a data room. An explicit
// permission row wins; otherwise the listing owner resolves to OWNER as a
// computed role, never a stored one. Everyone else is RoleNone.
func (s *AccessService) ResolveRole(ctx context.Context, dataRoomID, userID string) (models.Role, error) {
	ctx = ensureContext(ctx)

	if userID == "" {
		return models.RoleNone, nil
	}

	var permission models.DataRoomPermission
	err := s.db.WithContext(ctx).
		Where("data_room_id = ? AND user_id = ?", dataRoomID, userID).
		First(&permission).Error
	if err == nil {
		return permission.Role, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.RoleNone, fmt.Errorf("access service: load permission: %w", err)
	}

	owner, err := s.isListingOwner(ctx, dataRoomID, userID)
	if err != nil {
		return models.RoleNone, err
	}
	if owner {
		return models.RoleOwner, nil
	}

	return models.RoleNone, nil
}

// NDASatisfied reports whether the identity has at least one acceptance on
// record for the room, matched by user id or email. Room managers bypass
// the gate and are never looked up here.
func (s *AccessService) NDASatisfied(ctx context.Context, dataRoomID string, identity Identity) (bool, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.NDAAcceptance{}).Where("data_room_id = ?", dataRoomID)

	email := normaliseEmail(identity.Email)
	switch {
	case identity.UserID != "" && email != "":
		query = query.Where("user_id = ? OR email = ?", identity.UserID, email)
	case identity.UserID != "":
		query = query.Where("user_id = ?", identity.UserID)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		return false, nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("access service: count nda acceptances: %w", err)
	}

	return count > 0, nil
}

// AcceptNDA records an acceptance for the identity. Acceptance is
// idempotent: re-accepting neither duplicates the row nor fails. The
// caller must hold a role in the room.
func (s *AccessService) AcceptNDA(ctx context.Context, dataRoomID string, identity Identity) error {
	ctx = ensureContext(ctx)

	role, err := s.ResolveRole(ctx, dataRoomID, identity.UserID)
	if err != nil {
		return err
	}
	if role == models.RoleNone {
		return ErrNoPermission
	}

	satisfied, err := s.NDASatisfied(ctx, dataRoomID, identity)
	if err != nil {
		return err
	}
	if satisfied {
		return nil
	}

	acceptance := models.NDAAcceptance{
		DataRoomID: dataRoomID,
		Email:      normaliseEmail(identity.Email),
		AcceptedAt: s.now(),
		IPAddress:  identity.IPAddress,
	}
	if identity.UserID != "" {
		id := identity.UserID
		acceptance.UserID = &id
	}

	if err := s.db.WithContext(ctx).Create(&acceptance).Error; err != nil {
		return fmt.Errorf("access service: record nda acceptance: %w", err)
	}

	return s.audit.Log(ctx, AuditRecord{
		DataRoomID: dataRoomID,
		Actor:      identity,
		Action:     AuditActionNDAAccept,
		TargetType: AuditTargetRoom,
		TargetID:   dataRoomID,
	})
}

// RequireDocumentAccess resolves everything a per-document decision needs:
// role, NDA state and (lazily) transaction and grant lookups. It returns
// ErrNoPermission or ErrNDARequired for the two caller-facing gate
// failures so handlers can route remediation correctly.
func (s *AccessService) RequireDocumentAccess(ctx context.Context, room *models.DataRoom, identity Identity) (models.Role, bool, error) {
	role, err := s.ResolveRole(ctx, room.ID, identity.UserID)
	if err != nil {
		return models.RoleNone, false, err
	}
	if role == models.RoleNone {
		return models.RoleNone, false, ErrNoPermission
	}
	if role.ManagesRoom() {
		return role, true, nil
	}

	ndaOK, err := s.NDASatisfied(ctx, room.ID, identity)
	if err != nil {
		return role, false, err
	}
	if !ndaOK {
		return role, false, ErrNDARequired
	}

	return role, true, nil
}

// HasGrant reports whether an explicit document grant exists for the
// identity, matched by user id or email. Evaluated with a fresh query so
// every endpoint shares one strategy.
func (s *AccessService) HasGrant(ctx context.Context, documentID string, identity Identity) (bool, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.DocumentGrant{}).Where("document_id = ?", documentID)

	email := normaliseEmail(identity.Email)
	switch {
	case identity.UserID != "" && email != "":
		query = query.Where("user_id = ? OR email = ?", identity.UserID, email)
	case identity.UserID != "":
		query = query.Where("user_id = ?", identity.UserID)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		return false, nil
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("access service: count grants: %w", err)
	}

	return count > 0, nil
}

func (s *AccessService) isListingOwner(ctx context.Context, dataRoomID, userID string) (bool, error) {
	var room models.DataRoom
	if err := s.db.WithContext(ctx).First(&room, "id = ?", dataRoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("access service: load room: %w", err)
	}

	var listing models.Listing
	if err := s.db.WithContext(ctx).First(&listing, "id = ?", room.ListingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("access service: load listing: %w", err)
	}

	return listing.OwnerID == userID, nil
}

// DBTransactionRegistry answers transaction membership from the local
// transactions table.
type DBTransactionRegistry struct {
	db *gorm.DB
}

// NewDBTransactionRegistry constructs the gorm-backed registry.
func NewDBTransactionRegistry(db *gorm.DB) (*DBTransactionRegistry, error) {
	if db == nil {
		return nil, errors.New("transaction registry: db is required")
	}
	return &DBTransactionRegistry{db: db}, nil
}

// HasActiveTransaction reports whether the user is buyer or seller on an
// active transaction for the listing.
func (r *DBTransactionRegistry) HasActiveTransaction(ctx context.Context, listingID, userID string) (bool, error) {
	if listingID == "" || userID == "" {
		return false, nil
	}

	var count int64
	err := r.db.WithContext(ensureContext(ctx)).
		Model(&models.Transaction{}).
		Where("listing_id = ? AND status = ?", listingID, models.TransactionStatusActive).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("transaction registry: count transactions: %w", err)
	}

	return count > 0, nil
}
