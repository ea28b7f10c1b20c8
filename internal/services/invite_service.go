package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
	"github.com/dealbridge/dataroom/pkg/crypto"
	"github.com/dealbridge/dataroom/pkg/mail"
)

const (
	defaultInviteExpiry     = 7 * 24 * time.Hour
	defaultInviteTokenBytes = 32
)

var (
	// ErrInviteNotFound indicates no invite matches the provided token.
	ErrInviteNotFound = errors.New("invite: not found")
	// ErrInviteExpired indicates the invite token has expired.
	ErrInviteExpired = errors.New("invite: expired")
	// ErrInviteAlreadyUsed signals that the invite has already been accepted.
	ErrInviteAlreadyUsed = errors.New("invite: already accepted")
	// ErrInviteRevoked signals the inviter rejected the invite before acceptance.
	ErrInviteRevoked = errors.New("invite: revoked")
	// ErrInviteEmailMismatch signals the accepting account's email differs from the invited one.
	ErrInviteEmailMismatch = errors.New("invite: email does not match")
	// ErrInviteAlreadyPending indicates a live invite already exists for the email.
	ErrInviteAlreadyPending = errors.New("invite: already pending for email")
	// ErrInviteEmailHasAccess indicates a permission already exists for a user with the email.
	ErrInviteEmailHasAccess = errors.New("invite: email already has access")
	// ErrInviteRoleInvalid rejects roles outside editor/viewer. OWNER is
	// never grantable by invite.
	ErrInviteRoleInvalid = errors.New("invite: role must be editor or viewer")
)

// InviteOption customises InviteService behaviour.
type InviteOption func(*InviteService)

// WithInviteBaseURL configures the base URL used to create invite hyperlinks.
func WithInviteBaseURL(url string) InviteOption {
	return func(s *InviteService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInviteExpiry overrides the invite token lifetime.
func WithInviteExpiry(d time.Duration) InviteOption {
	return func(s *InviteService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInviteClock injects a custom clock primarily for testing.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *InviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InviteService manages the invite state machine: pending invites convert
// into permission rows on acceptance, expire on overdue access, or are
// revoked by the inviter.
type InviteService struct {
	db      *gorm.DB
	access  *AccessService
	audit   *AuditService
	mailer  mail.Mailer
	baseURL string
	expiry  time.Duration
	now     func() time.Time
}

// NewInviteService constructs an InviteService with the provided dependencies.
func NewInviteService(db *gorm.DB, access *AccessService, audit *AuditService, mailer mail.Mailer, opts ...InviteOption) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if access == nil {
		return nil, errors.New("invite service: access service is required")
	}
	if audit == nil {
		return nil, errors.New("invite service: audit service is required")
	}

	service := &InviteService{
		db:     db,
		access: access,
		audit:  audit,
		mailer: mailer,
		expiry: defaultInviteExpiry,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// CreateInviteInput describes a new invite.
type CreateInviteInput struct {
	DataRoomID string
	Email      string
	Role       models.Role
}

// Create issues a single-use invite token. Only the room OWNER may invite,
// and only to the editor or viewer role. The raw token is returned once;
// only its hash is stored.
func (s *InviteService) Create(ctx context.Context, caller Identity, input CreateInviteInput) (*models.DataRoomInvite, string, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, input.DataRoomID, caller.UserID)
	if err != nil {
		return nil, "", err
	}
	if role != models.RoleOwner {
		return nil, "", ErrNoPermission
	}

	if input.Role != models.RoleEditor && input.Role != models.RoleViewer {
		return nil, "", ErrInviteRoleInvalid
	}

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, "", errors.New("invite service: email is required")
	}

	var live int64
	err = s.db.WithContext(ctx).Model(&models.DataRoomInvite{}).
		Where("data_room_id = ? AND email = ? AND status IN ?", input.DataRoomID, email,
			[]string{models.InviteStatusPending, models.InviteStatusAccepted}).
		Count(&live).Error
	if err != nil {
		return nil, "", fmt.Errorf("invite service: count invites: %w", err)
	}
	if live > 0 {
		return nil, "", ErrInviteAlreadyPending
	}

	hasAccess, err := s.emailHasPermission(ctx, input.DataRoomID, email)
	if err != nil {
		return nil, "", err
	}
	if hasAccess {
		return nil, "", ErrInviteEmailHasAccess
	}

	rawToken, err := crypto.GenerateToken(defaultInviteTokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("invite service: generate token: %w", err)
	}

	now := s.now()
	invite := models.DataRoomInvite{
		DataRoomID: input.DataRoomID,
		Email:      email,
		Role:       input.Role,
		TokenHash:  tokenHash(rawToken),
		Status:     models.InviteStatusPending,
		InvitedBy:  caller.UserID,
		ExpiresAt:  now.Add(s.expiry),
	}

	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, "", fmt.Errorf("invite service: create invite: %w", err)
	}

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: input.DataRoomID,
		Actor:      caller,
		Action:     AuditActionInviteCreate,
		TargetType: AuditTargetInvite,
		TargetID:   invite.ID,
		Metadata:   map[string]any{"email": email, "role": string(input.Role)},
	}); err != nil {
		return nil, "", err
	}

	if s.mailer != nil {
		message := mail.Message{
			To:      []string{email},
			Subject: "You have been invited to a data room",
			Body:    s.inviteBody(rawToken),
		}
		if mailErr := s.mailer.Send(ctx, message); mailErr != nil && !errors.Is(mailErr, mail.ErrSMTPDisabled) {
			return nil, "", fmt.Errorf("invite service: send email: %w", mailErr)
		}
	}

	return &invite, rawToken, nil
}

// AcceptResult reports the outcome of a successful acceptance.
type AcceptResult struct {
	Invite     *models.DataRoomInvite
	Permission *models.DataRoomPermission
	// AlreadyHadAccess is the idempotent path: a permission existed before
	// this acceptance (or a concurrent acceptance won the race).
	AlreadyHadAccess bool
}

// Accept redeems a token for the authenticated caller. The token must
// resolve to a pending invite that has not passed its expiry, and the
// caller's verified email must match the invited address. At most one
// permission row ever results, no matter how many concurrent attempts
// race on the same token.
func (s *InviteService) Accept(ctx context.Context, caller Identity, token string) (*AcceptResult, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInviteNotFound
	}

	var invite models.DataRoomInvite
	if err := s.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash(token)).
		First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite service: find invite: %w", err)
	}

	switch invite.Status {
	case models.InviteStatusAccepted:
		return nil, ErrInviteAlreadyUsed
	case models.InviteStatusRejected:
		return nil, ErrInviteRevoked
	case models.InviteStatusExpired:
		return nil, ErrInviteExpired
	}

	now := s.now()
	if now.After(invite.ExpiresAt) {
		// Flip to the terminal state as a side effect of the failed attempt.
		if err := s.db.WithContext(ctx).Model(&invite).
			Update("status", models.InviteStatusExpired).Error; err != nil {
			return nil, fmt.Errorf("invite service: expire invite: %w", err)
		}
		return nil, ErrInviteExpired
	}

	if normaliseEmail(caller.Email) != invite.Email {
		return nil, ErrInviteEmailMismatch
	}

	result := &AcceptResult{Invite: &invite}

	permission := models.DataRoomPermission{
		DataRoomID: invite.DataRoomID,
		UserID:     caller.UserID,
		Role:       invite.Role,
		InvitedBy:  invite.InvitedBy,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&permission).Error; err != nil {
			if isUniqueConstraintError(err) {
				result.AlreadyHadAccess = true
				return nil
			}
			return fmt.Errorf("invite service: create permission: %w", err)
		}
		result.Permission = &permission
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&invite).
		Updates(map[string]any{
			"status":      models.InviteStatusAccepted,
			"accepted_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("invite service: mark accepted: %w", err)
	}
	invite.Status = models.InviteStatusAccepted
	invite.AcceptedAt = &now

	if err := s.audit.Log(ctx, AuditRecord{
		DataRoomID: invite.DataRoomID,
		Actor:      caller,
		Action:     AuditActionInviteAccept,
		TargetType: AuditTargetInvite,
		TargetID:   invite.ID,
		Metadata: map[string]any{
			"role":               string(invite.Role),
			"already_had_access": result.AlreadyHadAccess,
		},
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// List returns all invites for a room. Requires a managing role.
func (s *InviteService) List(ctx context.Context, caller Identity, dataRoomID string) ([]models.DataRoomInvite, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !role.ManagesRoom() {
		return nil, ErrNoPermission
	}

	var invites []models.DataRoomInvite
	if err := s.db.WithContext(ctx).
		Where("data_room_id = ?", dataRoomID).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("invite service: list invites: %w", err)
	}

	return invites, nil
}

// Revoke flips a pending invite to rejected. Owner only.
func (s *InviteService) Revoke(ctx context.Context, caller Identity, dataRoomID, inviteID string) error {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return err
	}
	if role != models.RoleOwner {
		return ErrNoPermission
	}

	var invite models.DataRoomInvite
	if err := s.db.WithContext(ctx).
		Where("id = ? AND data_room_id = ?", inviteID, dataRoomID).
		First(&invite).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInviteNotFound
		}
		return fmt.Errorf("invite service: find invite: %w", err)
	}

	if invite.Status == models.InviteStatusAccepted {
		return ErrInviteAlreadyUsed
	}
	if invite.Terminal() {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&invite).
		Update("status", models.InviteStatusRejected).Error; err != nil {
		return fmt.Errorf("invite service: revoke invite: %w", err)
	}

	return s.audit.Log(ctx, AuditRecord{
		DataRoomID: dataRoomID,
		Actor:      caller,
		Action:     AuditActionInviteRevoke,
		TargetType: AuditTargetInvite,
		TargetID:   invite.ID,
		Metadata:   map[string]any{"email": invite.Email},
	})
}

// ExpireStale flips overdue pending invites to expired. Run periodically
// by maintenance; the same transition happens inline on a late Accept.
func (s *InviteService) ExpireStale(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Model(&models.DataRoomInvite{}).
		Where("status = ? AND expires_at < ?", models.InviteStatusPending, s.now()).
		Update("status", models.InviteStatusExpired)
	if result.Error != nil {
		return 0, fmt.Errorf("invite service: expire stale invites: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (s *InviteService) emailHasPermission(ctx context.Context, dataRoomID, email string) (bool, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("invite service: find user: %w", err)
	}

	var count int64
	err = s.db.WithContext(ctx).Model(&models.DataRoomPermission{}).
		Where("data_room_id = ? AND user_id = ?", dataRoomID, user.ID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("invite service: count permissions: %w", err)
	}

	return count > 0, nil
}

func (s *InviteService) inviteBody(token string) string {
	link := token
	if s.baseURL != "" {
		link = fmt.Sprintf("%s/invite/accept?token=%s", s.baseURL, token)
	}
	return fmt.Sprintf("Hello,\n\nYou have been invited to a due-diligence data room. Use the following link to accept your invite:\n%s\n\nThe invite expires in 7 days. If you did not expect this email, you can ignore it.\n", link)
}

func tokenHash(token string) string {
	checksum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(checksum[:])
}
