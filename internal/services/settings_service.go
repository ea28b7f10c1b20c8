package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dealbridge/dataroom/internal/models"
)

var (
	// ErrSettingsNotFound indicates the room has no settings row, which
	// only happens if provisioning was interrupted.
	ErrSettingsNotFound = errors.New("settings: not found")
	// ErrInvalidIPEntry rejects allow-list entries that parse as neither an
	// address nor a CIDR block.
	ErrInvalidIPEntry = errors.New("settings: invalid ip or cidr entry")
	// ErrInvalidCountryCode rejects country entries that are not two-letter
	// ISO 3166-1 alpha-2 codes.
	ErrInvalidCountryCode = errors.New("settings: invalid country code")
)

// SettingsService reads and patches per-room security settings. Patches
// are all-or-nothing: one invalid entry rejects the whole request and
// nothing is persisted.
type SettingsService struct {
	db     *gorm.DB
	access *AccessService
	audit  *AuditService
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(db *gorm.DB, access *AccessService, audit *AuditService) (*SettingsService, error) {
	if db == nil {
		return nil, errors.New("settings service: db is required")
	}
	if access == nil {
		return nil, errors.New("settings service: access service is required")
	}
	if audit == nil {
		return nil, errors.New("settings service: audit service is required")
	}
	return &SettingsService{db: db, access: access, audit: audit}, nil
}

// Get returns the room settings. Owners and editors only; viewers never
// see the security configuration.
func (s *SettingsService) Get(ctx context.Context, caller Identity, dataRoomID string) (*models.DataRoomSettings, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !role.ManagesRoom() {
		return nil, ErrNoPermission
	}

	return s.load(ctx, dataRoomID)
}

// SettingsPatch updates a subset of settings. Nil pointers leave fields
// alone; empty slices clear the corresponding allow list.
type SettingsPatch struct {
	IPRestrictionEnabled  *bool     `json:"ip_restriction_enabled,omitempty"`
	AllowedIPs            *[]string `json:"allowed_ips,omitempty"`
	GeoRestrictionEnabled *bool     `json:"geo_restriction_enabled,omitempty"`
	AllowedCountries      *[]string `json:"allowed_countries,omitempty"`
	DownloadsEnabled      *bool     `json:"downloads_enabled,omitempty"`
	PrintEnabled          *bool     `json:"print_enabled,omitempty"`
	WatermarkDownloads    *bool     `json:"watermark_downloads,omitempty"`
	SessionTimeoutMinutes *int      `json:"session_timeout_minutes,omitempty"`
	MaxConcurrentSessions *int      `json:"max_concurrent_sessions,omitempty"`
}

// Update patches room settings. Owner only. Numeric fields are clamped
// into their allowed ranges rather than rejected; list entries are
// validated strictly. The audit entry records the before and after values
// of every field that changed.
func (s *SettingsService) Update(ctx context.Context, caller Identity, dataRoomID string, patch SettingsPatch) (*models.DataRoomSettings, error) {
	ctx = ensureContext(ctx)

	role, err := s.access.ResolveRole(ctx, dataRoomID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleOwner {
		return nil, ErrNoPermission
	}

	settings, err := s.load(ctx, dataRoomID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	diff := map[string]any{}

	setBool := func(column string, current bool, next *bool) {
		if next != nil && *next != current {
			updates[column] = *next
			diff[column] = map[string]any{"from": current, "to": *next}
		}
	}

	setBool("ip_restriction_enabled", settings.IPRestrictionEnabled, patch.IPRestrictionEnabled)
	setBool("geo_restriction_enabled", settings.GeoRestrictionEnabled, patch.GeoRestrictionEnabled)
	setBool("downloads_enabled", settings.DownloadsEnabled, patch.DownloadsEnabled)
	setBool("print_enabled", settings.PrintEnabled, patch.PrintEnabled)
	setBool("watermark_downloads", settings.WatermarkDownloads, patch.WatermarkDownloads)

	if patch.AllowedIPs != nil {
		entries, err := normaliseIPList(*patch.AllowedIPs)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("settings service: encode ip list: %w", err)
		}
		updates["allowed_ips"] = datatypes.JSON(encoded)
		diff["allowed_ips"] = map[string]any{"from": jsonList(settings.AllowedIPs), "to": entries}
	}

	if patch.AllowedCountries != nil {
		entries, err := normaliseCountryList(*patch.AllowedCountries)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("settings service: encode country list: %w", err)
		}
		updates["allowed_countries"] = datatypes.JSON(encoded)
		diff["allowed_countries"] = map[string]any{"from": jsonList(settings.AllowedCountries), "to": entries}
	}

	if patch.SessionTimeoutMinutes != nil {
		next := clampInt(*patch.SessionTimeoutMinutes, models.SessionTimeoutMin, models.SessionTimeoutMax)
		if next != settings.SessionTimeoutMinutes {
			updates["session_timeout_minutes"] = next
			diff["session_timeout_minutes"] = map[string]any{"from": settings.SessionTimeoutMinutes, "to": next}
		}
	}

	if patch.MaxConcurrentSessions != nil {
		next := clampInt(*patch.MaxConcurrentSessions, models.MaxConcurrentSessionsMin, models.MaxConcurrentSessionsMax)
		if next != settings.MaxConcurrentSessions {
			updates["max_concurrent_sessions"] = next
			diff["max_concurrent_sessions"] = map[string]any{"from": settings.MaxConcurrentSessions, "to": next}
		}
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("settings service: update settings: %w", err)
		}
		if err := s.audit.Log(ctx, AuditRecord{
			DataRoomID: dataRoomID,
			Actor:      caller,
			Action:     AuditActionSettingsUpdate,
			TargetType: AuditTargetSettings,
			TargetID:   settings.ID,
			Metadata:   diff,
		}); err != nil {
			return nil, err
		}
	}

	return s.load(ctx, dataRoomID)
}

func (s *SettingsService) load(ctx context.Context, dataRoomID string) (*models.DataRoomSettings, error) {
	var settings models.DataRoomSettings
	if err := s.db.WithContext(ctx).
		First(&settings, "data_room_id = ?", dataRoomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("settings service: load settings: %w", err)
	}
	return &settings, nil
}

func normaliseIPList(entries []string) ([]string, error) {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(entry); err != nil {
			if net.ParseIP(entry) == nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidIPEntry, raw)
			}
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}

func normaliseCountryList(entries []string) ([]string, error) {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		entry := strings.ToUpper(strings.TrimSpace(raw))
		if entry == "" {
			continue
		}
		if _, assigned := isoCountryCodes[entry]; !assigned {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCountryCode, raw)
		}
		if _, dup := seen[entry]; dup {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}

func jsonList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func clampInt(value, lower, upper int) int {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
