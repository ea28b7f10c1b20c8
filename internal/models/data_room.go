package models

import "gorm.io/datatypes"

// DataRoom is the document container associated with exactly one listing.
// It is created lazily when the listing owner first opens the feature and
// is never hard-deleted.
type DataRoom struct {
	BaseModel

	ListingID string `gorm:"type:uuid;not null;uniqueIndex" json:"listing_id"`

	Settings *DataRoomSettings `gorm:"foreignKey:DataRoomID" json:"settings,omitempty"`
}

// DataRoomSettings holds the per-room security configuration consulted by
// the policy evaluator and the URL issuer. Defaults are permissive: no
// restrictions, downloads enabled, no watermark.
type DataRoomSettings struct {
	BaseModel

	DataRoomID string `gorm:"type:uuid;not null;uniqueIndex" json:"data_room_id"`

	IPRestrictionEnabled  bool           `gorm:"not null;default:false" json:"ip_restriction_enabled"`
	AllowedIPs            datatypes.JSON `json:"allowed_ips,omitempty"`
	GeoRestrictionEnabled bool           `gorm:"not null;default:false" json:"geo_restriction_enabled"`
	AllowedCountries      datatypes.JSON `json:"allowed_countries,omitempty"`
	DownloadsEnabled      bool           `gorm:"not null;default:true" json:"downloads_enabled"`
	PrintEnabled          bool           `gorm:"not null;default:true" json:"print_enabled"`
	WatermarkDownloads    bool           `gorm:"not null;default:false" json:"watermark_downloads"`
	SessionTimeoutMinutes int            `gorm:"not null;default:30" json:"session_timeout_minutes"`
	MaxConcurrentSessions int            `gorm:"not null;default:3" json:"max_concurrent_sessions"`
}

// Clamp bounds for numeric settings, enforced server-side on every patch.
const (
	SessionTimeoutMin        = 5
	SessionTimeoutMax        = 120
	MaxConcurrentSessionsMin = 1
	MaxConcurrentSessionsMax = 10
)
