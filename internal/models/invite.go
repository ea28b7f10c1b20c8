package models

import "time"

// Invite lifecycle states.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRejected = "rejected"
	InviteStatusExpired  = "expired"
)

// DataRoomInvite is a single-use, expiring, email-bound token that turns
// into a DataRoomPermission on acceptance. Only the sha256 hash of the
// token is stored; the raw token is returned exactly once at creation.
type DataRoomInvite struct {
	BaseModel

	DataRoomID string     `gorm:"type:uuid;not null;index" json:"data_room_id"`
	Email      string     `gorm:"not null;index" json:"email"`
	Role       Role       `gorm:"type:varchar(16);not null" json:"role"`
	TokenHash  string     `gorm:"not null;uniqueIndex" json:"-"`
	Status     string     `gorm:"not null;index;default:pending" json:"status"`
	InvitedBy  string     `gorm:"type:uuid" json:"invited_by"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// Terminal reports whether the invite can no longer transition.
func (i *DataRoomInvite) Terminal() bool {
	return i.Status == InviteStatusRejected || i.Status == InviteStatusExpired
}
