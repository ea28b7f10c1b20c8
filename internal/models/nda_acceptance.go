package models

import "time"

// NDAAcceptance records that an identity accepted the non-disclosure
// agreement for a data room. Rows are immutable once written; any matching
// row satisfies the NDA gate. Acceptance is idempotent per identity.
type NDAAcceptance struct {
	BaseModel

	DataRoomID string    `gorm:"type:uuid;not null;index:idx_nda_room" json:"data_room_id"`
	UserID     *string   `gorm:"type:uuid;index:idx_nda_room" json:"user_id,omitempty"`
	Email      string    `gorm:"not null;index" json:"email"`
	AcceptedAt time.Time `gorm:"not null" json:"accepted_at"`
	IPAddress  string    `json:"ip_address"`
}
