package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry is an append-only record of an access-relevant action. Rows
// are never mutated or deleted outside of retention cleanup.
type AuditEntry struct {
	ID         string         `gorm:"primaryKey;type:uuid" json:"id"`
	DataRoomID string         `gorm:"type:uuid;not null;index" json:"data_room_id"`
	ActorID    *string        `gorm:"type:uuid;index" json:"actor_id,omitempty"`
	ActorEmail string         `json:"actor_email"`
	Action     string         `gorm:"not null;index" json:"action"`
	TargetType string         `gorm:"index" json:"target_type"`
	TargetID   string         `gorm:"index" json:"target_id"`
	IPAddress  string         `json:"ip_address"`
	UserAgent  string         `json:"user_agent"`
	Metadata   datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
