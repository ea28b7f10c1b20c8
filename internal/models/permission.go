package models

// Role names a caller's relationship to a data room.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	// RoleNone is the computed result for identities with no access.
	// It is never stored.
	RoleNone Role = ""
)

// ManagesRoom reports whether the role administers the data room and
// therefore bypasses the NDA gate and per-document visibility rules.
func (r Role) ManagesRoom() bool {
	return r == RoleOwner || r == RoleEditor
}

// DataRoomPermission maps a user to a role within one data room. The
// unique index over (data_room_id, user_id) is what serialises concurrent
// invite acceptances: the database admits at most one row per pair.
type DataRoomPermission struct {
	BaseModel

	DataRoomID string `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"data_room_id"`
	UserID     string `gorm:"type:uuid;not null;uniqueIndex:idx_room_user" json:"user_id"`
	Role       Role   `gorm:"type:varchar(16);not null" json:"role"`
	InvitedBy  string `gorm:"type:uuid" json:"invited_by,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
