package models

// Folder organises documents within a data room.
type Folder struct {
	BaseModel

	DataRoomID string  `gorm:"type:uuid;not null;index" json:"data_room_id"`
	Name       string  `gorm:"not null" json:"name"`
	ParentID   *string `gorm:"type:uuid;index" json:"parent_id,omitempty"`
}
