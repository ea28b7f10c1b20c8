package models

// Listing is the marketplace listing a data room belongs to. Only the
// owner reference is consulted here: the listing owner is treated as the
// data room OWNER even without an explicit permission row.
type Listing struct {
	BaseModel

	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title   string `json:"title"`
}
