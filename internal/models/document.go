package models

// Visibility is the closed set of per-document access modes. The policy
// evaluator switches over every member and denies anything outside the
// set, so a new mode cannot fall through to a permissive default.
type Visibility string

const (
	VisibilityAll             Visibility = "all"
	VisibilityOwnerOnly       Visibility = "owner_only"
	VisibilityTransactionOnly Visibility = "transaction_only"
	VisibilityNDAOnly         Visibility = "nda_only"
	VisibilityCustom          Visibility = "custom"
)

// Valid reports whether v is a member of the closed visibility set.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityAll, VisibilityOwnerOnly, VisibilityTransactionOnly, VisibilityNDAOnly, VisibilityCustom:
		return true
	}
	return false
}

// Document is one entry in a data room. Content lives in versions; the
// document row carries the access-control state.
type Document struct {
	BaseModel

	DataRoomID        string     `gorm:"type:uuid;not null;index" json:"data_room_id"`
	FolderID          *string    `gorm:"type:uuid;index" json:"folder_id,omitempty"`
	RequirementID     *string    `gorm:"type:uuid;index" json:"requirement_id,omitempty"`
	Title             string     `gorm:"not null" json:"title"`
	Visibility        Visibility `gorm:"type:varchar(32);not null;default:all" json:"visibility"`
	DownloadBlocked   bool       `gorm:"not null;default:false" json:"download_blocked"`
	WatermarkRequired bool       `gorm:"not null;default:false" json:"watermark_required"`
	CurrentVersionID  *string    `gorm:"type:uuid" json:"current_version_id,omitempty"`

	Versions []DocumentVersion `gorm:"foreignKey:DocumentID" json:"versions,omitempty"`
	Grants   []DocumentGrant   `gorm:"foreignKey:DocumentID" json:"grants,omitempty"`
}
