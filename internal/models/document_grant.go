package models

// DocumentGrant is an explicit allow-list entry, consulted only when the
// owning document's visibility is custom. Either a user reference or a
// bare email may be granted; the grant has no lifecycle of its own.
type DocumentGrant struct {
	BaseModel

	DocumentID string  `gorm:"type:uuid;not null;index" json:"document_id"`
	UserID     *string `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Email      string  `gorm:"index" json:"email,omitempty"`
	GrantedBy  string  `gorm:"type:uuid" json:"granted_by,omitempty"`
}
