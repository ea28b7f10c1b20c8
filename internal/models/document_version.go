package models

import "time"

// ScanStatus is the virus-scan verdict written asynchronously by the
// external scanner. Only clean versions may be served.
type ScanStatus string

const (
	ScanStatusPending ScanStatus = "pending"
	ScanStatusClean   ScanStatus = "clean"
	ScanStatusBlocked ScanStatus = "blocked"
)

// Valid reports whether s is a recognised scan status.
func (s ScanStatus) Valid() bool {
	switch s {
	case ScanStatusPending, ScanStatusClean, ScanStatusBlocked:
		return true
	}
	return false
}

// DocumentVersion is one immutable upload of a document. Version numbers
// are strictly increasing per document, enforced by the unique index.
type DocumentVersion struct {
	BaseModel

	DocumentID      string     `gorm:"type:uuid;not null;uniqueIndex:idx_doc_version" json:"document_id"`
	Version         int        `gorm:"not null;uniqueIndex:idx_doc_version" json:"version"`
	StorageKey      string     `gorm:"not null" json:"storage_key"`
	FileName        string     `gorm:"not null" json:"file_name"`
	MimeType        string     `json:"mime_type"`
	Size            int64      `json:"size"`
	VirusScanStatus ScanStatus `gorm:"type:varchar(16);not null;default:pending" json:"virus_scan_status"`
	UploadedBy      string     `gorm:"type:uuid" json:"uploaded_by"`
	UploadedAt      time.Time  `gorm:"not null" json:"uploaded_at"`
}
