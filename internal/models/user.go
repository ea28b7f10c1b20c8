package models

// User mirrors an identity provisioned by the external auth system.
// The data room never creates or mutates users; rows exist so foreign
// keys and email lookups resolve locally.
type User struct {
	BaseModel

	Email string `gorm:"uniqueIndex;not null" json:"email"`
	Name  string `json:"name"`
}
