package models

// Transaction statuses recognised by the registry lookup.
const (
	TransactionStatusActive    = "active"
	TransactionStatusClosed    = "closed"
	TransactionStatusCancelled = "cancelled"
)

// Transaction records a buyer/seller deal on a listing. Documents with
// transaction-only visibility are reachable only by parties of an active
// transaction.
type Transaction struct {
	BaseModel

	ListingID string `gorm:"type:uuid;not null;index" json:"listing_id"`
	BuyerID   string `gorm:"type:uuid;not null;index" json:"buyer_id"`
	SellerID  string `gorm:"type:uuid;not null;index" json:"seller_id"`
	Status    string `gorm:"not null;index" json:"status"`
}
