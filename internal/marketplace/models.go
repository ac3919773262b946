package marketplace

import (
	"gorm.io/gorm"
)

// Listing is a one-off spot market offer. quantity_available only ever
// decreases; the listing deactivates exactly when it reaches zero or the
// seller removes it.
type Listing struct {
	gorm.Model        `json:"-"`
	ListingID         string `gorm:"uniqueIndex" json:"listing_id"`
	ProductID         string `gorm:"index" json:"product_id"`
	Seller            string `gorm:"index" json:"seller"`
	QuantityAvailable int64  `json:"quantity_available"`
	UnitPrice         int64  `json:"unit_price"` // smallest currency unit
	ListedDate        int64  `json:"listed_date"`
	IsActive          bool   `gorm:"index" json:"is_active"`
}

// PurchaseReceipt reports the outcome of a spot purchase. The refund is any
// payment tendered beyond qty * unit price; it is never retained.
type PurchaseReceipt struct {
	ListingID        string `json:"listing_id"`
	TransactionID    string `json:"transaction_id"`
	ProductID        string `json:"product_id"` // product now owned by the buyer
	Quantity         int64  `json:"quantity"`
	SellerCredited   int64  `json:"seller_credited"`
	Refund           int64  `json:"refund"`
	RemainingOnOffer int64  `json:"remaining_on_offer"`
}
