package transactions

import (
	"gorm.io/gorm"
)

// Trade types
const (
	TypeSpot         = "spot"
	TypeRelationship = "relationship"
)

// Transaction is one completed trade. The log is append-only: records are
// never updated or deleted.
type Transaction struct {
	gorm.Model    `json:"-"`
	TransactionID string `gorm:"uniqueIndex" json:"transaction_id"`
	Buyer         string `gorm:"index" json:"buyer"`
	Seller        string `gorm:"index" json:"seller"`
	ProductID     string `json:"product_id"`
	Quantity      int64  `json:"quantity"`
	TotalPrice    int64  `json:"total_price"`
	TradeType     string `json:"trade_type"` // spot or relationship
	Timestamp     int64  `json:"timestamp"`
	Status        string `json:"status"`
}
