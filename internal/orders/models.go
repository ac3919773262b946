package orders

import (
	"gorm.io/gorm"
)

// Order status values. pending -> approved -> completed, pending -> rejected,
// and pending/approved -> expired once a deadline passes.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
	StatusExpired   = "expired"
)

// Order origination paths
const (
	TypeRelationship = "relationship"
	TypeSpot         = "spot"
)

// Delivery milestone tags, in causal order.
const (
	EventApproved       = "approved"
	EventPacked         = "packed"
	EventShipped        = "shipped"
	EventDelivered      = "delivered"
	EventQualityChecked = "quality_checked"
	EventPaymentSent    = "payment_sent"
)

// deliverySequence is the only admissible ordering of delivery events.
var deliverySequence = []string{
	EventApproved,
	EventPacked,
	EventShipped,
	EventDelivered,
	EventQualityChecked,
	EventPaymentSent,
}

// Actor roles per event tag. approved/packed/shipped belong to the seller,
// the rest to the buyer.
const (
	roleSeller = "seller"
	roleBuyer  = "buyer"
)

var eventRole = map[string]string{
	EventApproved:       roleSeller,
	EventPacked:         roleSeller,
	EventShipped:        roleSeller,
	EventDelivered:      roleBuyer,
	EventQualityChecked: roleBuyer,
	EventPaymentSent:    roleBuyer,
}

func sequenceIndex(tag string) int {
	for i, t := range deliverySequence {
		if t == tag {
			return i
		}
	}
	return -1
}

// Order is one trade moving through the fulfillment pipeline.
type Order struct {
	gorm.Model       `json:"-"`
	OrderID          string          `gorm:"uniqueIndex" json:"order_id"`
	Buyer            string          `gorm:"index" json:"buyer"`
	Seller           string          `gorm:"index" json:"seller"`
	ProductID        string          `json:"product_id"`
	Quantity         int64           `json:"quantity"`
	UnitPrice        int64           `json:"unit_price"`
	TotalPrice       int64           `json:"total_price"`
	OrderType        string          `json:"order_type"` // relationship or spot
	Status           string          `gorm:"index" json:"status"`
	ApprovalDeadline int64           `json:"approval_deadline"` // unix seconds
	PaymentDeadline  int64           `json:"payment_deadline"`  // set on approval
	Notes            string          `json:"notes"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	RelationshipID   string          `json:"relationship_id,omitempty"`
	ListingID        string          `json:"listing_id,omitempty"`
	Events           []DeliveryEvent `gorm:"foreignKey:OrderID;references:OrderID" json:"events,omitempty"`
}

// DeliveryEvent is one timestamped fulfillment milestone.
type DeliveryEvent struct {
	gorm.Model  `json:"-"`
	OrderID     string `gorm:"index" json:"-"`
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
	Description string `json:"description"`
	Actor       string `json:"actor"`
}

// ExternalPayment records a consumed off-chain payment confirmation. The
// unique index on PaymentID is what makes the confirmation callback
// idempotent under gateway retries.
type ExternalPayment struct {
	gorm.Model `json:"-"`
	PaymentID  string `gorm:"uniqueIndex" json:"payment_id"`
	OrderID    string `gorm:"index" json:"order_id"`
	Method     string `json:"method"`
	ReceivedAt int64  `json:"received_at"`
}

// LatestEvent returns the most recent delivery event, or nil if none exist.
func (o *Order) LatestEvent() *DeliveryEvent {
	if len(o.Events) == 0 {
		return nil
	}
	latest := &o.Events[0]
	for i := range o.Events {
		if sequenceIndex(o.Events[i].Status) > sequenceIndex(latest.Status) {
			latest = &o.Events[i]
		}
	}
	return latest
}

// PaymentReceipt reports a settled order payment.
type PaymentReceipt struct {
	OrderID        string `json:"order_id"`
	TransactionID  string `json:"transaction_id"`
	ProductID      string `json:"product_id"` // product now owned by the buyer
	Quantity       int64  `json:"quantity"`
	SellerCredited int64  `json:"seller_credited"`
	Refund         int64  `json:"refund"`
}
