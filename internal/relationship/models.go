package relationship

import (
	"gorm.io/gorm"
)

// Relationship status values. Transitions are one-way:
// pending -> accepted | rejected, nothing after a terminal state.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Relationship is a standing trading pact between two companies over one
// product, negotiated in alternating price/term steps.
type Relationship struct {
	gorm.Model     `json:"-"`
	RelationshipID string            `gorm:"uniqueIndex" json:"relationship_id"`
	Supplier       string            `gorm:"index" json:"supplier"`
	Buyer          string            `gorm:"index" json:"buyer"`
	ProductID      string            `json:"product_id"`
	StartDate      int64             `json:"start_date"` // unix seconds
	EndDate        int64             `json:"end_date"`
	Status         string            `gorm:"index" json:"status"`
	AgreedPrice    int64             `json:"agreed_price"` // bound on accept, smallest currency unit
	Steps          []NegotiationStep `gorm:"foreignKey:RelationshipID;references:RelationshipID" json:"steps,omitempty"`
}

// NegotiationStep is one round of the price/term negotiation. Step numbers
// increase strictly by one and the proposer alternates between the parties.
type NegotiationStep struct {
	gorm.Model     `json:"-"`
	RelationshipID string `gorm:"index" json:"-"`
	StepNumber     int    `json:"step_number"`
	UnitPrice      int64  `json:"unit_price"`
	Proposer       string `json:"proposer"`
	Timestamp      int64  `json:"timestamp"`
	EndDate        int64  `json:"end_date"`
}

// IsParty reports whether an address is one of the relationship's two parties.
func (r *Relationship) IsParty(address string) bool {
	return address == r.Supplier || address == r.Buyer
}

// Counterparty returns the other party of the relationship.
func (r *Relationship) Counterparty(address string) string {
	if address == r.Supplier {
		return r.Buyer
	}
	return r.Supplier
}

// LatestStep returns the most recent negotiation step, or nil if none exist.
func (r *Relationship) LatestStep() *NegotiationStep {
	if len(r.Steps) == 0 {
		return nil
	}
	latest := &r.Steps[0]
	for i := range r.Steps {
		if r.Steps[i].StepNumber > latest.StepNumber {
			latest = &r.Steps[i]
		}
	}
	return latest
}
