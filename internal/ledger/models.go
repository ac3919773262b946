package ledger

import (
	"encoding/json"

	"gorm.io/gorm"
)

// Product is an inventory record. A product is never deleted: its quantity
// may reach zero but the row stays behind for traceability queries.
//
// Ownership history and parent lineage are stored as JSON-encoded arrays in
// string columns; entities reference each other only by id so the lineage
// graph stays acyclic.
type Product struct {
	gorm.Model      `json:"-"`
	ProductID       string      `gorm:"uniqueIndex" json:"product_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	ImageRef        string      `json:"image_ref"` // opaque content hash, integrity not enforced here
	Quantity        int64       `json:"quantity"`
	UnitPrice       int64       `json:"unit_price"` // smallest currency unit
	OwnerAddress    string      `gorm:"index" json:"owner_address"`
	CreatedTime     int64       `json:"created_time"` // unix seconds
	IsManufactured  bool        `json:"is_manufactured"`
	OriginalCreator string      `json:"original_creator"`
	OwnerHistory    string      `json:"-"` // JSON array of owner addresses
	ParentLineage   string      `json:"-"` // JSON array of ancestor product ids
	Components      []Component `gorm:"foreignKey:ProductID;references:ProductID" json:"components,omitempty"`
}

// Component is one bill-of-materials entry: an ingredient consumed while
// manufacturing the owning product.
type Component struct {
	gorm.Model   `json:"-"`
	ProductID    string `gorm:"index" json:"-"`
	IngredientID string `json:"ingredient_id"`
	QuantityUsed int64  `json:"quantity_used"`
	Supplier     string `json:"supplier"`
	Timestamp    int64  `json:"timestamp"`
}

// OwnerChain decodes the ownership history column.
func (p *Product) OwnerChain() []string {
	return decodeStrings(p.OwnerHistory)
}

// ParentChain decodes the ancestor product id column.
func (p *Product) ParentChain() []string {
	return decodeStrings(p.ParentLineage)
}

func (p *Product) setOwnerChain(owners []string) error {
	encoded, err := json.Marshal(owners)
	if err != nil {
		return err
	}
	p.OwnerHistory = string(encoded)
	return nil
}

func (p *Product) setParentChain(parents []string) error {
	encoded, err := json.Marshal(parents)
	if err != nil {
		return err
	}
	p.ParentLineage = string(encoded)
	return nil
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// ProductResponse is the API shape of a product with decoded lineage.
type ProductResponse struct {
	ProductID       string      `json:"product_id"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	ImageRef        string      `json:"image_ref"`
	Quantity        int64       `json:"quantity"`
	UnitPrice       int64       `json:"unit_price"`
	OwnerAddress    string      `json:"owner_address"`
	CreatedTime     int64       `json:"created_time"`
	IsManufactured  bool        `json:"is_manufactured"`
	OriginalCreator string      `json:"original_creator"`
	OwnerHistory    []string    `json:"ownership_history"`
	ParentHistory   []string    `json:"parent_history"`
	Components      []Component `json:"components,omitempty"`
}

// Response converts a product to its API shape.
func (p *Product) Response() *ProductResponse {
	return &ProductResponse{
		ProductID:       p.ProductID,
		Name:            p.Name,
		Description:     p.Description,
		ImageRef:        p.ImageRef,
		Quantity:        p.Quantity,
		UnitPrice:       p.UnitPrice,
		OwnerAddress:    p.OwnerAddress,
		CreatedTime:     p.CreatedTime,
		IsManufactured:  p.IsManufactured,
		OriginalCreator: p.OriginalCreator,
		OwnerHistory:    p.OwnerChain(),
		ParentHistory:   p.ParentChain(),
		Components:      p.Components,
	}
}

// Ingredient is one manufacture input: the ingredient product and the
// quantity consumed per unit produced.
type Ingredient struct {
	IngredientID string `json:"ingredient_id" binding:"required"`
	QtyNeeded    int64  `json:"qty_needed" binding:"required"`
}
