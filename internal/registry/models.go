package registry

import (
	"gorm.io/gorm"
)

// Company is the identity record for a trading party. The address is the
// unique identity key; records are never deleted.
type Company struct {
	gorm.Model   `json:"-"`
	CompanyID    string `gorm:"uniqueIndex" json:"company_id"`
	Address      string `gorm:"uniqueIndex" json:"address"`
	Name         string `json:"name"`
	Balance      int64  `json:"balance"` // accumulated native settlement proceeds, smallest currency unit
	RegisteredAt int64  `json:"registered_at"`
}
