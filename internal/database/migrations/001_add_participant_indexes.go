package migrations

import (
	"gorm.io/gorm"
)

// AddParticipantIndexes creates the indexes backing the by-participant
// lookup paths (trade history, relationship queries).
func AddParticipantIndexes(db *gorm.DB) error {
	// Using raw SQL for index creation to have more control over index types
	indexes := []string{
		// Composite index for participant trade-history queries
		`CREATE INDEX IF NOT EXISTS idx_transactions_buyer_seller
		 ON transactions(buyer, seller)`,

		// Index for insertion-ordered history scans
		`CREATE INDEX IF NOT EXISTS idx_transactions_timestamp
		 ON transactions(timestamp)`,

		// Composite indexes for per-party relationship queries by status
		`CREATE INDEX IF NOT EXISTS idx_relationships_supplier_status
		 ON relationships(supplier, status)`,

		`CREATE INDEX IF NOT EXISTS idx_relationships_buyer_status
		 ON relationships(buyer, status)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
