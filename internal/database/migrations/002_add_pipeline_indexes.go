package migrations

import (
	"gorm.io/gorm"
)

// AddPipelineIndexes creates the indexes backing the order pipeline's hot
// paths: deadline sweeps and per-party order listings.
func AddPipelineIndexes(db *gorm.DB) error {
	indexes := []string{
		// Composite index for the lazy-expiry sweep over pending orders
		`CREATE INDEX IF NOT EXISTS idx_orders_status_approval_deadline
		 ON orders(status, approval_deadline)`,

		// Composite index for the lazy-expiry sweep over approved orders
		`CREATE INDEX IF NOT EXISTS idx_orders_status_payment_deadline
		 ON orders(status, payment_deadline)`,

		// Index for active-listing scans by seller
		`CREATE INDEX IF NOT EXISTS idx_listings_seller_active
		 ON listings(seller, is_active)`,

		// Index for delivery-event lookups in recorded order
		`CREATE INDEX IF NOT EXISTS idx_delivery_events_order_id
		 ON delivery_events(order_id, id)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}
	return nil
}
