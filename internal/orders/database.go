package orders

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Handle() *gorm.DB {
	return d.db
}

func (d *Database) GetOrder(orderID string) (*Order, error) {
	return getOrder(d.db, orderID)
}

func (d *Database) GetOrdersByBuyer(address string) ([]Order, error) {
	return d.ordersWhere("buyer = ?", address)
}

func (d *Database) GetOrdersBySeller(address string) ([]Order, error) {
	return d.ordersWhere("seller = ?", address)
}

func (d *Database) ordersWhere(query string, args ...interface{}) ([]Order, error) {
	var orders []Order
	err := d.db.Preload("Events").Where(query, args...).Order("id asc").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// GetDeadlineCandidates returns orders whose deadline has already passed and
// which are still in a state the clock can expire.
func (d *Database) GetDeadlineCandidates(now time.Time) ([]Order, error) {
	var orders []Order
	err := d.db.
		Where("(status = ? AND approval_deadline < ?) OR (status = ? AND payment_deadline > 0 AND payment_deadline < ?)",
			StatusPending, now.Unix(), StatusApproved, now.Unix()).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (d *Database) CountOrders() (int64, error) {
	var count int64
	err := d.db.Model(&Order{}).Count(&count).Error
	return count, err
}

func getOrder(tx *gorm.DB, orderID string) (*Order, error) {
	var order Order
	err := tx.Preload("Events", func(db *gorm.DB) *gorm.DB {
		return db.Order("delivery_events.id asc")
	}).Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func externalPaymentExists(tx *gorm.DB, paymentID string) (bool, error) {
	var count int64
	if err := tx.Model(&ExternalPayment{}).Where("payment_id = ?", paymentID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
