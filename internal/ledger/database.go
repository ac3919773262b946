package ledger

import (
	"errors"

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

func (d *Database) GetProduct(productID string) (*Product, error) {
	return getProduct(d.db, productID)
}

func (d *Database) GetProductsByOwner(address string) ([]Product, error) {
	var products []Product
	if err := d.db.Where("owner_address = ?", address).Order("id asc").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (d *Database) CountProducts() (int64, error) {
	var count int64
	err := d.db.Model(&Product{}).Count(&count).Error
	return count, err
}

func getProduct(tx *gorm.DB, productID string) (*Product, error) {
	var product Product
	if err := tx.Preload("Components").Where("product_id = ?", productID).First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
