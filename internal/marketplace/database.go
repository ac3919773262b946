package marketplace

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

func (d *Database) GetListing(listingID string) (*Listing, error) {
	return GetListingInTx(d.db, listingID)
}

func (d *Database) GetActiveListings() ([]Listing, error) {
	var listings []Listing
	if err := d.db.Where("is_active = ?", true).Order("id asc").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (d *Database) CountActiveListings() (int64, error) {
	var count int64
	err := d.db.Model(&Listing{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// GetListingInTx loads a listing inside an open transaction. Used by the
// order pipeline when reserving and releasing listing quantity.
func GetListingInTx(tx *gorm.DB, listingID string) (*Listing, error) {
	var listing Listing
	if err := tx.Where("listing_id = ?", listingID).First(&listing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &listing, nil
}
