package registry

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

func (d *Database) CreateCompany(company *Company) error {
	return d.db.Create(company).Error
}

func (d *Database) GetCompanyByAddress(address string) (*Company, error) {
	var company Company
	if err := d.db.Where("address = ?", address).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &company, nil
}

func (d *Database) UpdateCompany(company *Company) error {
	return d.db.Save(company).Error
}

func (d *Database) ListAddresses() ([]string, error) {
	var addresses []string
	if err := d.db.Model(&Company{}).Order("id asc").Pluck("address", &addresses).Error; err != nil {
		return nil, err
	}
	return addresses, nil
}

func (d *Database) CountCompanies() (int64, error) {
	var count int64
	err := d.db.Model(&Company{}).Count(&count).Error
	return count, err
}
