package relationship

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

func (d *Database) GetRelationship(relationshipID string) (*Relationship, error) {
	return getRelationship(d.db, relationshipID)
}

func (d *Database) GetByParticipantAndStatus(address, status string) ([]Relationship, error) {
	var relationships []Relationship
	err := d.db.Preload("Steps").
		Where("(supplier = ? OR buyer = ?) AND status = ?", address, address, status).
		Order("id asc").
		Find(&relationships).Error
	if err != nil {
		return nil, err
	}
	return relationships, nil
}

func (d *Database) CountRelationships() (int64, error) {
	var count int64
	err := d.db.Model(&Relationship{}).Count(&count).Error
	return count, err
}

func getRelationship(tx *gorm.DB, relationshipID string) (*Relationship, error) {
	var relationship Relationship
	err := tx.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("negotiation_steps.step_number asc")
	}).Where("relationship_id = ?", relationshipID).First(&relationship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &relationship, nil
}
