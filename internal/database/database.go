package database

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/chainweave/supply-api/internal/database/migrations"
	"github.com/chainweave/supply-api/internal/ledger"
	"github.com/chainweave/supply-api/internal/marketplace"
	"github.com/chainweave/supply-api/internal/orders"
	"github.com/chainweave/supply-api/internal/registry"
	"github.com/chainweave/supply-api/internal/relationship"
	"github.com/chainweave/supply-api/internal/transactions"
)

// NewDatabase opens the configured database and migrates the schema.
// DB_DRIVER selects sqlite (default) or postgres; DB_DSN overrides the
// connection string.
func NewDatabase() (*gorm.DB, error) {
	db, err := open()
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs auto-migration for every domain model plus the versioned
// index migrations.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&registry.Company{},
		&ledger.Product{},
		&ledger.Component{},
		&relationship.Relationship{},
		&relationship.NegotiationStep{},
		&marketplace.Listing{},
		&orders.Order{},
		&orders.DeliveryEvent{},
		&orders.ExternalPayment{},
		&transactions.Transaction{},
	)
	if err != nil {
		return err
	}

	if err := migrations.AddParticipantIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.AddPipelineIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func open() (*gorm.DB, error) {
	driver := os.Getenv("DB_DRIVER")
	dsn := os.Getenv("DB_DSN")

	switch driver {
	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("DB_DSN is required for the postgres driver")
		}
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "", "sqlite":
		if dsn == "" {
			dsn = "supply-ledger.db"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}
}
