package db

import (
	"gorm.io/gorm"
)

// RunMigrations runs all database migrations
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(&Product{}, &Cashier{}, &Transaction{}, &LineItem{}); err != nil {
		return err
	}

	if err := createIndexes(db.DB); err != nil {
		return err
	}

	return nil
}

func createIndexes(db *gorm.DB) error {
	// Partial and composite indexes; the syntax is shared by postgres and sqlite.
	indexes := []string{
		// In-stock listing per owner
		`CREATE INDEX IF NOT EXISTS idx_products_owner_in_stock ON products(owner_id, name) WHERE quantity > 0`,

		// Newest-first transaction history per cashier
		`CREATE INDEX IF NOT EXISTS idx_transactions_cashier_time ON transactions(cashier_id, sold_at DESC)`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
