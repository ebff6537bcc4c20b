package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warung/kasir/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrInsufficientStock is returned when a reservation asks for more than is on hand
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidAmount is returned for a reservation or restore of zero or fewer units
	ErrInvalidAmount = errors.New("amount must be positive")
)

// InventoryRepository owns product quantities. Every change to a product's
// quantity is serialized per product id and checked by the database in the same
// statement that applies it.
type InventoryRepository struct {
	db    *db.DB
	locks *keyLock
	log   *zap.Logger
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(database *db.DB, logger *zap.Logger) *InventoryRepository {
	return &InventoryRepository{
		db:    database,
		locks: newKeyLock(),
		log:   logger,
	}
}

// TryReserve takes amount units of the product if at least that many are on hand.
// On success it returns the product as it stands right after the decrement, read
// inside the same database transaction. On failure the quantity is unchanged.
func (r *InventoryRepository) TryReserve(ctx context.Context, productID uint, amount int64) (*db.Product, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	unlock, err := r.locks.Lock(ctx, productID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var snapshot db.Product
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&db.Product{}).
			Where("id = ? AND quantity >= ?", productID, amount).
			UpdateColumns(stockDelta(-amount))
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&db.Product{}).Where("id = ?", productID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrProductNotFound
			}
			return ErrInsufficientStock
		}

		return tx.First(&snapshot, productID).Error
	})
	if err != nil {
		if !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrProductNotFound) {
			r.log.Error("Failed to reserve stock",
				zap.Uint("product_id", productID),
				zap.Int64("amount", amount),
				zap.Error(err),
			)
		}
		return nil, err
	}

	r.log.Debug("Stock reserved",
		zap.Uint("product_id", productID),
		zap.Int64("amount", amount),
		zap.Int64("remaining", snapshot.Quantity),
	)
	return &snapshot, nil
}

// Restore puts amount units back on the product, undoing an earlier reservation
func (r *InventoryRepository) Restore(ctx context.Context, productID uint, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	unlock, err := r.locks.Lock(ctx, productID)
	if err != nil {
		return err
	}
	defer unlock()

	result := r.db.WithContext(ctx).Model(&db.Product{}).
		Where("id = ?", productID).
		UpdateColumns(stockDelta(amount))
	if result.Error != nil {
		r.log.Error("Failed to restore stock",
			zap.Uint("product_id", productID),
			zap.Int64("amount", amount),
			zap.Error(result.Error),
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}

	r.log.Info("Stock restored", zap.Uint("product_id", productID), zap.Int64("amount", amount))
	return nil
}

// Read returns the current quantity for display. It never gates a sale.
func (r *InventoryRepository) Read(ctx context.Context, productID uint) (int64, error) {
	var product db.Product
	err := r.db.WithContext(ctx).Select("id", "quantity").First(&product, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrProductNotFound
		}
		r.log.Error("Failed to read stock", zap.Uint("product_id", productID), zap.Error(err))
		return 0, err
	}

	return product.Quantity, nil
}

// stockDelta moves quantity by delta and rewrites both subtotals from the new quantity
func stockDelta(delta int64) map[string]interface{} {
	return map[string]interface{}{
		"quantity":       gorm.Expr("quantity + ?", delta),
		"subtotal_cost":  gorm.Expr("(quantity + ?) * unit_cost", delta),
		"subtotal_price": gorm.Expr("(quantity + ?) * unit_price", delta),
		"updated_at":     time.Now(),
	}
}
