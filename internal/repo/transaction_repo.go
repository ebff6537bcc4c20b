package repo

import (
	"context"
	"errors"

	"github.com/warung/kasir/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrTransactionNotFound is returned when a transaction id is unknown
var ErrTransactionNotFound = errors.New("transaction not found")

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// TransactionRepository persists completed sales
type TransactionRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(database *db.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:  database,
		log: logger,
	}
}

// SaveTransaction inserts the transaction and its line items atomically and
// returns the assigned id
func (r *TransactionRepository) SaveTransaction(ctx context.Context, txn *db.Transaction) (uint, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(txn).Error
	})
	if err != nil {
		r.log.Error("Failed to save transaction",
			zap.Uint("cashier_id", txn.CashierID),
			zap.Int("lines", len(txn.LineItems)),
			zap.Error(err),
		)
		return 0, err
	}

	r.log.Info("Transaction saved",
		zap.Uint("transaction_id", txn.ID),
		zap.Uint("cashier_id", txn.CashierID),
		zap.Int64("total", txn.Total),
	)
	return txn.ID, nil
}

// GetTransaction loads a transaction with its line items in cart order
func (r *TransactionRepository) GetTransaction(ctx context.Context, id uint) (*db.Transaction, error) {
	var txn db.Transaction
	err := r.db.WithContext(ctx).
		Preload("LineItems", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&txn, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		r.log.Error("Failed to get transaction", zap.Uint("transaction_id", id), zap.Error(err))
		return nil, err
	}

	return &txn, nil
}

// ListTransactions returns a cashier's transactions within one owner, newest
// first, without line items. limit defaults to 20 and is capped at 100.
func (r *TransactionRepository) ListTransactions(ctx context.Context, ownerID, cashierID uint, limit int) ([]*db.Transaction, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	var txns []*db.Transaction
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND cashier_id = ?", ownerID, cashierID).
		Order("sold_at DESC, id DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		r.log.Error("Failed to list transactions", zap.Uint("cashier_id", cashierID), zap.Error(err))
		return nil, err
	}

	return txns, nil
}
