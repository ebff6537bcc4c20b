// Package receipt builds read-only receipt views of persisted transactions.
package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/repo"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no transaction has the requested id
var ErrNotFound = errors.New("receipt not found")

// TransactionSource loads persisted transactions
type TransactionSource interface {
	GetTransaction(ctx context.Context, id uint) (*db.Transaction, error)
}

// CashierDirectory resolves cashier display names
type CashierDirectory interface {
	CashierName(ctx context.Context, id uint) (string, error)
}

// Line is one printed receipt line
type Line struct {
	Position    int    `json:"position"`
	ProductID   uint   `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Subtotal    int64  `json:"subtotal"`
}

// View is what the cashier sees for a completed sale
type View struct {
	TransactionID uint      `json:"transaction_id"`
	CashierID     uint      `json:"cashier_id"`
	CashierName   string    `json:"cashier_name"`
	OwnerID       uint      `json:"owner_id"`
	Timestamp     time.Time `json:"timestamp"`
	Lines         []Line    `json:"lines"`
	ItemCount     int64     `json:"item_count"`
	Total         int64     `json:"total"`
}

// Projector turns transactions into receipt views
type Projector struct {
	transactions TransactionSource
	cashiers     CashierDirectory
	log          *zap.Logger
}

// NewProjector creates a receipt projector
func NewProjector(transactions TransactionSource, cashiers CashierDirectory, log *zap.Logger) *Projector {
	return &Projector{
		transactions: transactions,
		cashiers:     cashiers,
		log:          log,
	}
}

// Project builds the receipt for a transaction. It only reads.
func (p *Projector) Project(ctx context.Context, transactionID uint) (*View, error) {
	txn, err := p.transactions.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repo.ErrTransactionNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	name, err := p.cashiers.CashierName(ctx, txn.CashierID)
	if err != nil {
		if !errors.Is(err, repo.ErrCashierNotFound) {
			return nil, err
		}
		p.log.Warn("Receipt cashier is unknown",
			zap.Uint("transaction_id", txn.ID),
			zap.Uint("cashier_id", txn.CashierID),
		)
	}

	return FromTransaction(txn, name), nil
}

// FromTransaction builds a view from an already loaded transaction
func FromTransaction(txn *db.Transaction, cashierName string) *View {
	view := &View{
		TransactionID: txn.ID,
		CashierID:     txn.CashierID,
		CashierName:   cashierName,
		OwnerID:       txn.OwnerID,
		Timestamp:     txn.Timestamp,
		Lines:         make([]Line, len(txn.LineItems)),
		ItemCount:     txn.ItemCount,
		Total:         txn.Total,
	}
	for i, item := range txn.LineItems {
		view.Lines[i] = Line{
			Position:    item.Position,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Subtotal:    item.Subtotal,
		}
	}
	return view
}
