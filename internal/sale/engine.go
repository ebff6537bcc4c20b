// Package sale turns a cashier's cart into a persisted transaction. A cart is
// all-or-nothing: stock is reserved line by line in cart order and every
// reservation is returned if a later line or the final write fails.
package sale

import (
	"context"
	"errors"
	"time"

	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/metrics"
	"github.com/warung/kasir/internal/pricing"
	"github.com/warung/kasir/internal/repo"
	"go.uber.org/zap"
)

const restoreTimeout = 5 * time.Second

// Cashier identifies who is selling and on behalf of which owner
type Cashier struct {
	ID      uint
	OwnerID uint
}

// Line is one cart entry
type Line struct {
	ProductID uint  `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// Catalog looks products up without owner scoping
type Catalog interface {
	GetProductByID(ctx context.Context, id uint) (*db.Product, error)
}

// Inventory reserves and restores stock atomically per product
type Inventory interface {
	TryReserve(ctx context.Context, productID uint, amount int64) (*db.Product, error)
	Restore(ctx context.Context, productID uint, amount int64) error
}

// Ledger persists completed transactions
type Ledger interface {
	SaveTransaction(ctx context.Context, txn *db.Transaction) (uint, error)
}

// EventPublisher announces sale side effects. Calls must not block on delivery.
type EventPublisher interface {
	SaleCompleted(ctx context.Context, txn *db.Transaction)
	StockDepleted(ctx context.Context, product *db.Product)
}

// Engine processes sales
type Engine struct {
	catalog   Catalog
	inventory Inventory
	ledger    Ledger
	events    EventPublisher
	metrics   *metrics.Recorder
	timeout   time.Duration
	log       *zap.Logger
}

// NewEngine creates a sale engine. A zero timeout leaves the caller's deadline as the only bound.
func NewEngine(catalog Catalog, inventory Inventory, ledger Ledger, events EventPublisher, recorder *metrics.Recorder, timeout time.Duration, log *zap.Logger) *Engine {
	return &Engine{
		catalog:   catalog,
		inventory: inventory,
		ledger:    ledger,
		events:    events,
		metrics:   recorder,
		timeout:   timeout,
		log:       log,
	}
}

type reservation struct {
	line     Line
	snapshot *db.Product
}

// ProcessSale validates the cart, reserves stock for every line and persists the
// transaction. Any failure leaves stock as it was and returns a *Error.
func (e *Engine) ProcessSale(ctx context.Context, cashier Cashier, cart []Line) (txn *db.Transaction, err error) {
	started := time.Now()
	defer func() {
		outcome := metrics.OutcomeCompleted
		if err != nil {
			outcome = KindOf(err).String()
		}
		e.metrics.SaleFinished(outcome, started)
	}()

	if err := validateCart(cart); err != nil {
		return nil, err
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	products, err := e.checkProducts(ctx, cashier, cart)
	if err != nil {
		return nil, err
	}

	reserved := make([]reservation, 0, len(cart))
	for i, line := range cart {
		snapshot, err := e.inventory.TryReserve(ctx, line.ProductID, line.Quantity)
		if err != nil {
			e.compensate(ctx, reserved)
			return nil, e.reservationError(line, products[i].Name, err)
		}
		reserved = append(reserved, reservation{line: line, snapshot: snapshot})
	}

	txn, err = buildTransaction(cashier, reserved)
	if err != nil {
		e.compensate(ctx, reserved)
		return nil, err
	}

	if _, err := e.ledger.SaveTransaction(ctx, txn); err != nil {
		e.log.Error("Failed to persist sale, restoring stock",
			zap.Uint("cashier_id", cashier.ID),
			zap.Int("lines", len(cart)),
			zap.Error(err),
		)
		e.compensate(ctx, reserved)
		return nil, &Error{Kind: KindPersistenceFailed, Err: err}
	}

	e.metrics.SaleCompleted(txn.ItemCount, txn.Total)
	e.announce(ctx, txn, reserved)

	e.log.Info("Sale completed",
		zap.Uint("transaction_id", txn.ID),
		zap.Uint("cashier_id", txn.CashierID),
		zap.Int64("item_count", txn.ItemCount),
		zap.Int64("total", txn.Total),
	)
	return txn, nil
}

func validateCart(cart []Line) error {
	if len(cart) == 0 {
		return &Error{Kind: KindInvalidQuantity}
	}
	for _, line := range cart {
		if line.Quantity <= 0 {
			return &Error{Kind: KindInvalidQuantity, ProductID: line.ProductID}
		}
	}
	return nil
}

// checkProducts resolves every line before any stock is touched
func (e *Engine) checkProducts(ctx context.Context, cashier Cashier, cart []Line) ([]*db.Product, error) {
	products := make([]*db.Product, len(cart))
	for i, line := range cart {
		product, err := e.catalog.GetProductByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, repo.ErrProductNotFound) {
				return nil, &Error{Kind: KindProductNotFound, ProductID: line.ProductID, Err: err}
			}
			return nil, &Error{Kind: KindPersistenceFailed, ProductID: line.ProductID, Err: err}
		}
		if product.OwnerID != cashier.OwnerID {
			e.log.Warn("Cashier requested another owner's product",
				zap.Uint("cashier_id", cashier.ID),
				zap.Uint("owner_id", cashier.OwnerID),
				zap.Uint("product_id", line.ProductID),
			)
			return nil, &Error{Kind: KindUnauthorized, ProductID: line.ProductID}
		}
		products[i] = product
	}
	return products, nil
}

func (e *Engine) reservationError(line Line, name string, err error) error {
	switch {
	case errors.Is(err, repo.ErrInsufficientStock):
		e.log.Info("Not enough stock for sale",
			zap.Uint("product_id", line.ProductID),
			zap.String("product_name", name),
			zap.Int64("requested", line.Quantity),
		)
		return &Error{Kind: KindInsufficientStock, ProductID: line.ProductID, ProductName: name, Err: err}
	case errors.Is(err, repo.ErrProductNotFound):
		return &Error{Kind: KindProductNotFound, ProductID: line.ProductID, Err: err}
	default:
		e.log.Error("Failed to reserve stock", zap.Uint("product_id", line.ProductID), zap.Error(err))
		return &Error{Kind: KindPersistenceFailed, ProductID: line.ProductID, Err: err}
	}
}

// compensate returns every reservation of this attempt. It runs even when the
// caller's context has already been canceled or has timed out.
func (e *Engine) compensate(ctx context.Context, reserved []reservation) {
	if len(reserved) == 0 {
		return
	}

	restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()

	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i].line
		err := e.inventory.Restore(restoreCtx, line.ProductID, line.Quantity)
		e.metrics.StockRestored(err)
		if err != nil {
			e.log.Error("Failed to restore reserved stock",
				zap.Uint("product_id", line.ProductID),
				zap.Int64("amount", line.Quantity),
				zap.Error(err),
			)
		}
	}
}

func buildTransaction(cashier Cashier, reserved []reservation) (*db.Transaction, error) {
	txn := &db.Transaction{
		CashierID: cashier.ID,
		OwnerID:   cashier.OwnerID,
		Timestamp: time.Now().UTC(),
		LineItems: make([]db.LineItem, 0, len(reserved)),
	}

	for i, r := range reserved {
		prices, err := pricing.ComputePrices(r.snapshot.UnitCost, r.snapshot.MarkupPercent, r.line.Quantity)
		if err != nil {
			return nil, &Error{Kind: KindInvalidInput, ProductID: r.line.ProductID, Err: err}
		}

		txn.LineItems = append(txn.LineItems, db.LineItem{
			Position:    i,
			ProductID:   r.line.ProductID,
			ProductName: r.snapshot.Name,
			Quantity:    r.line.Quantity,
			UnitPrice:   prices.UnitPrice,
			Subtotal:    prices.SubtotalPrice,
		})
		txn.ItemCount += r.line.Quantity
		txn.Total += prices.SubtotalPrice
	}

	return txn, nil
}

func (e *Engine) announce(ctx context.Context, txn *db.Transaction, reserved []reservation) {
	e.events.SaleCompleted(ctx, txn)

	// A product listed twice in one cart only needs its last snapshot.
	latest := make(map[uint]*db.Product, len(reserved))
	for _, r := range reserved {
		latest[r.snapshot.ID] = r.snapshot
	}
	for _, r := range reserved {
		snapshot, ok := latest[r.snapshot.ID]
		if !ok {
			continue
		}
		delete(latest, r.snapshot.ID)
		if snapshot.Quantity == 0 {
			e.events.StockDepleted(ctx, snapshot)
		}
	}
}
