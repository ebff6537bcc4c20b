package sale

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/metrics"
	"github.com/warung/kasir/internal/repo"
	"github.com/warung/kasir/pkg/logger"
	"go.uber.org/zap"
)

// MockPublisher records announced events
type MockPublisher struct {
	mu        sync.Mutex
	completed []uint
	depleted  []uint
}

func (m *MockPublisher) SaleCompleted(ctx context.Context, txn *db.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, txn.ID)
}

func (m *MockPublisher) StockDepleted(ctx context.Context, product *db.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depleted = append(m.depleted, product.ID)
}

// countingInventory counts calls before delegating
type countingInventory struct {
	Inventory
	reserves int32
	restores int32
}

func (c *countingInventory) TryReserve(ctx context.Context, productID uint, amount int64) (*db.Product, error) {
	atomic.AddInt32(&c.reserves, 1)
	return c.Inventory.TryReserve(ctx, productID, amount)
}

func (c *countingInventory) Restore(ctx context.Context, productID uint, amount int64) error {
	atomic.AddInt32(&c.restores, 1)
	return c.Inventory.Restore(ctx, productID, amount)
}

type failingLedger struct{}

func (failingLedger) SaveTransaction(ctx context.Context, txn *db.Transaction) (uint, error) {
	return 0, errors.New("disk full")
}

// stallingLedger never answers before the caller gives up
type stallingLedger struct{}

func (stallingLedger) SaveTransaction(ctx context.Context, txn *db.Transaction) (uint, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type harness struct {
	engine       *Engine
	catalog      *repo.CatalogRepository
	inventory    *countingInventory
	transactions *repo.TransactionRepository
	publisher    *MockPublisher
	log          *zap.Logger
}

func setupHarness(t *testing.T) *harness {
	database, err := db.Connect(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database))

	log := logger.NewLogger("test", "info")
	h := &harness{
		catalog:      repo.NewCatalogRepository(database, log),
		inventory:    &countingInventory{Inventory: repo.NewInventoryRepository(database, log)},
		transactions: repo.NewTransactionRepository(database, log),
		publisher:    &MockPublisher{},
		log:          log,
	}
	h.engine = h.newEngine(h.transactions, 0)
	return h
}

func (h *harness) newEngine(ledger Ledger, timeout time.Duration) *Engine {
	recorder := metrics.NewRecorder(prometheus.NewRegistry())
	return NewEngine(h.catalog, h.inventory, ledger, h.publisher, recorder, timeout, h.log)
}

func (h *harness) product(t *testing.T, ownerID uint, name string, cost, markup, quantity int64) *db.Product {
	p := &db.Product{OwnerID: ownerID, Name: name, UnitCost: cost, MarkupPercent: markup, Quantity: quantity}
	require.NoError(t, h.catalog.CreateProduct(context.Background(), p))
	return p
}

func (h *harness) stored(t *testing.T, p *db.Product) db.Product {
	got, err := h.catalog.GetProductByID(context.Background(), p.ID)
	require.NoError(t, err)
	got.UpdatedAt = time.Time{}
	return *got
}

func (h *harness) transactionCount(t *testing.T, cashierID uint) int {
	txns, err := h.transactions.ListTransactions(context.Background(), testCashier.OwnerID, cashierID, 100)
	require.NoError(t, err)
	return len(txns)
}

var testCashier = Cashier{ID: 7, OwnerID: 1}

func TestSellReducesStockAndTotals(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Kopi Sachet", 3000, 20, 100)

	txn, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: product.ID, Quantity: 10}})
	require.NoError(t, err)

	assert.NotZero(t, txn.ID)
	assert.Equal(t, int64(36000), txn.Total)
	assert.Equal(t, int64(10), txn.ItemCount)
	assert.Equal(t, uint(7), txn.CashierID)
	require.Len(t, txn.LineItems, 1)
	assert.Equal(t, "Kopi Sachet", txn.LineItems[0].ProductName)
	assert.Equal(t, int64(3600), txn.LineItems[0].UnitPrice)
	assert.Equal(t, int64(36000), txn.LineItems[0].Subtotal)

	after := h.stored(t, product)
	assert.Equal(t, int64(90), after.Quantity)
	assert.Equal(t, int64(270000), after.SubtotalCost)
	assert.Equal(t, int64(324000), after.SubtotalPrice)

	assert.Equal(t, []uint{txn.ID}, h.publisher.completed)
	assert.Empty(t, h.publisher.depleted)
}

func TestSellMoreThanStock(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Gula Pasir", 14000, 10, 5)

	txn, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: product.ID, Quantity: 10}})
	assert.Nil(t, txn)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, KindOf(err))
	assert.Equal(t, MsgInsufficientStock, Message(err))

	var saleErr *Error
	require.ErrorAs(t, err, &saleErr)
	assert.Equal(t, product.ID, saleErr.ProductID)

	assert.Equal(t, int64(5), h.stored(t, product).Quantity)
	assert.Equal(t, 0, h.transactionCount(t, testCashier.ID))
}

func TestConcurrentSalesOfPopularProduct(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Popular Product", 1000, 10, 10)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seller := Cashier{ID: uint(100 + i), OwnerID: 1}
			_, results[i] = h.engine.ProcessSale(context.Background(), seller, []Line{{ProductID: product.ID, Quantity: 8}})
		}(i)
	}
	wg.Wait()

	var succeeded, insufficient int
	for _, err := range results {
		switch KindOf(err) {
		case KindUnknown:
			if err == nil {
				succeeded++
			}
		case KindInsufficientStock:
			insufficient++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, int64(2), h.stored(t, product).Quantity)
}

func TestSellExactRemainingStock(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Kecap Manis", 9000, 10, 5)
	other := h.product(t, 1, "Saus Sambal", 7000, 10, 3)

	_, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: product.ID, Quantity: 5}})
	require.NoError(t, err)

	assert.Equal(t, int64(0), h.stored(t, product).Quantity)

	inStock, err := h.catalog.ListInStock(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, inStock, 1)
	assert.Equal(t, other.ID, inStock[0].ID)

	assert.Equal(t, []uint{product.ID}, h.publisher.depleted)
}

func TestMultiLineFailureChangesNothing(t *testing.T) {
	h := setupHarness(t)
	first := h.product(t, 1, "Beras 5kg", 60000, 10, 10)
	second := h.product(t, 1, "Minyak Goreng", 14000, 15, 3)
	third := h.product(t, 1, "Telur", 2000, 10, 10)

	before := []db.Product{h.stored(t, first), h.stored(t, second), h.stored(t, third)}

	_, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{
		{ProductID: first.ID, Quantity: 5},
		{ProductID: second.ID, Quantity: 2},
		{ProductID: third.ID, Quantity: 20},
	})
	require.Error(t, err)
	assert.Equal(t, KindInsufficientStock, KindOf(err))

	var saleErr *Error
	require.ErrorAs(t, err, &saleErr)
	assert.Equal(t, third.ID, saleErr.ProductID)

	after := []db.Product{h.stored(t, first), h.stored(t, second), h.stored(t, third)}
	assert.Equal(t, before, after)
	assert.Equal(t, int32(3), h.inventory.reserves)
	assert.Equal(t, int32(2), h.inventory.restores)
	assert.Equal(t, 0, h.transactionCount(t, testCashier.ID))
	assert.Empty(t, h.publisher.completed)
}

func TestMultiLineSaleKeepsCartOrder(t *testing.T) {
	h := setupHarness(t)
	first := h.product(t, 1, "Sabun", 2500, 20, 10)
	second := h.product(t, 1, "Sampo", 12000, 25, 10)

	txn, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{
		{ProductID: second.ID, Quantity: 1},
		{ProductID: first.ID, Quantity: 3},
	})
	require.NoError(t, err)

	stored, err := h.transactions.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Len(t, stored.LineItems, 2)
	assert.Equal(t, second.ID, stored.LineItems[0].ProductID)
	assert.Equal(t, first.ID, stored.LineItems[1].ProductID)
	assert.Equal(t, int64(15000+9000), stored.Total)
	assert.Equal(t, int64(4), stored.ItemCount)
}

func TestInvalidQuantityTouchesNoStock(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Permen", 500, 100, 50)

	tests := []struct {
		name string
		cart []Line
	}{
		{"empty cart", nil},
		{"zero quantity", []Line{{ProductID: product.ID, Quantity: 0}}},
		{"negative quantity", []Line{{ProductID: product.ID, Quantity: -1}}},
		{"one bad line among good ones", []Line{{ProductID: product.ID, Quantity: 2}, {ProductID: product.ID, Quantity: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.ProcessSale(context.Background(), testCashier, tt.cart)
			assert.Equal(t, KindInvalidQuantity, KindOf(err))
			assert.Equal(t, MsgInvalidQuantity, Message(err))
		})
	}

	assert.Equal(t, int32(0), h.inventory.reserves)
	assert.Equal(t, int64(50), h.stored(t, product).Quantity)
}

func TestUnknownProduct(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Roti", 8000, 25, 5)

	_, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{
		{ProductID: product.ID, Quantity: 1},
		{ProductID: 9999, Quantity: 1},
	})
	assert.Equal(t, KindProductNotFound, KindOf(err))
	assert.Equal(t, int32(0), h.inventory.reserves)
	assert.Equal(t, int64(5), h.stored(t, product).Quantity)
}

func TestOtherOwnersProduct(t *testing.T) {
	h := setupHarness(t)
	foreign := h.product(t, 2, "Rokok", 25000, 8, 20)

	_, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: foreign.ID, Quantity: 1}})
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.Equal(t, MsgUnauthorized, Message(err))
	assert.Equal(t, int32(0), h.inventory.reserves)
	assert.Equal(t, int64(20), h.stored(t, foreign).Quantity)
}

func TestPersistenceFailureRestoresStock(t *testing.T) {
	h := setupHarness(t)
	first := h.product(t, 1, "Teh Botol", 4000, 25, 12)
	second := h.product(t, 1, "Aqua", 3000, 20, 6)
	before := []db.Product{h.stored(t, first), h.stored(t, second)}

	engine := h.newEngine(failingLedger{}, 0)
	_, err := engine.ProcessSale(context.Background(), testCashier, []Line{
		{ProductID: first.ID, Quantity: 2},
		{ProductID: second.ID, Quantity: 6},
	})
	assert.Equal(t, KindPersistenceFailed, KindOf(err))
	assert.Equal(t, MsgPersistenceFailed, Message(err))
	assert.NotContains(t, Message(err), "disk full")

	after := []db.Product{h.stored(t, first), h.stored(t, second)}
	assert.Equal(t, before, after)
	assert.Equal(t, int32(2), h.inventory.restores)
	assert.Empty(t, h.publisher.depleted)
}

func TestTimeoutBeforePersistRestoresStock(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Susu Kotak", 4000, 25, 10)

	engine := h.newEngine(stallingLedger{}, 50*time.Millisecond)
	_, err := engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: product.ID, Quantity: 4}})
	assert.Equal(t, KindPersistenceFailed, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, int64(10), h.stored(t, product).Quantity)
}

func TestLineItemSnapshotSurvivesCatalogEdit(t *testing.T) {
	h := setupHarness(t)
	product := h.product(t, 1, "Mie Instan", 2500, 20, 40)

	txn, err := h.engine.ProcessSale(context.Background(), testCashier, []Line{{ProductID: product.ID, Quantity: 4}})
	require.NoError(t, err)

	edit := h.stored(t, product)
	edit.Name = "Mie Instan Jumbo"
	edit.UnitCost = 4000
	_, err = h.catalog.UpdateProduct(context.Background(), &edit, []string{"name", "unit_cost"})
	require.NoError(t, err)

	stored, err := h.transactions.GetTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mie Instan", stored.LineItems[0].ProductName)
	assert.Equal(t, int64(3000), stored.LineItems[0].UnitPrice)
	assert.Equal(t, int64(12000), stored.Total)
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindInsufficientStock, ProductID: 3, ProductName: "Kopi", Err: repo.ErrInsufficientStock}
	assert.Equal(t, "insufficient_stock: product 3 (Kopi): insufficient stock", err.Error())
	assert.ErrorIs(t, err, repo.ErrInsufficientStock)

	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, MsgInternal, Message(errors.New("boom")))
	assert.Equal(t, MsgIncompleteInput, MessageFor(KindInvalidInput))
}
