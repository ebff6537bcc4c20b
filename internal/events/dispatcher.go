package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/warung/kasir/internal/db"
	"go.uber.org/zap"
)

const (
	publishTimeout  = 10 * time.Second
	maxQueuedEvents = 1024
)

var errQueueFull = errors.New("event queue is full")

type job struct {
	eventType string
	run       func()
}

// Dispatcher publishes domain events in the background. Events wait in a
// bounded queue that one feeder drains into the worker pool; when the queue is
// full the event is dropped and the caller moves on.
type Dispatcher struct {
	sink    Sink
	pool    *ants.Pool
	queue   chan job
	done    chan struct{}
	onDrop  func(eventType string)
	timeout time.Duration
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a dispatcher running at most workers publishes at once
func NewDispatcher(sink Sink, workers int, log *zap.Logger) (*Dispatcher, error) {
	return newDispatcher(sink, workers, maxQueuedEvents, log)
}

func newDispatcher(sink Sink, workers, queueSize int, log *zap.Logger) (*Dispatcher, error) {
	pool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(p interface{}) {
			log.Error("Event worker panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		sink:    sink,
		pool:    pool,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
		onDrop:  func(string) {},
		timeout: publishTimeout,
		log:     log,
	}
	go d.feed()
	return d, nil
}

// OnDrop registers a callback invoked when an event cannot be queued
func (d *Dispatcher) OnDrop(fn func(eventType string)) {
	d.onDrop = fn
}

// SaleCompleted announces a persisted transaction
func (d *Dispatcher) SaleCompleted(ctx context.Context, txn *db.Transaction) {
	lines := make([]map[string]interface{}, len(txn.LineItems))
	for i, item := range txn.LineItems {
		lines[i] = map[string]interface{}{
			"product_id":   item.ProductID,
			"product_name": item.ProductName,
			"quantity":     item.Quantity,
			"unit_price":   item.UnitPrice,
			"subtotal":     item.Subtotal,
		}
	}

	d.dispatch(ctx, EventTypeSaleCompleted, map[string]interface{}{
		"transaction_id": txn.ID,
		"cashier_id":     txn.CashierID,
		"owner_id":       txn.OwnerID,
		"timestamp":      txn.Timestamp.UTC().Format(time.RFC3339),
		"item_count":     txn.ItemCount,
		"total":          txn.Total,
		"line_items":     lines,
	})
}

// StockDepleted announces that a product has no units left
func (d *Dispatcher) StockDepleted(ctx context.Context, product *db.Product) {
	d.dispatch(ctx, EventTypeInventoryDepleted, map[string]interface{}{
		"product_id": product.ID,
		"owner_id":   product.OwnerID,
		"name":       product.Name,
	})
}

// ProductCreated announces a new catalog entry
func (d *Dispatcher) ProductCreated(ctx context.Context, product *db.Product) {
	d.dispatch(ctx, EventTypeCatalogCreated, productPayload(product))
}

// ProductUpdated announces a catalog edit and the fields it touched
func (d *Dispatcher) ProductUpdated(ctx context.Context, product *db.Product, fieldsChanged []string) {
	payload := productPayload(product)
	payload["fields_changed"] = fieldsChanged
	d.dispatch(ctx, EventTypeCatalogUpdated, payload)
}

// IsHealthy reports the health of the underlying sink
func (d *Dispatcher) IsHealthy() bool {
	return d.sink.IsHealthy()
}

// Close stops accepting events, waits for queued ones to drain, then closes the sink
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	select {
	case <-d.done:
	case <-time.After(timeout):
		d.log.Warn("Event queue did not drain before shutdown", zap.Int("pending", len(d.queue)))
	}

	if err := d.pool.ReleaseTimeout(time.Until(deadline)); err != nil {
		d.log.Warn("Event workers did not finish before shutdown", zap.Error(err))
	}
	return d.sink.Close()
}

// feed hands queued events to the pool, blocking only itself while every worker is busy
func (d *Dispatcher) feed() {
	defer close(d.done)
	for j := range d.queue {
		if err := d.pool.Submit(j.run); err != nil {
			d.drop(j.eventType, err)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, eventType string, payload map[string]interface{}) {
	correlationID := CorrelationID(ctx)

	j := job{eventType: eventType, run: func() {
		eventCtx, cancel := context.WithTimeout(WithCorrelationID(context.Background(), correlationID), d.timeout)
		defer cancel()

		if err := d.sink.Publish(eventCtx, eventType, payload); err != nil {
			d.log.Error("Failed to publish event",
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		}
	}}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(eventType, ants.ErrPoolClosed)
		return
	}

	select {
	case d.queue <- j:
	default:
		d.drop(eventType, errQueueFull)
	}
}

func (d *Dispatcher) drop(eventType string, err error) {
	d.onDrop(eventType)
	d.log.Warn("Event dropped", zap.String("event_type", eventType), zap.Error(err))
}

func productPayload(product *db.Product) map[string]interface{} {
	return map[string]interface{}{
		"product_id":     product.ID,
		"owner_id":       product.OwnerID,
		"name":           product.Name,
		"unit_cost":      product.UnitCost,
		"markup_percent": product.MarkupPercent,
		"unit_price":     product.UnitPrice,
		"quantity":       product.Quantity,
	}
}
