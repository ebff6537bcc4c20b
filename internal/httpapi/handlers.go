package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/receipt"
	"github.com/warung/kasir/internal/repo"
	"github.com/warung/kasir/internal/sale"
	"go.uber.org/zap"
)

// CatalogEvents announces catalog changes
type CatalogEvents interface {
	ProductCreated(ctx context.Context, product *db.Product)
	ProductUpdated(ctx context.Context, product *db.Product, fieldsChanged []string)
}

// Handler serves the cashier-facing REST API
type Handler struct {
	engine       *sale.Engine
	receipts     *receipt.Projector
	catalog      *repo.CatalogRepository
	inventory    *repo.InventoryRepository
	transactions *repo.TransactionRepository
	cashiers     *repo.CashierRepository
	events       CatalogEvents
	log          *zap.Logger
}

// NewHandler creates the REST handler set
func NewHandler(engine *sale.Engine, receipts *receipt.Projector, catalog *repo.CatalogRepository, inventory *repo.InventoryRepository, transactions *repo.TransactionRepository, cashiers *repo.CashierRepository, events CatalogEvents, log *zap.Logger) *Handler {
	return &Handler{
		engine:       engine,
		receipts:     receipts,
		catalog:      catalog,
		inventory:    inventory,
		transactions: transactions,
		cashiers:     cashiers,
		events:       events,
		log:          log,
	}
}

type saleRequest struct {
	Lines []sale.Line `json:"lines"`
}

type cashierRequest struct {
	Name string `json:"name"`
}

type cashierResponse struct {
	ID      uint   `json:"id"`
	OwnerID uint   `json:"owner_id"`
	Name    string `json:"name"`
}

type productRequest struct {
	Name          string `json:"name"`
	UnitCost      int64  `json:"unit_cost"`
	MarkupPercent int64  `json:"markup_percent"`
	Quantity      int64  `json:"quantity"`
}

type productPatch struct {
	Name          *string `json:"name"`
	UnitCost      *int64  `json:"unit_cost"`
	MarkupPercent *int64  `json:"markup_percent"`
	Quantity      *int64  `json:"quantity"`
}

type productResponse struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	UnitCost      int64  `json:"unit_cost"`
	MarkupPercent int64  `json:"markup_percent"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int64  `json:"quantity"`
	SubtotalCost  int64  `json:"subtotal_cost"`
	SubtotalPrice int64  `json:"subtotal_price"`
}

type transactionSummary struct {
	ID        uint   `json:"id"`
	CashierID uint   `json:"cashier_id"`
	Timestamp string `json:"timestamp"`
	ItemCount int64  `json:"item_count"`
	Total     int64  `json:"total"`
}

func toProductResponse(p *db.Product) productResponse {
	return productResponse{
		ID:            p.ID,
		Name:          p.Name,
		UnitCost:      p.UnitCost,
		MarkupPercent: p.MarkupPercent,
		UnitPrice:     p.UnitPrice,
		Quantity:      p.Quantity,
		SubtotalCost:  p.SubtotalCost,
		SubtotalPrice: p.SubtotalPrice,
	}
}

// ProcessSale sells the posted cart and answers with its receipt
func (h *Handler) ProcessSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		return
	}

	cashier := sale.Cashier{ID: cashierFrom(c), OwnerID: ownerFrom(c)}
	txn, err := h.engine.ProcessSale(c.Request.Context(), cashier, req.Lines)
	if err != nil {
		writeSaleError(c, err)
		return
	}

	view, err := h.receipts.Project(c.Request.Context(), txn.ID)
	if err != nil {
		h.log.Warn("Failed to project receipt for completed sale",
			zap.Uint("transaction_id", txn.ID),
			zap.Error(err),
		)
		view = receipt.FromTransaction(txn, "")
	}

	c.JSON(http.StatusCreated, view)
}

// GetReceipt returns one of the owner's receipts
func (h *Handler) GetReceipt(c *gin.Context) {
	id, err := cast.ToUintE(c.Param("id"))
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction id"})
		return
	}

	view, err := h.receipts.Project(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": sale.MsgTransactionNotFound})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}
	if view.OwnerID != ownerFrom(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": sale.MsgTransactionNotFound})
		return
	}

	c.JSON(http.StatusOK, view)
}

// ListTransactions returns the calling cashier's recent transactions
func (h *Handler) ListTransactions(c *gin.Context) {
	limit := cast.ToInt(c.Query("limit"))

	txns, err := h.transactions.ListTransactions(c.Request.Context(), ownerFrom(c), cashierFrom(c), limit)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	out := make([]transactionSummary, 0, len(txns))
	for _, txn := range txns {
		out = append(out, transactionSummary{
			ID:        txn.ID,
			CashierID: txn.CashierID,
			Timestamp: txn.Timestamp.UTC().Format(time.RFC3339),
			ItemCount: txn.ItemCount,
			Total:     txn.Total,
		})
	}

	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

// CreateCashier registers a cashier under the calling owner so receipts can name them
func (h *Handler) CreateCashier(c *gin.Context) {
	var req cashierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		return
	}

	cashier := &db.Cashier{OwnerID: ownerFrom(c), Name: req.Name}
	if err := h.cashiers.CreateCashier(c.Request.Context(), cashier); err != nil {
		if errors.Is(err, repo.ErrIncompleteCashier) {
			c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	c.JSON(http.StatusCreated, cashierResponse{ID: cashier.ID, OwnerID: cashier.OwnerID, Name: cashier.Name})
}

// ListProducts returns the owner's sellable products, or every product with ?all=true
func (h *Handler) ListProducts(c *gin.Context) {
	ownerID := ownerFrom(c)

	var (
		products []*db.Product
		err      error
	)
	if cast.ToBool(c.Query("all")) {
		products, err = h.catalog.ListProducts(c.Request.Context(), ownerID)
	} else {
		products, err = h.catalog.ListInStock(c.Request.Context(), ownerID)
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	c.JSON(http.StatusOK, gin.H{"products": out})
}

// CreateProduct adds a product to the owner's catalog
func (h *Handler) CreateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		return
	}

	product := &db.Product{
		OwnerID:       ownerFrom(c),
		Name:          req.Name,
		UnitCost:      req.UnitCost,
		MarkupPercent: req.MarkupPercent,
		Quantity:      req.Quantity,
	}
	if err := h.catalog.CreateProduct(c.Request.Context(), product); err != nil {
		if errors.Is(err, repo.ErrIncompleteProduct) {
			c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	h.events.ProductCreated(c.Request.Context(), product)
	c.JSON(http.StatusCreated, toProductResponse(product))
}

// UpdateProduct edits the fields present in the body
func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := cast.ToUintE(c.Param("id"))
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	var patch productPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		return
	}

	product := &db.Product{ID: id, OwnerID: ownerFrom(c)}
	var mask []string
	if patch.Name != nil {
		product.Name = *patch.Name
		mask = append(mask, "name")
	}
	if patch.UnitCost != nil {
		product.UnitCost = *patch.UnitCost
		mask = append(mask, "unit_cost")
	}
	if patch.MarkupPercent != nil {
		product.MarkupPercent = *patch.MarkupPercent
		mask = append(mask, "markup_percent")
	}
	if patch.Quantity != nil {
		product.Quantity = *patch.Quantity
		mask = append(mask, "quantity")
	}
	if len(mask) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		return
	}

	ctx := c.Request.Context()
	changed, err := h.catalog.UpdateProduct(ctx, product, mask)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": sale.MsgProductNotFound})
		case errors.Is(err, repo.ErrIncompleteProduct):
			c.JSON(http.StatusBadRequest, gin.H{"error": sale.MsgIncompleteInput})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		}
		return
	}

	updated, err := h.catalog.GetProduct(ctx, id, product.OwnerID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	if len(changed) > 0 {
		h.events.ProductUpdated(ctx, updated, changed)
	}
	c.JSON(http.StatusOK, gin.H{
		"product":        toProductResponse(updated),
		"fields_changed": changed,
	})
}

// GetStock reports the live quantity of one of the owner's products
func (h *Handler) GetStock(c *gin.Context) {
	id, err := cast.ToUintE(c.Param("id"))
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.catalog.GetProduct(ctx, id, ownerFrom(c)); err != nil {
		if errors.Is(err, repo.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": sale.MsgProductNotFound})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	quantity, err := h.inventory.Read(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": sale.MsgProductNotFound})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": sale.MsgInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{"product_id": id, "quantity": quantity})
}

// writeSaleError answers with the cashier-facing message only
func writeSaleError(c *gin.Context, err error) {
	body := gin.H{"error": sale.Message(err)}

	var saleErr *sale.Error
	if errors.As(err, &saleErr) && saleErr.ProductID != 0 {
		body["product_id"] = saleErr.ProductID
	}

	code := http.StatusInternalServerError
	switch sale.KindOf(err) {
	case sale.KindInvalidInput, sale.KindInvalidQuantity:
		code = http.StatusBadRequest
	case sale.KindProductNotFound:
		code = http.StatusNotFound
	case sale.KindUnauthorized:
		code = http.StatusForbidden
	case sale.KindInsufficientStock:
		code = http.StatusConflict
	case sale.KindPersistenceFailed:
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}

	c.JSON(code, body)
}
