package grpc

import (
	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/receipt"
)

// SaleLine is one cart line on the wire
type SaleLine struct {
	ProductID uint  `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// ProcessSaleRequest sells a cart on behalf of a cashier
type ProcessSaleRequest struct {
	CashierID uint       `json:"cashier_id"`
	OwnerID   uint       `json:"owner_id"`
	Lines     []SaleLine `json:"lines"`
}

// ProcessSaleResponse carries the receipt of the completed sale
type ProcessSaleResponse struct {
	Receipt *receipt.View `json:"receipt"`
}

// GetReceiptRequest asks for the receipt of one transaction
type GetReceiptRequest struct {
	TransactionID uint `json:"transaction_id"`
	OwnerID       uint `json:"owner_id"`
}

// GetReceiptResponse carries a receipt
type GetReceiptResponse struct {
	Receipt *receipt.View `json:"receipt"`
}

// ListInStockRequest asks for an owner's sellable products
type ListInStockRequest struct {
	OwnerID uint `json:"owner_id"`
}

// ListInStockResponse lists products with stock left
type ListInStockResponse struct {
	Products []*Product `json:"products"`
}

// CheckStockRequest asks for the current quantity of one product
type CheckStockRequest struct {
	ProductID uint `json:"product_id"`
	OwnerID   uint `json:"owner_id"`
}

// CheckStockResponse reports a quantity for display
type CheckStockResponse struct {
	ProductID uint  `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// Product is the catalog entry as shown at the till
type Product struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	Quantity      int64  `json:"quantity"`
	SubtotalPrice int64  `json:"subtotal_price"`
}

func productToWire(p *db.Product) *Product {
	return &Product{
		ID:            p.ID,
		Name:          p.Name,
		UnitPrice:     p.UnitPrice,
		Quantity:      p.Quantity,
		SubtotalPrice: p.SubtotalPrice,
	}
}
