package db

import (
	"errors"
	"time"

	"github.com/warung/kasir/internal/pricing"
	"gorm.io/gorm"
)

// ErrTransactionImmutable is returned when something tries to update a persisted transaction
var ErrTransactionImmutable = errors.New("transaction is immutable")

// Product is a catalog entry owned by one shop owner. UnitPrice, SubtotalCost and
// SubtotalPrice are derived from UnitCost, MarkupPercent and Quantity and are
// rewritten by every statement that changes those inputs.
type Product struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID       uint      `gorm:"not null;index:idx_products_owner" json:"owner_id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	UnitCost      int64     `gorm:"not null;check:chk_products_unit_cost,unit_cost >= 0" json:"unit_cost"`
	MarkupPercent int64     `gorm:"not null;default:0;check:chk_products_markup,markup_percent >= 0" json:"markup_percent"`
	Quantity      int64     `gorm:"not null;default:0;check:chk_products_quantity,quantity >= 0" json:"quantity"`
	UnitPrice     int64     `gorm:"not null" json:"unit_price"`
	SubtotalCost  int64     `gorm:"not null" json:"subtotal_cost"`
	SubtotalPrice int64     `gorm:"not null" json:"subtotal_price"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// TableName specifies the table name for Product model
func (Product) TableName() string {
	return "products"
}

// Recompute refreshes the derived price fields from cost, markup and quantity
func (p *Product) Recompute() error {
	prices, err := pricing.ComputeHoldings(p.UnitCost, p.MarkupPercent, p.Quantity)
	if err != nil {
		return err
	}
	p.UnitPrice = prices.UnitPrice
	p.SubtotalCost = prices.SubtotalCost
	p.SubtotalPrice = prices.SubtotalPrice
	return nil
}

// BeforeCreate hook to set timestamps and derived prices
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	return p.Recompute()
}

// Cashier is a person operating the till on behalf of an owner
type Cashier struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint      `gorm:"not null;index:idx_cashiers_owner" json:"owner_id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName specifies the table name for Cashier model
func (Cashier) TableName() string {
	return "cashiers"
}

// Transaction is a completed sale. Rows are only ever inserted.
type Transaction struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CashierID uint       `gorm:"not null;index:idx_transactions_cashier" json:"cashier_id"`
	OwnerID   uint       `gorm:"not null;index:idx_transactions_owner" json:"owner_id"`
	Timestamp time.Time  `gorm:"column:sold_at;not null" json:"timestamp"`
	ItemCount int64      `gorm:"not null" json:"item_count"`
	Total     int64      `gorm:"not null" json:"total"`
	LineItems []LineItem `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE" json:"line_items"`
}

// TableName specifies the table name for Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate hook to stamp the sale time
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	return nil
}

// BeforeUpdate rejects any in-place edit
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

// LineItem is one cart line of a Transaction with name and price captured at sale time
type LineItem struct {
	ID            uint   `gorm:"primaryKey;autoIncrement" json:"-"`
	TransactionID uint   `gorm:"not null;uniqueIndex:idx_line_items_position" json:"-"`
	Position      int    `gorm:"not null;uniqueIndex:idx_line_items_position" json:"position"`
	ProductID     uint   `gorm:"not null;index:idx_line_items_product" json:"product_id"`
	ProductName   string `gorm:"type:varchar(255);not null" json:"product_name"`
	Quantity      int64  `gorm:"not null" json:"quantity"`
	UnitPrice     int64  `gorm:"not null" json:"unit_price"`
	Subtotal      int64  `gorm:"not null" json:"subtotal"`
}

// TableName specifies the table name for LineItem model
func (LineItem) TableName() string {
	return "transaction_line_items"
}

// BeforeUpdate rejects any in-place edit
func (l *LineItem) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}
