package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/warung/kasir/internal/db"
	"github.com/warung/kasir/internal/pricing"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrProductNotFound is returned when a product does not exist for the caller
	ErrProductNotFound = errors.New("product not found")

	// ErrIncompleteProduct is returned when catalog input is missing a required value
	ErrIncompleteProduct = errors.New("product data is incomplete")
)

// CatalogRepository handles product catalog operations
type CatalogRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger) *CatalogRepository {
	return &CatalogRepository{
		db:  database,
		log: logger,
	}
}

// CreateProduct validates and stores a new product with its derived prices
func (r *CatalogRepository) CreateProduct(ctx context.Context, product *db.Product) error {
	product.Name = strings.TrimSpace(product.Name)
	if err := validateForCreate(product); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		r.log.Error("Failed to create product", zap.String("name", product.Name), zap.Error(err))
		return err
	}

	r.log.Info("Product created",
		zap.Uint("product_id", product.ID),
		zap.Uint("owner_id", product.OwnerID),
		zap.String("name", product.Name),
	)
	return nil
}

// GetProduct retrieves a product by id within one owner's catalog
func (r *CatalogRepository) GetProduct(ctx context.Context, id, ownerID uint) (*db.Product, error) {
	var product db.Product
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		r.log.Error("Failed to get product", zap.Uint("product_id", id), zap.Error(err))
		return nil, err
	}

	return &product, nil
}

// GetProductByID retrieves a product regardless of owner so callers can tell a
// missing product from one that belongs to somebody else
func (r *CatalogRepository) GetProductByID(ctx context.Context, id uint) (*db.Product, error) {
	var product db.Product
	err := r.db.WithContext(ctx).First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		r.log.Error("Failed to get product", zap.Uint("product_id", id), zap.Error(err))
		return nil, err
	}

	return &product, nil
}

// ListInStock returns the owner's products that still have stock, ordered by name
func (r *CatalogRepository) ListInStock(ctx context.Context, ownerID uint) ([]*db.Product, error) {
	var products []*db.Product
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND quantity > 0", ownerID).
		Order("name ASC, id ASC").
		Find(&products).Error
	if err != nil {
		r.log.Error("Failed to list in-stock products", zap.Uint("owner_id", ownerID), zap.Error(err))
		return nil, err
	}

	return products, nil
}

// ListProducts returns every product of the owner, including sold out ones
func (r *CatalogRepository) ListProducts(ctx context.Context, ownerID uint) ([]*db.Product, error) {
	var products []*db.Product
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name ASC, id ASC").
		Find(&products).Error
	if err != nil {
		r.log.Error("Failed to list products", zap.Uint("owner_id", ownerID), zap.Error(err))
		return nil, err
	}

	return products, nil
}

// UpdateProduct applies the fields named in updateMask (all editable fields when
// empty) and rewrites the derived prices in the same statement. It returns the
// fields that actually changed.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, product *db.Product, updateMask []string) ([]string, error) {
	existing, err := r.GetProduct(ctx, product.ID, product.OwnerID)
	if err != nil {
		return nil, err
	}

	product.Name = strings.TrimSpace(product.Name)
	fieldsChanged := r.getChangedFields(existing, product, updateMask)
	if len(fieldsChanged) == 0 {
		r.log.Info("No fields changed", zap.Uint("product_id", product.ID))
		return fieldsChanged, nil
	}

	merged := *existing
	updates := make(map[string]interface{})
	for _, field := range fieldsChanged {
		switch field {
		case "name":
			merged.Name = product.Name
			updates["name"] = product.Name
		case "unit_cost":
			merged.UnitCost = product.UnitCost
			updates["unit_cost"] = product.UnitCost
		case "markup_percent":
			merged.MarkupPercent = product.MarkupPercent
			updates["markup_percent"] = product.MarkupPercent
		case "quantity":
			merged.Quantity = product.Quantity
			updates["quantity"] = product.Quantity
		}
	}

	if err := validateForUpdate(&merged); err != nil {
		return nil, err
	}

	unitPrice, err := pricing.UnitPrice(merged.UnitCost, merged.MarkupPercent)
	if err != nil {
		return nil, ErrIncompleteProduct
	}
	updates["unit_price"] = unitPrice
	if _, ok := updates["quantity"]; ok {
		updates["subtotal_cost"] = merged.Quantity * merged.UnitCost
		updates["subtotal_price"] = merged.Quantity * unitPrice
	} else {
		// Quantity may be moving under concurrent sales; derive from the row.
		updates["subtotal_cost"] = gorm.Expr("quantity * ?", merged.UnitCost)
		updates["subtotal_price"] = gorm.Expr("quantity * ?", unitPrice)
	}
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&db.Product{}).
		Where("id = ? AND owner_id = ?", product.ID, product.OwnerID).
		UpdateColumns(updates)
	if result.Error != nil {
		r.log.Error("Failed to update product", zap.Uint("product_id", product.ID), zap.Error(result.Error))
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrProductNotFound
	}

	r.log.Info("Product updated", zap.Uint("product_id", product.ID), zap.Strings("fields_changed", fieldsChanged))
	return fieldsChanged, nil
}

// getChangedFields compares old and new product and returns list of changed fields
func (r *CatalogRepository) getChangedFields(old, new *db.Product, updateMask []string) []string {
	var changed []string

	checkFields := updateMask
	if len(checkFields) == 0 {
		checkFields = []string{"name", "unit_cost", "markup_percent", "quantity"}
	}

	for _, field := range checkFields {
		switch field {
		case "name":
			if old.Name != new.Name {
				changed = append(changed, "name")
			}
		case "unit_cost":
			if old.UnitCost != new.UnitCost {
				changed = append(changed, "unit_cost")
			}
		case "markup_percent":
			if old.MarkupPercent != new.MarkupPercent {
				changed = append(changed, "markup_percent")
			}
		case "quantity":
			if old.Quantity != new.Quantity {
				changed = append(changed, "quantity")
			}
		}
	}

	return changed
}

func validateForCreate(p *db.Product) error {
	if p.OwnerID == 0 || p.Name == "" || p.UnitCost <= 0 || p.Quantity <= 0 || p.MarkupPercent < 0 {
		return ErrIncompleteProduct
	}
	return nil
}

// Edits may take stock down to zero but not below.
func validateForUpdate(p *db.Product) error {
	if p.Name == "" || p.UnitCost <= 0 || p.Quantity < 0 || p.MarkupPercent < 0 {
		return ErrIncompleteProduct
	}
	return nil
}
