package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/warung/kasir/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCashierNotFound is returned when a cashier id is unknown
	ErrCashierNotFound = errors.New("cashier not found")

	// ErrIncompleteCashier is returned when a cashier has no owner or name
	ErrIncompleteCashier = errors.New("cashier data is incomplete")
)

// CashierRepository resolves cashier records
type CashierRepository struct {
	db  *db.DB
	log *zap.Logger
}

// NewCashierRepository creates a new cashier repository
func NewCashierRepository(database *db.DB, logger *zap.Logger) *CashierRepository {
	return &CashierRepository{
		db:  database,
		log: logger,
	}
}

// CreateCashier registers a cashier under an owner
func (r *CashierRepository) CreateCashier(ctx context.Context, cashier *db.Cashier) error {
	cashier.Name = strings.TrimSpace(cashier.Name)
	if cashier.OwnerID == 0 || cashier.Name == "" {
		return ErrIncompleteCashier
	}
	if cashier.CreatedAt.IsZero() {
		cashier.CreatedAt = time.Now()
	}

	if err := r.db.WithContext(ctx).Create(cashier).Error; err != nil {
		r.log.Error("Failed to create cashier", zap.Error(err))
		return err
	}
	return nil
}

// GetCashier retrieves a cashier by id
func (r *CashierRepository) GetCashier(ctx context.Context, id uint) (*db.Cashier, error) {
	var cashier db.Cashier
	err := r.db.WithContext(ctx).First(&cashier, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCashierNotFound
		}
		r.log.Error("Failed to get cashier", zap.Uint("cashier_id", id), zap.Error(err))
		return nil, err
	}

	return &cashier, nil
}

// CashierName returns the display name of a cashier
func (r *CashierRepository) CashierName(ctx context.Context, id uint) (string, error) {
	cashier, err := r.GetCashier(ctx, id)
	if err != nil {
		return "", err
	}
	return cashier.Name, nil
}
