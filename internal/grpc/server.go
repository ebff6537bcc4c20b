package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/warung/kasir/internal/events"
	"github.com/warung/kasir/internal/receipt"
	"github.com/warung/kasir/internal/repo"
	"github.com/warung/kasir/internal/sale"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// SaleServer implements the SaleService gRPC service
type SaleServer struct {
	engine    *sale.Engine
	receipts  *receipt.Projector
	catalog   *repo.CatalogRepository
	inventory *repo.InventoryRepository
	log       *zap.Logger
}

// NewSaleServer creates a new sale gRPC server
func NewSaleServer(engine *sale.Engine, receipts *receipt.Projector, catalog *repo.CatalogRepository, inventory *repo.InventoryRepository, log *zap.Logger) *SaleServer {
	return &SaleServer{
		engine:    engine,
		receipts:  receipts,
		catalog:   catalog,
		inventory: inventory,
		log:       log,
	}
}

// ProcessSale sells a cart and returns its receipt
func (s *SaleServer) ProcessSale(ctx context.Context, req *ProcessSaleRequest) (*ProcessSaleResponse, error) {
	if req.CashierID == 0 || req.OwnerID == 0 {
		return nil, status.Error(codes.InvalidArgument, "cashier_id and owner_id are required")
	}

	cart := make([]sale.Line, len(req.Lines))
	for i, line := range req.Lines {
		cart[i] = sale.Line{ProductID: line.ProductID, Quantity: line.Quantity}
	}

	txn, err := s.engine.ProcessSale(ctx, sale.Cashier{ID: req.CashierID, OwnerID: req.OwnerID}, cart)
	if err != nil {
		return nil, saleStatus(err)
	}

	// The sale is committed; a failed lookup must not look like a failed sale.
	view, err := s.receipts.Project(ctx, txn.ID)
	if err != nil {
		s.log.Warn("Failed to project receipt for completed sale",
			zap.Uint("transaction_id", txn.ID),
			zap.Error(err),
		)
		view = receipt.FromTransaction(txn, "")
	}

	return &ProcessSaleResponse{Receipt: view}, nil
}

// GetReceipt returns the receipt of a transaction belonging to the owner
func (s *SaleServer) GetReceipt(ctx context.Context, req *GetReceiptRequest) (*GetReceiptResponse, error) {
	if req.TransactionID == 0 || req.OwnerID == 0 {
		return nil, status.Error(codes.InvalidArgument, "transaction_id and owner_id are required")
	}

	view, err := s.receipts.Project(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, receipt.ErrNotFound) {
			return nil, status.Error(codes.NotFound, sale.MsgTransactionNotFound)
		}
		s.log.Error("Failed to get receipt", zap.Uint("transaction_id", req.TransactionID), zap.Error(err))
		return nil, status.Error(codes.Internal, sale.MsgInternal)
	}
	if view.OwnerID != req.OwnerID {
		return nil, status.Error(codes.NotFound, sale.MsgTransactionNotFound)
	}

	return &GetReceiptResponse{Receipt: view}, nil
}

// ListInStock returns the owner's products that can still be sold
func (s *SaleServer) ListInStock(ctx context.Context, req *ListInStockRequest) (*ListInStockResponse, error) {
	if req.OwnerID == 0 {
		return nil, status.Error(codes.InvalidArgument, "owner_id is required")
	}

	products, err := s.catalog.ListInStock(ctx, req.OwnerID)
	if err != nil {
		return nil, status.Error(codes.Internal, sale.MsgInternal)
	}

	resp := &ListInStockResponse{Products: make([]*Product, len(products))}
	for i, p := range products {
		resp.Products[i] = productToWire(p)
	}
	return resp, nil
}

// CheckStock reports the current quantity of one of the owner's products
func (s *SaleServer) CheckStock(ctx context.Context, req *CheckStockRequest) (*CheckStockResponse, error) {
	if req.ProductID == 0 || req.OwnerID == 0 {
		return nil, status.Error(codes.InvalidArgument, "product_id and owner_id are required")
	}

	if _, err := s.catalog.GetProduct(ctx, req.ProductID, req.OwnerID); err != nil {
		if errors.Is(err, repo.ErrProductNotFound) {
			return nil, status.Error(codes.NotFound, sale.MsgProductNotFound)
		}
		return nil, status.Error(codes.Internal, sale.MsgInternal)
	}

	quantity, err := s.inventory.Read(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, repo.ErrProductNotFound) {
			return nil, status.Error(codes.NotFound, sale.MsgProductNotFound)
		}
		return nil, status.Error(codes.Internal, sale.MsgInternal)
	}

	return &CheckStockResponse{ProductID: req.ProductID, Quantity: quantity}, nil
}

// saleStatus maps a sale failure to a status carrying only the cashier-facing message
func saleStatus(err error) error {
	msg := sale.Message(err)
	switch sale.KindOf(err) {
	case sale.KindInvalidInput, sale.KindInvalidQuantity:
		return status.Error(codes.InvalidArgument, msg)
	case sale.KindProductNotFound:
		return status.Error(codes.NotFound, msg)
	case sale.KindUnauthorized:
		return status.Error(codes.PermissionDenied, msg)
	case sale.KindInsufficientStock:
		return status.Error(codes.FailedPrecondition, msg)
	case sale.KindPersistenceFailed:
		return status.Error(codes.Unavailable, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}

// LoggingInterceptor logs all gRPC requests and tags the context with the
// caller's correlation id
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get("x-correlation-id"); len(ids) > 0 {
				ctx = events.WithCorrelationID(ctx, ids[0])
			}
		}

		resp, err := handler(ctx, req)

		if err != nil {
			log.Warn("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
		} else {
			log.Info("gRPC request completed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", time.Since(start)),
			)
		}

		return resp, err
	}
}
