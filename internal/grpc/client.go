package grpc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// Client calls the sale service of a remote kasir instance
type Client struct {
	conn *grpc.ClientConn
	log  *zap.Logger
}

// NewClient creates a sale service client for target. Extra dial options are
// appended after the defaults.
func NewClient(target string, log *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sale service client: %w", err)
	}

	log.Info("Sale service client created", zap.String("target", target))
	return &Client{conn: conn, log: log}, nil
}

// WithCorrelationID attaches a correlation id to outgoing calls made with ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "x-correlation-id", id)
}

// ProcessSale sells a cart
func (c *Client) ProcessSale(ctx context.Context, req *ProcessSaleRequest) (*ProcessSaleResponse, error) {
	resp := new(ProcessSaleResponse)
	if err := c.conn.Invoke(ctx, fullMethod("ProcessSale"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetReceipt fetches the receipt of a transaction
func (c *Client) GetReceipt(ctx context.Context, req *GetReceiptRequest) (*GetReceiptResponse, error) {
	resp := new(GetReceiptResponse)
	if err := c.conn.Invoke(ctx, fullMethod("GetReceipt"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListInStock lists the owner's products with stock left
func (c *Client) ListInStock(ctx context.Context, req *ListInStockRequest) (*ListInStockResponse, error) {
	resp := new(ListInStockResponse)
	if err := c.conn.Invoke(ctx, fullMethod("ListInStock"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckStock reads the quantity of one product
func (c *Client) CheckStock(ctx context.Context, req *CheckStockRequest) (*CheckStockResponse, error) {
	resp := new(CheckStockResponse)
	if err := c.conn.Invoke(ctx, fullMethod("CheckStock"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}
