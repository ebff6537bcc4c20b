package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "kasir.v1.SaleService"

// SaleServiceServer is the server API for the sale service
type SaleServiceServer interface {
	ProcessSale(context.Context, *ProcessSaleRequest) (*ProcessSaleResponse, error)
	GetReceipt(context.Context, *GetReceiptRequest) (*GetReceiptResponse, error)
	ListInStock(context.Context, *ListInStockRequest) (*ListInStockResponse, error)
	CheckStock(context.Context, *CheckStockRequest) (*CheckStockResponse, error)
}

// RegisterSaleService registers the sale service with the gRPC server
func RegisterSaleService(s grpc.ServiceRegistrar, srv SaleServiceServer) {
	s.RegisterService(&saleServiceDesc, srv)
}

var saleServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SaleServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessSale", Handler: unaryHandler("ProcessSale", SaleServiceServer.ProcessSale)},
		{MethodName: "GetReceipt", Handler: unaryHandler("GetReceipt", SaleServiceServer.GetReceipt)},
		{MethodName: "ListInStock", Handler: unaryHandler("ListInStock", SaleServiceServer.ListInStock)},
		{MethodName: "CheckStock", Handler: unaryHandler("CheckStock", SaleServiceServer.CheckStock)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kasir/v1/sale",
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unaryHandler adapts a typed service method to grpc.MethodDesc
func unaryHandler[Req any, Resp any](method string, call func(SaleServiceServer, context.Context, *Req) (*Resp, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SaleServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SaleServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
