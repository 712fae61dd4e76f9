package handler

import (
	"context"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	orderServiceName     = "storefront.OrderService"
	placeOrderFullMethod = "/" + orderServiceName + "/PlaceOrder"
	getOrderFullMethod   = "/" + orderServiceName + "/GetOrder"
)

type PlaceOrderRPCRequest struct {
	Total     decimal.Decimal   `json:"total"`
	Status    string            `json:"status"`
	LineItems []LineItemRequest `json:"line_items"`
}

type GetOrderRPCRequest struct {
	OrderID string `json:"order_id"`
}

// OrderServiceServer is the server API for storefront.OrderService.
type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRPCRequest) (*domain.Order, error)
	GetOrder(context.Context, *GetOrderRPCRequest) (*domain.Order, error)
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: placeOrderHandler},
		{MethodName: "GetOrder", Handler: getOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/order_service",
}

func placeOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PlaceOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).PlaceOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: placeOrderFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).PlaceOrder(ctx, req.(*PlaceOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRPCRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getOrderFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).GetOrder(ctx, req.(*GetOrderRPCRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// OrderServiceClient calls storefront.OrderService over the JSON codec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRPCRequest, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.cc.Invoke(ctx, placeOrderFullMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRPCRequest, opts ...grpc.CallOption) (*domain.Order, error) {
	out := new(domain.Order)
	if err := c.cc.Invoke(ctx, getOrderFullMethod, in, out, withJSON(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withJSON(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
}
