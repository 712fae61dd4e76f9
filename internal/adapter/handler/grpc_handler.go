package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

type GRPCHandler struct {
	orderService *service.OrderService
	identity     port.IdentityProvider
	logger       *zap.Logger
}

func NewGRPCHandler(orderService *service.OrderService, identity port.IdentityProvider, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, identity: identity, logger: logger}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRPCRequest) (*domain.Order, error) {
	principal, err := h.authenticate(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	order, err := h.orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID: principal.UserID,
		Total:  req.Total,
		Status: domain.OrderStatus(req.Status),
		Items:  toLineRequests(req.LineItems),
	})
	if err != nil {
		return nil, toStatus(err)
	}
	return order, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRPCRequest) (*domain.Order, error) {
	principal, err := h.authenticate(ctx)
	if err != nil {
		return nil, toStatus(err)
	}

	order, err := h.orderService.GetOrder(ctx, principal.UserID, req.OrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	return order, nil
}

func (h *GRPCHandler) authenticate(ctx context.Context) (domain.Principal, error) {
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			token = bearerToken(values[0])
		}
	}
	principal, err := h.identity.Resolve(ctx, token)
	if err != nil {
		h.logger.Debug("rejected gRPC call", zap.Error(err))
		return domain.Principal{}, err
	}
	return principal, nil
}

func toStatus(err error) error {
	kind := domain.KindOf(err)
	msg := err.Error()
	if kind == domain.KindStorage {
		msg = "internal error"
	}
	return status.Error(grpcCode(kind), msg)
}

func grpcCode(kind domain.Kind) codes.Code {
	switch kind {
	case domain.KindUnauthenticated:
		return codes.Unauthenticated
	case domain.KindInvalidRequest:
		return codes.InvalidArgument
	case domain.KindNotFound:
		return codes.NotFound
	case domain.KindInsufficientStock:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
