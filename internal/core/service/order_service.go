package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// StockRefresher is notified of inventory keys whose committed quantity
// changed.
type StockRefresher interface {
	Refresh(keys ...domain.InventoryKey)
}

// Totals are stored as DECIMAL(10,2).
const totalScale = 2

var maxTotal = decimal.New(1, 8)

type OrderOptions struct {
	// VerifyTotal recomputes the order total from catalog prices and
	// rejects requests whose total does not match.
	VerifyTotal bool
	// Timeout bounds the order transaction. Zero means the request context
	// alone decides.
	Timeout time.Duration
}

type PlaceOrderRequest struct {
	UserID string
	Total  decimal.Decimal
	Status domain.OrderStatus
	Items  []domain.LineRequest
}

type OrderService struct {
	orders    port.OrderRepository
	catalog   port.CatalogRepository
	carts     port.CartRepository
	refresher StockRefresher
	logger    *zap.Logger
	opts      OrderOptions
	now       func() time.Time
}

func NewOrderService(
	orders port.OrderRepository,
	catalog port.CatalogRepository,
	carts port.CartRepository,
	refresher StockRefresher,
	logger *zap.Logger,
	opts OrderOptions,
) *OrderService {
	return &OrderService{
		orders:    orders,
		catalog:   catalog,
		carts:     carts,
		refresher: refresher,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// PlaceOrder creates the order, its line items and the inventory decrements
// in a single transaction. The returned order is committed with status
// placed; on error nothing was written.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if req.UserID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := validatePlaceOrder(req); err != nil {
		s.logger.Warn("rejected order request", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	if s.opts.VerifyTotal {
		if err := s.verifyTotal(ctx, req); err != nil {
			s.logger.Warn("order total rejected", zap.String("user_id", req.UserID), zap.Error(err))
			return nil, err
		}
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	now := s.now().UTC()
	order := &domain.Order{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Total:     req.Total,
		Status:    domain.OrderStatusPending,
		Items:     make([]domain.OrderLineItem, 0, len(req.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, line := range req.Items {
		order.Items = append(order.Items, domain.OrderLineItem{
			ID:       uuid.NewString(),
			OrderID:  order.ID,
			ItemID:   line.ItemID,
			SizeID:   line.SizeID,
			Quantity: line.Quantity,
		})
	}

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		err = asDomainError("create order", err)
		switch domain.KindOf(err) {
		case domain.KindInsufficientStock, domain.KindNotFound:
			s.logger.Warn("order rejected", zap.String("order_id", order.ID), zap.String("user_id", order.UserID), zap.Error(err))
		default:
			s.logger.Error("order transaction failed", zap.String("order_id", order.ID), zap.String("user_id", order.UserID), zap.Error(err))
		}
		return nil, err
	}

	if s.refresher != nil {
		demand := domain.StockDemand(order.Items)
		keys := make([]domain.InventoryKey, 0, len(demand))
		for _, d := range demand {
			keys = append(keys, d.InventoryKey)
		}
		s.refresher.Refresh(keys...)
	}

	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("user_id", order.UserID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("lines", len(order.Items)),
	)
	return order, nil
}

// Checkout places an order for the contents of the user's cart and empties
// the cart once the order is committed.
func (s *OrderService) Checkout(ctx context.Context, userID string, total decimal.Decimal, status domain.OrderStatus) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	lines, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return nil, asDomainError("load cart", err)
	}
	if len(lines) == 0 {
		return nil, domain.Invalid("cart is empty")
	}

	items := make([]domain.LineRequest, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.LineRequest{ItemID: l.ItemID, SizeID: l.SizeID, Quantity: l.Quantity})
	}

	order, err := s.PlaceOrder(ctx, PlaceOrderRequest{
		UserID: userID,
		Total:  total,
		Status: status,
		Items:  items,
	})
	if err != nil {
		return nil, err
	}

	// The order is committed at this point; a client disconnect must not
	// leave the cart behind.
	if err := s.carts.ClearCart(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.Error("failed to clear cart after checkout",
			zap.String("user_id", userID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if orderID == "" {
		return nil, domain.Invalid("order id is required")
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, asDomainError("get order", err)
	}
	if order == nil || order.UserID != userID {
		return nil, domain.NotFound("order %s not found", orderID)
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	orders, err := s.orders.ListOrdersByUser(ctx, userID)
	if err != nil {
		return nil, asDomainError("list orders", err)
	}
	return orders, nil
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return domain.Invalid("order has no line items")
	}
	for i, line := range req.Items {
		if line.ItemID <= 0 || line.SizeID <= 0 {
			return domain.Invalid("line %d: item_id and size_id are required", i)
		}
		if line.Quantity <= 0 {
			return domain.Invalid("line %d: quantity must be positive", i)
		}
	}

	switch req.Status {
	case "", domain.OrderStatusPending, domain.OrderStatusPlaced:
	default:
		return domain.Invalid("status %q cannot be requested", req.Status)
	}

	if req.Total.IsNegative() {
		return domain.Invalid("total must not be negative")
	}
	if !req.Total.Equal(req.Total.Round(totalScale)) {
		return domain.Invalid("total must have at most %d decimal places", totalScale)
	}
	if req.Total.GreaterThanOrEqual(maxTotal) {
		return domain.Invalid("total must be below %s", maxTotal.String())
	}
	return nil
}

func (s *OrderService) verifyTotal(ctx context.Context, req PlaceOrderRequest) error {
	ids := make([]int64, 0, len(req.Items))
	seen := make(map[int64]bool, len(req.Items))
	for _, line := range req.Items {
		if !seen[line.ItemID] {
			seen[line.ItemID] = true
			ids = append(ids, line.ItemID)
		}
	}

	prices, err := s.catalog.ItemPrices(ctx, ids)
	if err != nil {
		return asDomainError("load prices", err)
	}

	expected := decimal.Zero
	for _, line := range req.Items {
		price, ok := prices[line.ItemID]
		if !ok {
			return &domain.Error{Kind: domain.KindNotFound, Message: "unknown item", ItemID: line.ItemID, SizeID: line.SizeID}
		}
		expected = expected.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if !req.Total.Equal(expected) {
		return domain.Invalid("total %s does not match item prices (%s)", req.Total.StringFixed(2), expected.StringFixed(2))
	}
	return nil
}

// asDomainError keeps classified errors and reports everything else as a
// storage failure.
func asDomainError(op string, err error) error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}
	return domain.Storage(op, err)
}
