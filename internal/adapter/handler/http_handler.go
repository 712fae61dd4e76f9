package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/port"
)

const principalKey = "principal"

type HTTPHandler struct {
	orderService     *service.OrderService
	inventoryService *service.InventoryService
	cartService      *service.CartService
	identity         port.IdentityProvider
	logger           *zap.Logger
}

type LineItemRequest struct {
	ItemID   int64 `json:"item_id"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

// PlaceOrderHTTPRequest accepts either a list of line items or a single
// line given inline through item_id, size_id and quantity.
type PlaceOrderHTTPRequest struct {
	Total     decimal.Decimal   `json:"total"`
	Status    string            `json:"status"`
	LineItems []LineItemRequest `json:"line_items"`
	ItemID    int64             `json:"item_id"`
	SizeID    int64             `json:"size_id"`
	Quantity  int               `json:"quantity"`
}

func (r PlaceOrderHTTPRequest) lines() []domain.LineRequest {
	if len(r.LineItems) == 0 {
		if r.ItemID == 0 && r.SizeID == 0 && r.Quantity == 0 {
			return nil
		}
		return []domain.LineRequest{{ItemID: r.ItemID, SizeID: r.SizeID, Quantity: r.Quantity}}
	}
	return toLineRequests(r.LineItems)
}

type CheckoutHTTPRequest struct {
	Total  decimal.Decimal `json:"total"`
	Status string          `json:"status"`
}

type AddStockHTTPRequest struct {
	ItemID   int64 `json:"item_id"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ItemID    int64  `json:"item_id,omitempty"`
	SizeID    int64  `json:"size_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func NewHTTPHandler(
	orderService *service.OrderService,
	inventoryService *service.InventoryService,
	cartService *service.CartService,
	identity port.IdentityProvider,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		orderService:     orderService,
		inventoryService: inventoryService,
		cartService:      cartService,
		identity:         identity,
		logger:           logger,
	}
}

// Register mounts every route on r.
func (h *HTTPHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/inventory/:item_id/:size_id", h.GetStock)

	authed := r.Group("/", h.Authenticate)
	authed.POST("/orders", h.PlaceOrder)
	authed.GET("/orders", h.ListOrders)
	authed.GET("/orders/:id", h.GetOrder)
	authed.POST("/checkout", h.Checkout)
	authed.GET("/cart", h.GetCart)
	authed.PUT("/cart", h.SetCartLine)
	authed.POST("/inventory", h.AddStock)
}

// Authenticate resolves the bearer token and stores the caller's principal
// on the request.
func (h *HTTPHandler) Authenticate(c *gin.Context) {
	principal, err := h.identity.Resolve(c.Request.Context(), bearerToken(c.GetHeader("Authorization")))
	if err != nil {
		h.writeError(c, err)
		c.Abort()
		return
	}
	c.Set(principalKey, principal)
	c.Next()
}

func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.Invalid("invalid request body"))
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), service.PlaceOrderRequest{
		UserID: principalFrom(c).UserID,
		Total:  req.Total,
		Status: domain.OrderStatus(req.Status),
		Items:  req.lines(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) Checkout(c *gin.Context) {
	var req CheckoutHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.Invalid("invalid request body"))
		return
	}

	order, err := h.orderService.Checkout(c.Request.Context(), principalFrom(c).UserID, req.Total, domain.OrderStatus(req.Status))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, orders)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.orderService.GetOrder(c.Request.Context(), principalFrom(c).UserID, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	lines, err := h.cartService.GetCart(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": lines})
}

func (h *HTTPHandler) SetCartLine(c *gin.Context) {
	var line domain.CartLine
	if err := c.ShouldBindJSON(&line); err != nil {
		h.writeError(c, domain.Invalid("invalid request body"))
		return
	}

	if err := h.cartService.SetCartLine(c.Request.Context(), principalFrom(c).UserID, line); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, line)
}

func (h *HTTPHandler) GetStock(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("item_id"), 10, 64)
	if err != nil {
		h.writeError(c, domain.Invalid("item_id must be an integer"))
		return
	}
	sizeID, err := strconv.ParseInt(c.Param("size_id"), 10, 64)
	if err != nil {
		h.writeError(c, domain.Invalid("size_id must be an integer"))
		return
	}

	record, err := h.inventoryService.GetStock(c.Request.Context(), domain.InventoryKey{ItemID: itemID, SizeID: sizeID})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *HTTPHandler) AddStock(c *gin.Context) {
	var req AddStockHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.Invalid("invalid request body"))
		return
	}

	record, err := h.inventoryService.AddStock(c.Request.Context(), principalFrom(c),
		domain.InventoryKey{ItemID: req.ItemID, SizeID: req.SizeID}, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	kind := domain.KindOf(err)
	resp := ErrorResponse{Error: string(kind), Message: err.Error()}

	var derr *domain.Error
	if errors.As(err, &derr) {
		resp.ItemID = derr.ItemID
		resp.SizeID = derr.SizeID
		if kind == domain.KindInsufficientStock {
			resp.Requested = derr.Requested
			available := derr.Available
			resp.Available = &available
		}
	}
	if kind == domain.KindStorage {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		resp.Message = "internal error"
	}

	c.JSON(httpStatus(kind), resp)
}

func httpStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	case domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func principalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func toLineRequests(items []LineItemRequest) []domain.LineRequest {
	lines := make([]domain.LineRequest, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.LineRequest{ItemID: item.ItemID, SizeID: item.SizeID, Quantity: item.Quantity})
	}
	return lines
}
