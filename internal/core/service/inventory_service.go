package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type InventoryService struct {
	inventory port.InventoryRepository
	cache     port.StockCache
	refresher StockRefresher
	ttl       time.Duration
	logger    *zap.Logger
}

func NewInventoryService(inventory port.InventoryRepository, cache port.StockCache, refresher StockRefresher, ttl time.Duration, logger *zap.Logger) *InventoryService {
	return &InventoryService{
		inventory: inventory,
		cache:     cache,
		refresher: refresher,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetStock returns the available quantity of an (item, size), reading
// through the stock cache.
func (s *InventoryService) GetStock(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	if key.ItemID <= 0 || key.SizeID <= 0 {
		return nil, domain.Invalid("item_id and size_id are required")
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetStock(ctx, key)
		if err != nil {
			s.logger.Warn("stock cache read failed", zap.Stringer("key", key), zap.Error(err))
		} else if ok {
			return &cached, nil
		}
	}

	record, err := s.inventory.GetInventory(ctx, key)
	if err != nil {
		return nil, asDomainError("get inventory", err)
	}
	if record == nil {
		return nil, domain.StockNotFound(key)
	}

	if s.cache != nil {
		if err := s.cache.SetStock(ctx, *record, s.ttl); err != nil {
			s.logger.Warn("stock cache write failed", zap.Stringer("key", key), zap.Error(err))
		}
	}
	return record, nil
}

// AddStock increments the stock of an (item, size). Only admins may add
// stock.
func (s *InventoryService) AddStock(ctx context.Context, principal domain.Principal, key domain.InventoryKey, quantity int) (*domain.InventoryRecord, error) {
	if principal.UserID == "" || !principal.IsAdmin() {
		return nil, domain.ErrUnauthenticated
	}
	if key.ItemID <= 0 || key.SizeID <= 0 {
		return nil, domain.Invalid("item_id and size_id are required")
	}
	if quantity <= 0 {
		return nil, domain.Invalid("quantity must be positive")
	}

	record, err := s.inventory.AddStock(ctx, key, quantity)
	if err != nil {
		err = asDomainError("add stock", err)
		s.logger.Error("add stock failed", zap.Stringer("key", key), zap.Int("quantity", quantity), zap.Error(err))
		return nil, err
	}

	if s.refresher != nil {
		s.refresher.Refresh(key)
	}

	s.logger.Info("stock added",
		zap.String("admin", principal.UserID),
		zap.Stringer("key", key),
		zap.Int("added", quantity),
		zap.Int("quantity", record.Quantity),
	)
	return record, nil
}
