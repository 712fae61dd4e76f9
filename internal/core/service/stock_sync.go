package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const syncTimeout = 5 * time.Second

// StockSyncer copies committed inventory quantities into the stock cache.
// It runs after commit and never takes part in the order transaction.
type StockSyncer struct {
	inventory port.InventoryRepository
	cache     port.StockCache
	ttl       time.Duration
	logger    *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.InventoryKey
	wg     sync.WaitGroup
}

func NewStockSyncer(inventory port.InventoryRepository, cache port.StockCache, ttl time.Duration, queueSize int, logger *zap.Logger) *StockSyncer {
	return &StockSyncer{
		inventory: inventory,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
		queue:     make(chan domain.InventoryKey, queueSize),
	}
}

// Start launches the worker pool.
func (s *StockSyncer) Start(workers int) {
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go func(id int) {
			defer s.wg.Done()
			s.workerLoop(id)
		}(i)
	}
	s.logger.Info("started stock sync workers", zap.Int("workers", workers))
}

// Refresh queues keys for a cache refresh without blocking. Keys that do not
// fit in the queue are dropped; the cache TTL bounds how stale they get.
func (s *StockSyncer) Refresh(keys ...domain.InventoryKey) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	for _, key := range keys {
		select {
		case s.queue <- key:
		default:
			s.logger.Warn("stock sync queue full, dropping refresh", zap.Stringer("key", key))
		}
	}
}

// Close stops accepting keys, drains the queue and waits for the workers.
func (s *StockSyncer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *StockSyncer) workerLoop(id int) {
	for key := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)

		if err := s.Sync(ctx, key); err != nil {
			s.logger.Error("stock sync failed", zap.Int("worker", id), zap.Stringer("key", key), zap.Error(err))
		} else {
			s.logger.Debug("stock synced", zap.Int("worker", id), zap.Stringer("key", key))
		}

		cancel()
	}
}

// Sync copies the current quantity of key from the inventory store to the
// cache.
func (s *StockSyncer) Sync(ctx context.Context, key domain.InventoryKey) error {
	record, err := s.inventory.GetInventory(ctx, key)
	if err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	if record == nil {
		return nil
	}

	if err := s.cache.SetStock(ctx, *record, s.ttl); err != nil {
		return fmt.Errorf("write cache: %w", err)
	}
	return nil
}
