package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/storefront/internal/core/domain"
)

const (
	stockKeyPrefix = "stock:"
	cartKeyPrefix  = "cart:"
)

// setStockScript writes a stock snapshot unless the cached one carries a
// newer version.
var setStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = ARGV[1]
local version = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])
local updated_at = ARGV[4]

local current = redis.call('HGET', key, 'version')
if current and tonumber(current) > version then
	return 0
end

redis.call('HSET', key, 'quantity', quantity, 'version', version, 'updated_at', updated_at)
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func stockKey(key domain.InventoryKey) string {
	return stockKeyPrefix + key.String()
}

func cartKey(userID string) string {
	return cartKeyPrefix + userID
}

func (r *RedisAdapter) GetStock(ctx context.Context, key domain.InventoryKey) (domain.InventoryRecord, bool, error) {
	fields, err := r.client.HGetAll(ctx, stockKey(key)).Result()
	if err != nil {
		return domain.InventoryRecord{}, false, err
	}
	if len(fields) == 0 {
		return domain.InventoryRecord{}, false, nil
	}

	record, err := parseStockFields(key, fields)
	if err != nil {
		return domain.InventoryRecord{}, false, err
	}
	return record, true, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, record domain.InventoryRecord, ttl time.Duration) error {
	return setStockScript.Run(ctx, r.client, []string{stockKey(record.Key())},
		record.Quantity, record.Version, ttl.Milliseconds(), record.UpdatedAt.UnixNano(),
	).Err()
}

func (r *RedisAdapter) GetCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	fields, err := r.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	lines := make([]domain.CartLine, 0, len(fields))
	for field, value := range fields {
		key, err := parseCartField(field)
		if err != nil {
			return nil, err
		}
		qty, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("cart field %s: %w", field, err)
		}
		lines = append(lines, domain.CartLine{ItemID: key.ItemID, SizeID: key.SizeID, Quantity: qty})
	}

	sort.Slice(lines, func(i, j int) bool {
		return lines[i].Key().Less(lines[j].Key())
	})
	return lines, nil
}

func (r *RedisAdapter) SetCartLine(ctx context.Context, userID string, line domain.CartLine) error {
	field := line.Key().String()
	if line.Quantity == 0 {
		return r.client.HDel(ctx, cartKey(userID), field).Err()
	}
	return r.client.HSet(ctx, cartKey(userID), field, line.Quantity).Err()
}

func (r *RedisAdapter) ClearCart(ctx context.Context, userID string) error {
	return r.client.Del(ctx, cartKey(userID)).Err()
}

func parseStockFields(key domain.InventoryKey, fields map[string]string) (domain.InventoryRecord, error) {
	record := domain.InventoryRecord{ItemID: key.ItemID, SizeID: key.SizeID}

	qty, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return record, fmt.Errorf("stock %s quantity: %w", key, err)
	}
	record.Quantity = qty

	if v, ok := fields["version"]; ok {
		if record.Version, err = strconv.Atoi(v); err != nil {
			return record, fmt.Errorf("stock %s version: %w", key, err)
		}
	}
	if v, ok := fields["updated_at"]; ok {
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return record, fmt.Errorf("stock %s updated_at: %w", key, err)
		}
		record.UpdatedAt = time.Unix(0, nanos).UTC()
	}
	return record, nil
}

func parseCartField(field string) (domain.InventoryKey, error) {
	itemPart, sizePart, ok := strings.Cut(field, ":")
	if !ok {
		return domain.InventoryKey{}, fmt.Errorf("malformed cart field %q", field)
	}
	itemID, err := strconv.ParseInt(itemPart, 10, 64)
	if err != nil {
		return domain.InventoryKey{}, fmt.Errorf("malformed cart field %q: %w", field, err)
	}
	sizeID, err := strconv.ParseInt(sizePart, 10, 64)
	if err != nil {
		return domain.InventoryKey{}, fmt.Errorf("malformed cart field %q: %w", field, err)
	}
	return domain.InventoryKey{ItemID: itemID, SizeID: sizeID}, nil
}
