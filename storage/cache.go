package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"workshop-board/domain"
)

type backend interface {
	ListItems(ctx context.Context, kind domain.Kind) ([]domain.Item, error)
	SetState(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error)
	ListCandidateItems(ctx context.Context, priorServiceRef string) ([]domain.CandidateItem, error)
	CreateZeroCostWorkOrder(ctx context.Context, warrantyID string, verdict domain.Verdict) (*domain.Item, error)
}

// Cache wraps a Storage instance with Redis-backed caching for board bulk
// loads. Writes evict the affected board so the next load is authoritative.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListItems(ctx context.Context, kind domain.Kind) ([]domain.Item, error) {
	if items, ok := c.loadFromCache(ctx, kind); ok {
		return items, nil
	}

	items, err := c.base.ListItems(ctx, kind)
	if err != nil {
		return nil, err
	}

	c.store(ctx, kind, items)
	return items, nil
}

func (c *Cache) SetState(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error) {
	item, err := c.base.SetState(ctx, kind, id, to, verdict)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, kind)
	return item, nil
}

func (c *Cache) ListCandidateItems(ctx context.Context, priorServiceRef string) ([]domain.CandidateItem, error) {
	return c.base.ListCandidateItems(ctx, priorServiceRef)
}

func (c *Cache) CreateZeroCostWorkOrder(ctx context.Context, warrantyID string, verdict domain.Verdict) (*domain.Item, error) {
	order, err := c.base.CreateZeroCostWorkOrder(ctx, warrantyID, verdict)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, domain.KindWorkOrder)
	return order, nil
}

func (c *Cache) loadFromCache(ctx context.Context, kind domain.Kind) ([]domain.Item, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(kind)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(kind)).Err()
		}
		return nil, false
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(kind)).Err()
		return nil, false
	}
	return items, true
}

func (c *Cache) store(ctx context.Context, kind domain.Kind, items []domain.Item) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(kind), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, kind domain.Kind) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(kind)).Result()
}

func boardCacheKey(kind domain.Kind) string {
	return "board:" + string(kind)
}
