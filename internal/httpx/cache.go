package httpx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/redisx"
)

// ListingCache is a cache-aside layer over listing reads. Listings are the
// hot, contended resource during checkout; singleflight collapses concurrent
// misses for the same listing into one store read.
type ListingCache struct {
	Redis *redis.Client
	Store market.Store
	group singleflight.Group
}

func NewListingCache(rdb *redis.Client, store market.Store) *ListingCache {
	return &ListingCache{Redis: rdb, Store: store}
}

func (c *ListingCache) Get(ctx context.Context, id string) (*market.Listing, error) {
	key := fmt.Sprintf(redisx.KeyListing, id)
	if s, err := c.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var l market.Listing
		if err := json.Unmarshal([]byte(s), &l); err == nil {
			return &l, nil
		}
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		l, err := c.Store.GetListing(ctx, id)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(l); err == nil {
			_ = c.Redis.Set(ctx, key, b, redisx.TTLListingCache).Err()
		}
		return l, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*market.Listing), nil
}

// Invalidate drops a listing's cache entry after any stock mutation so buyers
// never see stale remaining quantity longer than one round trip.
func (c *ListingCache) Invalidate(ctx context.Context, ids ...string) {
	for _, id := range ids {
		_ = c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyListing, id)).Err()
	}
}
