package redisx

import "time"

const (
	// Cached listing JSON: listing:{listing_id}
	KeyListing = "listing:%s"

	// Cached order status: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	// Listings deplete under contention, keep the cache short-lived.
	TTLListingCache = 15 * time.Second
	TTLStatusCache  = 5 * time.Minute
	TTLDedup        = 48 * time.Hour
)
