package market

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCollected = "OrderCollected"
	EventOrderCancelled = "OrderCancelled"
	EventListingSoldOut = "ListingSoldOut"
	EventListingRestock = "ListingRestocked"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// ---- payloads per event ----

type ItemQty struct {
	ListingID string `json:"listing_id"`
	Qty       int    `json:"qty"`
}

// The pickup code is a shared secret between buyer and vendor; it never
// travels on the event bus.
type OrderCreatedPayload struct {
	OrderID    string    `json:"order_id"`
	BuyerID    string    `json:"buyer_id"`
	VendorID   string    `json:"vendor_id"`
	Items      []ItemQty `json:"items"`
	TotalCents int       `json:"total_cents"`
}

type OrderPlacedPayload struct {
	OrderID     string `json:"order_id"`
	PaymentRef  string `json:"payment_ref"`
	AmountCents int    `json:"amount_cents"`
}

type OrderCollectedPayload struct {
	OrderID  string `json:"order_id"`
	VendorID string `json:"vendor_id"`
	// "code" for a typed pickup code, "qr" for a scanned order id
	Channel string `json:"channel"`
}

type OrderCancelledPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"` // e.g. RESERVATION_EXPIRED
}

type ListingSoldOutPayload struct {
	ListingID string `json:"listing_id"`
	VendorID  string `json:"vendor_id"`
}

type ListingRestockPayload struct {
	ListingID string `json:"listing_id"`
	Added     int    `json:"added"`
	Remaining int    `json:"remaining"`
}
