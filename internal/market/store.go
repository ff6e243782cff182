package market

import (
	"context"
	"time"
)

// CollectChannel identifies which verification channel resolved an order.
type CollectChannel string

const (
	CollectByPickupCode CollectChannel = "code"
	CollectByQR         CollectChannel = "qr"
)

// Store is the authoritative order/listing state. The backend is the sole
// arbiter of inventory: callers never decrement stock locally and never assume
// a mutation succeeded until they see the response.
//
// Implementations: MemStore (in-memory, tests and local dev) and PGStore
// (Postgres).
type Store interface {
	CreateListing(ctx context.Context, l *Listing) error
	GetListing(ctx context.Context, id string) (*Listing, error)
	ListActiveListings(ctx context.Context) ([]Listing, error)
	// Restock is the only operation that increases Remaining.
	Restock(ctx context.Context, listingID string, qty int) (*Listing, error)

	// CreateOrder atomically checks and decrements stock for every item,
	// computes the total from stored prices and creates the order in
	// "reserved" with a fresh pickup code. On ErrInsufficientStock nothing
	// is changed.
	CreateOrder(ctx context.Context, buyerID, vendorID string, items []ItemInput) (*Order, error)
	// ConfirmPayment moves reserved -> placed. Reject-duplicate discipline:
	// confirming an already-placed order fails with ErrAlreadyConfirmed and
	// a payment ref may confirm at most one order (ErrPaymentRefUsed).
	ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*Order, error)
	// Collect moves placed -> collected exactly once. ref is a pickup code
	// or an order id depending on the channel. A second attempt for the
	// same order fails with ErrAlreadyCollected, never a silent success.
	Collect(ctx context.Context, vendorID, ref string, via CollectChannel) (*Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*Order, error)
	// ExpireStaleReservations cancels reserved orders older than olderThan
	// and restores their stock. Covers buyers who vanish mid-payment.
	ExpireStaleReservations(ctx context.Context, olderThan time.Duration) ([]Order, error)

	GetOrder(ctx context.Context, orderID string) (*Order, error)
	OrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	OrdersByVendor(ctx context.Context, vendorID string) ([]Order, error)

	AddCartEntry(ctx context.Context, buyerID, listingID string, qty int) error
	CartForBuyer(ctx context.Context, buyerID string) ([]CartEntry, error)
}
