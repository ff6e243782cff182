package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store. It backs the workflow tests and local dev;
// a single mutex plays the role of the database transaction.
type MemStore struct {
	mu       sync.RWMutex
	listings map[string]Listing
	orders   map[string]Order
	carts    map[string][]CartEntry // buyer id -> entries
	usedRefs map[string]string      // payment ref -> order id
	now      func() time.Time
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		listings: make(map[string]Listing),
		orders:   make(map[string]Order),
		carts:    make(map[string][]CartEntry),
		usedRefs: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemStore) CreateListing(ctx context.Context, l *Listing) error {
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.DiscountedCents > l.OriginalCents {
		return fmt.Errorf("discounted price above original price")
	}
	if !l.PickupEnd.After(l.PickupStart) {
		return fmt.Errorf("pickup window must end after it starts")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Remaining == 0 {
		l.Remaining = l.Quantity
	}
	l.Status = deriveStatus(l.Remaining)
	l.CreatedAt = m.now()
	l.UpdatedAt = l.CreatedAt
	m.listings[l.ID] = *l
	return nil
}

func (m *MemStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := l
	return &cp, nil
}

func (m *MemStore) ListActiveListings(ctx context.Context) ([]Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Listing, 0)
	for _, l := range m.listings {
		if l.Status == ListingActive {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *MemStore) Restock(ctx context.Context, listingID string, qty int) (*Listing, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[listingID]
	if !ok {
		return nil, ErrListingNotFound
	}
	l.Remaining += qty
	if l.Remaining > l.Quantity {
		l.Quantity = l.Remaining
	}
	l.Status = deriveStatus(l.Remaining)
	l.UpdatedAt = m.now()
	m.listings[listingID] = l
	cp := l
	return &cp, nil
}

// CreateOrder reserves stock for every item or changes nothing at all.
func (m *MemStore) CreateOrder(ctx context.Context, buyerID, vendorID string, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidQuantity
	}
	for _, it := range items {
		if it.Qty < 1 {
			return nil, ErrInvalidQuantity
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	// check phase: no mutation until every line is satisfiable
	total := 0
	needed := make(map[string]int) // per listing, across duplicate lines
	lines := make([]OrderItem, 0, len(items))
	for _, it := range items {
		l, ok := m.listings[it.ListingID]
		if !ok || l.VendorID != vendorID {
			return nil, ErrListingNotFound
		}
		if l.Status != ListingActive {
			return nil, ErrListingSoldOut
		}
		needed[it.ListingID] += it.Qty
		if l.Remaining < needed[it.ListingID] {
			return nil, ErrInsufficientStock
		}
		total += l.DiscountedCents * it.Qty
		lines = append(lines, OrderItem{
			ListingID:  l.ID,
			Title:      l.Title,
			Qty:        it.Qty,
			PriceCents: l.DiscountedCents,
		})
	}

	// reserve phase
	for _, it := range items {
		l := m.listings[it.ListingID]
		l.Remaining -= it.Qty
		l.Status = deriveStatus(l.Remaining)
		l.UpdatedAt = m.now()
		m.listings[it.ListingID] = l
	}

	code, err := m.freshPickupCode(vendorID)
	if err != nil {
		return nil, err
	}
	o := Order{
		ID:         uuid.NewString(),
		BuyerID:    buyerID,
		VendorID:   vendorID,
		Items:      lines,
		TotalCents: total,
		Status:     StatusReserved,
		PickupCode: code,
		CreatedAt:  m.now(),
	}
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	cp := o
	return &cp, nil
}

// freshPickupCode draws codes until one is unused among the vendor's
// currently-active orders. Caller holds the lock.
func (m *MemStore) freshPickupCode(vendorID string) (string, error) {
	active := make(map[string]bool)
	for _, o := range m.orders {
		if o.VendorID == vendorID && (o.Status == StatusReserved || o.Status == StatusPlaced) {
			active[o.PickupCode] = true
		}
	}
	for attempt := 0; attempt < 100; attempt++ {
		code, err := NewPickupCode()
		if err != nil {
			return "", err
		}
		if !active[code] {
			return code, nil
		}
	}
	return "", fmt.Errorf("pickup code space exhausted for vendor %s", vendorID)
}

func (m *MemStore) ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*Order, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("missing payment reference")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if usedBy, used := m.usedRefs[paymentRef]; used && usedBy != orderID {
		return nil, ErrPaymentRefUsed
	}
	switch o.Status {
	case StatusReserved:
	case StatusPlaced:
		return nil, ErrAlreadyConfirmed
	default:
		return nil, ErrNotConfirmable
	}
	o.Status = StatusPlaced
	o.PaymentRef = paymentRef
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	m.usedRefs[paymentRef] = orderID
	cp := o
	return &cp, nil
}

func (m *MemStore) Collect(ctx context.Context, vendorID, ref string, via CollectChannel) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *Order
	for id, o := range m.orders {
		if o.VendorID != vendorID {
			continue
		}
		match := false
		switch via {
		case CollectByPickupCode:
			match = o.PickupCode == ref
		case CollectByQR:
			match = id == ref
		}
		if match {
			cp := o
			found = &cp
			break
		}
	}
	if found == nil {
		return nil, ErrCodeNotFound
	}
	switch found.Status {
	case StatusPlaced:
	case StatusCollected:
		return nil, ErrAlreadyCollected
	default:
		return nil, ErrNotCollectable
	}
	found.Status = StatusCollected
	found.UpdatedAt = m.now()
	m.orders[found.ID] = *found
	return found, nil
}

func (m *MemStore) CancelOrder(ctx context.Context, orderID, reason string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelLocked(orderID)
}

// cancelLocked does reserved -> cancelled and restores stock. Caller holds the lock.
func (m *MemStore) cancelLocked(orderID string) (*Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, fmt.Errorf("cannot cancel order in status %q", o.Status)
	}
	for _, it := range o.Items {
		l, ok := m.listings[it.ListingID]
		if !ok {
			continue
		}
		l.Remaining += it.Qty
		l.Status = deriveStatus(l.Remaining)
		l.UpdatedAt = m.now()
		m.listings[it.ListingID] = l
	}
	o.Status = StatusCancelled
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	cp := o
	return &cp, nil
}

func (m *MemStore) ExpireStaleReservations(ctx context.Context, olderThan time.Duration) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-olderThan)
	var expired []Order
	for id, o := range m.orders {
		if o.Status == StatusReserved && o.CreatedAt.Before(cutoff) {
			cancelled, err := m.cancelLocked(id)
			if err != nil {
				return expired, err
			}
			expired = append(expired, *cancelled)
		}
	}
	return expired, nil
}

func (m *MemStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := o
	return &cp, nil
}

func (m *MemStore) OrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	sortOrdersNewestFirst(out)
	return out, nil
}

func (m *MemStore) OrdersByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Order, 0)
	for _, o := range m.orders {
		if o.VendorID == vendorID {
			out = append(out, o)
		}
	}
	sortOrdersNewestFirst(out)
	return out, nil
}

func (m *MemStore) AddCartEntry(ctx context.Context, buyerID, listingID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[listingID]; !ok {
		return ErrListingNotFound
	}
	entries := m.carts[buyerID]
	for i, e := range entries {
		if e.ListingID == listingID {
			entries[i].Qty = qty
			entries[i].AddedAt = m.now()
			return nil
		}
	}
	m.carts[buyerID] = append(entries, CartEntry{
		BuyerID:   buyerID,
		ListingID: listingID,
		Qty:       qty,
		AddedAt:   m.now(),
	})
	return nil
}

func (m *MemStore) CartForBuyer(ctx context.Context, buyerID string) ([]CartEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.carts[buyerID]
	out := make([]CartEntry, len(entries))
	copy(out, entries)
	return out, nil
}
