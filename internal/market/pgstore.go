package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. Reservation takes per-listing row
// locks (FOR UPDATE) so concurrent buyers cannot over-commit stock; a partial
// failure rolls the whole order back.
type PGStore struct{ DB *pgxpool.Pool }

var _ Store = (*PGStore)(nil)

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

const listingCols = `id, vendor_id, title, description, original_cents, discounted_cents,
	quantity, remaining, status, pickup_start, pickup_end, created_at, updated_at`

func scanListing(row pgx.Row) (*Listing, error) {
	var l Listing
	err := row.Scan(&l.ID, &l.VendorID, &l.Title, &l.Description, &l.OriginalCents,
		&l.DiscountedCents, &l.Quantity, &l.Remaining, &l.Status,
		&l.PickupStart, &l.PickupEnd, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PGStore) CreateListing(ctx context.Context, l *Listing) error {
	if l.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if l.DiscountedCents > l.OriginalCents {
		return fmt.Errorf("discounted price above original price")
	}
	if !l.PickupEnd.After(l.PickupStart) {
		return fmt.Errorf("pickup window must end after it starts")
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.Remaining == 0 {
		l.Remaining = l.Quantity
	}
	l.Status = deriveStatus(l.Remaining)
	return s.DB.QueryRow(ctx, `
		INSERT INTO listings(id, vendor_id, title, description, original_cents, discounted_cents,
		                     quantity, remaining, status, pickup_start, pickup_end)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at, updated_at`,
		l.ID, l.VendorID, l.Title, l.Description, l.OriginalCents, l.DiscountedCents,
		l.Quantity, l.Remaining, l.Status, l.PickupStart, l.PickupEnd,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}

func (s *PGStore) GetListing(ctx context.Context, id string) (*Listing, error) {
	return scanListing(s.DB.QueryRow(ctx, `SELECT `+listingCols+` FROM listings WHERE id=$1`, id))
}

func (s *PGStore) ListActiveListings(ctx context.Context) ([]Listing, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+listingCols+` FROM listings WHERE status='active' ORDER BY pickup_start`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PGStore) Restock(ctx context.Context, listingID string, qty int) (*Listing, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE listings
		SET remaining = remaining + $2,
		    quantity  = GREATEST(quantity, remaining + $2),
		    status    = 'active',
		    updated_at = now()
		WHERE id = $1
		RETURNING `+listingCols, listingID, qty)
	return scanListing(row)
}

func (s *PGStore) CreateOrder(ctx context.Context, buyerID, vendorID string, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidQuantity
	}
	for _, it := range items {
		if it.Qty < 1 {
			return nil, ErrInvalidQuantity
		}
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	total := 0
	lines := make([]OrderItem, 0, len(items))
	for _, it := range items {
		var (
			title           string
			discounted      int
			remaining       int
			listingVendorID string
		)
		err := tx.QueryRow(ctx, `
			SELECT title, discounted_cents, remaining, vendor_id
			FROM listings WHERE id=$1 FOR UPDATE`, it.ListingID,
		).Scan(&title, &discounted, &remaining, &listingVendorID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		if err != nil {
			return nil, err
		}
		if listingVendorID != vendorID {
			return nil, ErrListingNotFound
		}
		if remaining == 0 {
			return nil, ErrListingSoldOut
		}
		if remaining < it.Qty {
			return nil, ErrInsufficientStock
		}
		ct, err := tx.Exec(ctx, `
			UPDATE listings
			SET remaining = remaining - $2,
			    status = CASE WHEN remaining - $2 <= 0 THEN 'sold_out' ELSE 'active' END,
			    updated_at = now()
			WHERE id=$1 AND remaining >= $2`, it.ListingID, it.Qty)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			return nil, ErrInsufficientStock
		}
		total += discounted * it.Qty
		lines = append(lines, OrderItem{ListingID: it.ListingID, Title: title, Qty: it.Qty, PriceCents: discounted})
	}

	code, err := s.freshPickupCode(ctx, tx, vendorID)
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
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, buyer_id, vendor_id, total_cents, status, pickup_code)
		VALUES ($1,$2,$3,$4,'reserved',$5)
		RETURNING created_at, updated_at`,
		o.ID, o.BuyerID, o.VendorID, o.TotalCents, o.PickupCode,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, it := range lines {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, listing_id, title, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, it.ListingID, it.Title, it.Qty, it.PriceCents); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &o, nil
}

// freshPickupCode draws until the code is unused among the vendor's reserved
// and placed orders. The partial unique index on (vendor_id, pickup_code)
// backs this up against a concurrent draw of the same code.
func (s *PGStore) freshPickupCode(ctx context.Context, tx pgx.Tx, vendorID string) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		code, err := NewPickupCode()
		if err != nil {
			return "", err
		}
		var exists bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM orders
				WHERE vendor_id=$1 AND pickup_code=$2 AND status IN ('reserved','placed')
			)`, vendorID, code).Scan(&exists)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("pickup code space exhausted for vendor %s", vendorID)
}

func (s *PGStore) ConfirmPayment(ctx context.Context, orderID, paymentRef string) (*Order, error) {
	if paymentRef == "" {
		return nil, fmt.Errorf("missing payment reference")
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status OrderStatus
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	var usedBy string
	err = tx.QueryRow(ctx, `SELECT id FROM orders WHERE payment_ref=$1`, paymentRef).Scan(&usedBy)
	if err == nil && usedBy != orderID {
		return nil, ErrPaymentRefUsed
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	switch status {
	case StatusReserved:
	case StatusPlaced:
		return nil, ErrAlreadyConfirmed
	default:
		return nil, ErrNotConfirmable
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status='placed', payment_ref=$2, updated_at=now()
		WHERE id=$1`, orderID, paymentRef); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *PGStore) Collect(ctx context.Context, vendorID, ref string, via CollectChannel) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	match := `pickup_code=$2`
	if via == CollectByQR {
		match = `id=$2`
	}
	var (
		orderID string
		status  OrderStatus
	)
	err = tx.QueryRow(ctx, `
		SELECT id, status FROM orders
		WHERE vendor_id=$1 AND `+match+`
		ORDER BY created_at DESC LIMIT 1 FOR UPDATE`, vendorID, ref,
	).Scan(&orderID, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusPlaced:
	case StatusCollected:
		return nil, ErrAlreadyCollected
	default:
		return nil, ErrNotCollectable
	}
	if _, err := tx.Exec(ctx, `
		UPDATE orders SET status='collected', updated_at=now() WHERE id=$1`, orderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *PGStore) CancelOrder(ctx context.Context, orderID, reason string) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := s.cancelInTx(ctx, tx, orderID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *PGStore) cancelInTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	var status OrderStatus
	err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(status, StatusCancelled) {
		return fmt.Errorf("cannot cancel order in status %q", status)
	}
	rows, err := tx.Query(ctx, `SELECT listing_id, qty FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return err
	}
	type line struct {
		listingID string
		qty       int
	}
	var lines []line
	for rows.Next() {
		var ln line
		if err := rows.Scan(&ln.listingID, &ln.qty); err != nil {
			rows.Close()
			return err
		}
		lines = append(lines, ln)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, ln := range lines {
		if _, err := tx.Exec(ctx, `
			UPDATE listings
			SET remaining = remaining + $2, status='active', updated_at=now()
			WHERE id=$1`, ln.listingID, ln.qty); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `UPDATE orders SET status='cancelled', updated_at=now() WHERE id=$1`, orderID)
	return err
}

func (s *PGStore) ExpireStaleReservations(ctx context.Context, olderThan time.Duration) ([]Order, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.DB.Query(ctx, `
		SELECT id FROM orders WHERE status='reserved' AND created_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var expired []Order
	for _, id := range ids {
		o, err := s.CancelOrder(ctx, id, "RESERVATION_EXPIRED")
		if err != nil {
			return expired, err
		}
		expired = append(expired, *o)
	}
	return expired, nil
}

const orderCols = `id, buyer_id, vendor_id, total_cents, status,
	COALESCE(pickup_code,''), COALESCE(payment_ref,''), created_at, updated_at`

func (s *PGStore) scanOrder(ctx context.Context, row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.VendorID, &o.TotalCents, &o.Status,
		&o.PickupCode, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := s.orderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *PGStore) orderItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT listing_id, title, qty, price_cents FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ListingID, &it.Title, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.scanOrder(ctx, s.DB.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, orderID))
}

func (s *PGStore) ordersWhere(ctx context.Context, where string, arg any) ([]Order, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+orderCols+` FROM orders WHERE `+where+` ORDER BY created_at DESC`, arg)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.VendorID, &o.TotalCents, &o.Status,
			&o.PickupCode, &o.PaymentRef, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := s.orderItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *PGStore) OrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error) {
	return s.ordersWhere(ctx, `buyer_id=$1`, buyerID)
}

func (s *PGStore) OrdersByVendor(ctx context.Context, vendorID string) ([]Order, error) {
	return s.ordersWhere(ctx, `vendor_id=$1`, vendorID)
}

func (s *PGStore) AddCartEntry(ctx context.Context, buyerID, listingID string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO cart_entries(buyer_id, listing_id, qty)
		SELECT $1, id, $3 FROM listings WHERE id=$2
		ON CONFLICT (buyer_id, listing_id) DO UPDATE SET qty=EXCLUDED.qty, added_at=now()`,
		buyerID, listingID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrListingNotFound
	}
	return nil
}

func (s *PGStore) CartForBuyer(ctx context.Context, buyerID string) ([]CartEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT buyer_id, listing_id, qty, added_at FROM cart_entries
		WHERE buyer_id=$1 ORDER BY added_at`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CartEntry
	for rows.Next() {
		var e CartEntry
		if err := rows.Scan(&e.BuyerID, &e.ListingID, &e.Qty, &e.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
