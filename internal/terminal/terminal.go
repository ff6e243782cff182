// Package terminal is the vendor-side pickup verification counter. Two input
// channels, one verification contract: a scanned QR (the order id) or a typed
// 4-digit pickup code both resolve the same placed order to collected, at
// most once.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lastcrate/surplus-orders/internal/apiclient"
	"github.com/lastcrate/surplus-orders/internal/market"
)

type Result int

const (
	ResultCollected Result = iota
	// ResultAlreadyCollected must render differently from ResultNotFound:
	// at the counter "this was picked up already" and "wrong code" call for
	// different conversations.
	ResultAlreadyCollected
	ResultNotFound
	ResultRejected
)

func (r Result) String() string {
	switch r {
	case ResultCollected:
		return "collected"
	case ResultAlreadyCollected:
		return "already collected"
	case ResultNotFound:
		return "not found"
	default:
		return "rejected"
	}
}

type Outcome struct {
	Result  Result
	Message string
	Order   *market.Order
}

// ErrCodeFormat gates the manual channel before any network call.
var ErrCodeFormat = fmt.Errorf("enter exactly %d digits", market.PickupCodeLen)

type Terminal struct {
	sess apiclient.Session

	mu     sync.Mutex
	placed []market.Order
}

func New(sess apiclient.Session) *Terminal {
	return &Terminal{sess: sess}
}

// Refresh reloads the vendor's outstanding placed orders — the actionable set
// shown at the counter. Collected orders drop out.
func (t *Terminal) Refresh(ctx context.Context) error {
	var all []market.Order
	if err := t.sess.Get(ctx, "/vendors/orders", &all); err != nil {
		return err
	}
	placed := all[:0]
	for _, o := range all {
		if o.Status == market.StatusPlaced {
			placed = append(placed, o)
		}
	}
	t.mu.Lock()
	t.placed = append([]market.Order(nil), placed...)
	t.mu.Unlock()
	return nil
}

func (t *Terminal) Placed() []market.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]market.Order, len(t.placed))
	copy(out, t.placed)
	return out
}

// VerifyManual submits a typed pickup code. Submission is blocked until the
// input is exactly four digits.
func (t *Terminal) VerifyManual(ctx context.Context, code string) (Outcome, error) {
	if !market.ValidPickupCode(code) {
		return Outcome{}, ErrCodeFormat
	}
	return t.verify(ctx, "/vendors/verify-code", map[string]string{"pickupCode": code})
}

// Scan waits for one decode from the source and submits it as an order id.
// At most one verification fires per scan session: the first decode wins and
// scanning stops. Cancel the context to stop scanning before a decode.
func (t *Terminal) Scan(ctx context.Context, src DecodeSource) (Outcome, error) {
	decoded, err := src.Next(ctx)
	if err != nil {
		return Outcome{}, err
	}
	return t.verify(ctx, "/vendors/verify-qr", map[string]string{"orderId": decoded})
}

// verify is the shared tail of both channels.
func (t *Terminal) verify(ctx context.Context, path string, body any) (Outcome, error) {
	var resp struct {
		Message string       `json:"message"`
		Order   market.Order `json:"order"`
	}
	err := t.sess.Post(ctx, path, body, &resp)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return outcomeFor(apiErr), nil
		}
		// connectivity and the like: report the failure, not a verdict
		return Outcome{}, err
	}

	// success: the order is out of the actionable set, refresh the view
	if rerr := t.Refresh(ctx); rerr != nil {
		// verification itself succeeded; a stale list is tolerable
		_ = rerr
	}
	return Outcome{Result: ResultCollected, Message: resp.Message, Order: &resp.Order}, nil
}

func outcomeFor(apiErr *apiclient.APIError) Outcome {
	out := Outcome{Message: apiErr.Message, Result: ResultRejected}
	switch apiErr.Status {
	case 404:
		out.Result = ResultNotFound
	case 409:
		if apiErr.Message == market.ErrAlreadyCollected.Error() {
			out.Result = ResultAlreadyCollected
		}
	}
	return out
}
