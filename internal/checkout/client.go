// Package checkout orchestrates the buyer's side of the order lifecycle:
// reserve, pay, confirm. Each step waits for the previous network call to
// resolve; nothing is retried automatically because neither reservation nor
// confirmation is blindly safe to replay.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lastcrate/surplus-orders/internal/apiclient"
	"github.com/lastcrate/surplus-orders/internal/market"
)

// Gateway produces a payment reference for an amount. The simulator
// implements it today; a real processor slots in without touching this
// package.
type Gateway interface {
	Pay(ctx context.Context, amountCents int) (string, error)
}

// ErrUnconfirmed flags the reconciliation risk of spec'd step 3: the payment
// ran locally but the backend never recorded it. The order id stays in the
// journal until the buyer acknowledges it; it is never silently retried.
var ErrUnconfirmed = errors.New("payment completed locally but not recorded; check your order history")

type Client struct {
	sess    apiclient.Session
	journal *Journal
}

func New(sess apiclient.Session) *Client {
	return &Client{sess: sess, journal: NewJournal()}
}

func (c *Client) FetchListing(ctx context.Context, id string) (*market.Listing, error) {
	var l market.Listing
	if err := c.sess.Get(ctx, "/listings/"+id, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (c *Client) AddToCart(ctx context.Context, listingID string, qty int) error {
	body := map[string]any{"listingId": listingID, "quantity": qty}
	return c.sess.Post(ctx, "/users/cart", body, nil)
}

// PlaceOrder validates the quantity against the listing as last fetched and
// submits the reservation. The displayed remaining quantity is advisory: the
// backend re-checks atomically and its answer wins.
func (c *Client) PlaceOrder(ctx context.Context, listing *market.Listing, qty int) (*market.Order, error) {
	if qty < 1 || qty > listing.Remaining {
		return nil, fmt.Errorf("quantity must be between 1 and %d", listing.Remaining)
	}
	if listing.Status != market.ListingActive {
		return nil, market.ErrListingSoldOut
	}
	req := map[string]any{
		"vendorId": listing.VendorID,
		"items":    []market.ItemInput{{ListingID: listing.ID, Qty: qty}},
	}
	var resp struct {
		Order market.Order `json:"order"`
	}
	if err := c.sess.Post(ctx, "/orders", req, &resp); err != nil {
		// no retry: re-submitting could double-reserve
		return nil, err
	}
	return &resp.Order, nil
}

// Confirm reports a finished payment to the backend, once. On failure the
// pair (order, payment ref) lands in the journal and comes back wrapped in
// ErrUnconfirmed so the caller shows the warning state instead of a generic
// error.
func (c *Client) Confirm(ctx context.Context, orderID, paymentRef string) (*market.Order, error) {
	var resp struct {
		Order market.Order `json:"order"`
	}
	err := c.sess.Post(ctx, "/orders/"+orderID+"/simulate-payment",
		map[string]string{"paymentId": paymentRef}, &resp)
	if err != nil {
		c.journal.Record(orderID, paymentRef, err)
		return nil, fmt.Errorf("%w (order %s): %v", ErrUnconfirmed, orderID, err)
	}
	return &resp.Order, nil
}

// Checkout runs the whole flow for a single listing purchase: fetch, reserve,
// pay through the gateway, confirm. Strictly sequential.
func (c *Client) Checkout(ctx context.Context, listingID string, qty int, gw Gateway) (*market.Order, error) {
	listing, err := c.FetchListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	order, err := c.PlaceOrder(ctx, listing, qty)
	if err != nil {
		return nil, err
	}
	ref, err := gw.Pay(ctx, order.TotalCents)
	if err != nil {
		return nil, fmt.Errorf("payment: %w", err)
	}
	return c.Confirm(ctx, order.ID, ref)
}

func (c *Client) MyOrders(ctx context.Context) ([]market.Order, error) {
	var out []market.Order
	if err := c.sess.Get(ctx, "/orders/myorders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unconfirmed returns payments awaiting reconciliation.
func (c *Client) Unconfirmed() []Unconfirmed { return c.journal.Pending() }

// Acknowledge clears one journal entry after the buyer has checked their
// order history.
func (c *Client) Acknowledge(orderID string) bool { return c.journal.Acknowledge(orderID) }

// IsConnectivity reports whether err was a transport-level failure with no
// server response, as opposed to a business-rule rejection.
func IsConnectivity(err error) bool { return errors.Is(err, apiclient.ErrConnectivity) }

// RejectionMessage extracts the server's verbatim message, or a generic
// fallback when the failure carried none.
func RejectionMessage(err error) string {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if IsConnectivity(err) {
		return "connection problem, please try again"
	}
	if err != nil {
		return err.Error()
	}
	return http.StatusText(http.StatusInternalServerError)
}
