package checkout

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastcrate/surplus-orders/internal/apiclient"
	"github.com/lastcrate/surplus-orders/internal/httpx"
	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/paysim"
	"github.com/lastcrate/surplus-orders/internal/session"
)

const buyerToken = "buyer-token"

func newBackend(t *testing.T) (*httptest.Server, *market.MemStore) {
	t.Helper()
	store := market.NewMemStore()
	sessions := session.NewStore()
	sessions.Put(session.Session{Token: buyerToken, ActorID: "buyer-1", Role: session.RoleBuyer})

	router := httpx.NewRouter()
	api := &httpx.API{Store: store, Sessions: sessions, Service: "test-api"}
	api.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

func buyerClient(srv *httptest.Server) *Client {
	return New(apiclient.Session{BaseURL: srv.URL, Token: buyerToken})
}

func seedListing(t *testing.T, store *market.MemStore, qty, priceCents int) *market.Listing {
	t.Helper()
	l := &market.Listing{
		VendorID:        "vendor-1",
		Title:           "Five o'clock bread crate",
		OriginalCents:   priceCents * 2,
		DiscountedCents: priceCents,
		Quantity:        qty,
		PickupStart:     time.Now().Add(time.Hour),
		PickupEnd:       time.Now().Add(3 * time.Hour),
	}
	require.NoError(t, store.CreateListing(context.Background(), l))
	return l
}

func fastGateway() *paysim.Gateway {
	return &paysim.Gateway{
		Card:            paysim.Card{Number: "4111111111111111", Expiry: "12/28", CVV: "123", Holder: "A Buyer"},
		ProcessingDelay: time.Millisecond,
		SuccessDelay:    time.Millisecond,
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 1, 10000)
	c := buyerClient(srv)

	order, err := c.Checkout(context.Background(), l.ID, 1, fastGateway())
	require.NoError(t, err)

	assert.Equal(t, market.StatusPlaced, order.Status)
	assert.Equal(t, 10000, order.TotalCents)
	assert.True(t, strings.HasPrefix(order.PaymentRef, paysim.TokenPrefix))

	after, err := c.FetchListing(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Remaining)
	assert.Equal(t, market.ListingSoldOut, after.Status)

	assert.Empty(t, c.Unconfirmed(), "a clean run leaves no reconciliation work")
}

func TestPlaceOrderQuantityValidation(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 3, 10000)
	c := buyerClient(srv)

	listing, err := c.FetchListing(context.Background(), l.ID)
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), listing, 0)
	assert.Error(t, err)
	_, err = c.PlaceOrder(context.Background(), listing, 4)
	assert.Error(t, err)
}

func TestPlaceOrderSurfacesServerRejection(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 2, 10000)
	c := buyerClient(srv)

	// fetch, then lose the race: another buyer empties the listing
	listing, err := c.FetchListing(context.Background(), l.ID)
	require.NoError(t, err)
	_, err = store.CreateOrder(context.Background(), "buyer-2", "vendor-1",
		[]market.ItemInput{{ListingID: l.ID, Qty: 2}})
	require.NoError(t, err)

	_, err = c.PlaceOrder(context.Background(), listing, 1)
	require.Error(t, err)
	assert.Equal(t, market.ErrListingSoldOut.Error(), RejectionMessage(err),
		"the server's message travels to the buyer verbatim")
	assert.False(t, IsConnectivity(err))
}

func TestConfirmFailureLandsInJournal(t *testing.T) {
	srv, _ := newBackend(t)
	c := buyerClient(srv)

	_, err := c.Confirm(context.Background(), "no-such-order", "pay_sim_1")
	require.ErrorIs(t, err, ErrUnconfirmed)

	pending := c.Unconfirmed()
	require.Len(t, pending, 1)
	assert.Equal(t, "no-such-order", pending[0].OrderID)
	assert.Equal(t, "pay_sim_1", pending[0].PaymentRef)
	assert.NotEmpty(t, pending[0].Reason)

	assert.True(t, c.Acknowledge("no-such-order"))
	assert.Empty(t, c.Unconfirmed())
	assert.False(t, c.Acknowledge("no-such-order"), "acknowledging twice is a no-op")
}

func TestConfirmReplayRejected(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 2, 10000)
	c := buyerClient(srv)

	listing, err := c.FetchListing(context.Background(), l.ID)
	require.NoError(t, err)
	order, err := c.PlaceOrder(context.Background(), listing, 1)
	require.NoError(t, err)

	_, err = c.Confirm(context.Background(), order.ID, "pay_sim_9")
	require.NoError(t, err)

	// replaying the confirmation is rejected, and the rejection is recorded
	// as reconciliation work rather than swallowed
	_, err = c.Confirm(context.Background(), order.ID, "pay_sim_9")
	require.ErrorIs(t, err, ErrUnconfirmed)
	assert.Equal(t, market.ErrAlreadyConfirmed.Error(), RejectionMessage(err))
}

func TestConnectivityErrorsAreDistinguishable(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 1, 10000)
	c := buyerClient(srv)
	srv.Close()

	_, err := c.FetchListing(context.Background(), l.ID)
	require.Error(t, err)
	assert.True(t, IsConnectivity(err), "a dead server is a connectivity error, not a business error")
	assert.Equal(t, "connection problem, please try again", RejectionMessage(err))
}

func TestAddToCartAndMyOrders(t *testing.T) {
	srv, store := newBackend(t)
	l := seedListing(t, store, 3, 10000)
	c := buyerClient(srv)

	require.NoError(t, c.AddToCart(context.Background(), l.ID, 2))

	_, err := c.Checkout(context.Background(), l.ID, 1, fastGateway())
	require.NoError(t, err)

	orders, err := c.MyOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, market.StatusPlaced, orders[0].Status)
	assert.True(t, market.ValidPickupCode(orders[0].PickupCode))
}
