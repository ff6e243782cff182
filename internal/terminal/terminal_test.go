package terminal

import (
	"context"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lastcrate/surplus-orders/internal/apiclient"
	"github.com/lastcrate/surplus-orders/internal/httpx"
	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/session"
)

const vendorToken = "vendor-token"

func newBackend(t *testing.T) (*httptest.Server, *market.MemStore) {
	t.Helper()
	store := market.NewMemStore()
	sessions := session.NewStore()
	sessions.Put(session.Session{Token: vendorToken, ActorID: "vendor-1", Role: session.RoleVendor})

	router := httpx.NewRouter()
	api := &httpx.API{Store: store, Sessions: sessions, Service: "test-api"}
	api.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, store
}

// placedOrder seeds a listing, reserves and confirms one order.
func placedOrder(t *testing.T, store *market.MemStore) *market.Order {
	t.Helper()
	ctx := context.Background()
	l := &market.Listing{
		VendorID:        "vendor-1",
		Title:           "Counter box",
		OriginalCents:   2000,
		DiscountedCents: 1000,
		Quantity:        5,
		PickupStart:     time.Now().Add(time.Hour),
		PickupEnd:       time.Now().Add(3 * time.Hour),
	}
	require.NoError(t, store.CreateListing(ctx, l))
	o, err := store.CreateOrder(ctx, "buyer-1", "vendor-1", []market.ItemInput{{ListingID: l.ID, Qty: 1}})
	require.NoError(t, err)
	o, err = store.ConfirmPayment(ctx, o.ID, "pay_sim_"+o.ID[:8])
	require.NoError(t, err)
	return o
}

func vendorTerminal(srv *httptest.Server) *Terminal {
	return New(apiclient.Session{BaseURL: srv.URL, Token: vendorToken})
}

func TestManualChannelGate(t *testing.T) {
	srv, _ := newBackend(t)
	term := vendorTerminal(srv)

	for _, bad := range []string{"", "12", "12345", "12a4"} {
		_, err := term.VerifyManual(context.Background(), bad)
		assert.ErrorIs(t, err, ErrCodeFormat, "code %q must be gated before any network call", bad)
	}
}

func TestManualChannelOutcomes(t *testing.T) {
	srv, store := newBackend(t)
	o := placedOrder(t, store)
	term := vendorTerminal(srv)
	require.NoError(t, term.Refresh(context.Background()))
	require.Len(t, term.Placed(), 1)

	out, err := term.VerifyManual(context.Background(), o.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, ResultCollected, out.Result)
	require.NotNil(t, out.Order)
	assert.Equal(t, market.StatusCollected, out.Order.Status)

	// the collected order drops out of the actionable set
	assert.Empty(t, term.Placed())

	// replay renders as "already collected", distinct from a wrong code
	out, err = term.VerifyManual(context.Background(), o.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyCollected, out.Result)
	assert.Equal(t, market.ErrAlreadyCollected.Error(), out.Message)

	wrong := "9999"
	if wrong == o.PickupCode {
		wrong = "8888"
	}
	out, err = term.VerifyManual(context.Background(), wrong)
	require.NoError(t, err)
	assert.Equal(t, ResultNotFound, out.Result)
	assert.NotEqual(t, market.ErrAlreadyCollected.Error(), out.Message)
}

// staticSource hands out one decode immediately.
type staticSource struct{ text string }

func (s staticSource) Next(ctx context.Context) (string, error) { return s.text, nil }

func TestScanChannel(t *testing.T) {
	srv, store := newBackend(t)
	o := placedOrder(t, store)
	term := vendorTerminal(srv)

	out, err := term.Scan(context.Background(), staticSource{text: o.ID})
	require.NoError(t, err)
	assert.Equal(t, ResultCollected, out.Result)

	// the same physical code cannot collect twice through either channel
	out, err = term.Scan(context.Background(), staticSource{text: o.ID})
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyCollected, out.Result)

	out, err = term.VerifyManual(context.Background(), o.PickupCode)
	require.NoError(t, err)
	assert.Equal(t, ResultAlreadyCollected, out.Result)
}

// countingDecoder decodes nothing for a few frames, then yields once.
type countingDecoder struct {
	frames  atomic.Int32
	yieldAt int32
	text    string
}

func (d *countingDecoder) DecodeFrame(ctx context.Context) (string, bool, error) {
	n := d.frames.Add(1)
	if n >= d.yieldAt {
		return d.text, true, nil
	}
	return "", false, nil
}

func TestCameraSourceStopsOnFirstDecode(t *testing.T) {
	srv, store := newBackend(t)
	o := placedOrder(t, store)
	term := vendorTerminal(srv)

	dec := &countingDecoder{yieldAt: 3, text: o.ID}
	src := &CameraSource{Decoder: dec, Interval: time.Millisecond}

	out, err := term.Scan(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, ResultCollected, out.Result)
	assert.Equal(t, int32(3), dec.frames.Load(), "the loop must stop at the first successful decode")
}

func TestScanCancellableBeforeDecode(t *testing.T) {
	srv, _ := newBackend(t)
	term := vendorTerminal(srv)

	// decoder that never yields
	dec := &countingDecoder{yieldAt: 1 << 30}
	src := &CameraSource{Decoder: dec, Interval: time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := term.Scan(ctx, src)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRefreshFiltersToPlaced(t *testing.T) {
	srv, store := newBackend(t)
	ctx := context.Background()

	l := &market.Listing{
		VendorID:        "vendor-1",
		Title:           "Counter box",
		OriginalCents:   2000,
		DiscountedCents: 1000,
		Quantity:        5,
		PickupStart:     time.Now().Add(time.Hour),
		PickupEnd:       time.Now().Add(3 * time.Hour),
	}
	require.NoError(t, store.CreateListing(ctx, l))

	// one reserved (not yet actionable), one placed
	_, err := store.CreateOrder(ctx, "buyer-1", "vendor-1", []market.ItemInput{{ListingID: l.ID, Qty: 1}})
	require.NoError(t, err)
	o2, err := store.CreateOrder(ctx, "buyer-2", "vendor-1", []market.ItemInput{{ListingID: l.ID, Qty: 1}})
	require.NoError(t, err)
	_, err = store.ConfirmPayment(ctx, o2.ID, "pay_sim_2")
	require.NoError(t, err)

	term := vendorTerminal(srv)
	require.NoError(t, term.Refresh(ctx))
	placed := term.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, o2.ID, placed[0].ID)
}

func TestTerminalConnectivityError(t *testing.T) {
	srv, store := newBackend(t)
	o := placedOrder(t, store)
	term := vendorTerminal(srv)
	srv.Close()

	_, err := term.VerifyManual(context.Background(), o.PickupCode)
	require.Error(t, err)
	assert.ErrorIs(t, err, apiclient.ErrConnectivity)
}
