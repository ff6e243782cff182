package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/lastcrate/surplus-orders/internal/kafka"
	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/redisx"
	"github.com/lastcrate/surplus-orders/internal/session"
)

// API exposes the order lifecycle REST surface. Producer, Cache and Redis are
// optional; tests run with just a Store and Sessions.
type API struct {
	Store    market.Store
	Sessions *session.Store
	Producer *kafkax.Producer
	Cache    *ListingCache
	Redis    *redis.Client
	Service  string
}

func (a *API) Register(r *chi.Mux) {
	buyer := requireRole(a.Sessions, session.RoleBuyer)
	vendor := requireRole(a.Sessions, session.RoleVendor)

	r.Get("/listings", a.listListings)
	r.Get("/listings/{id}", a.getListing)

	r.Group(func(r chi.Router) {
		r.Use(vendor)
		r.Post("/listings", a.createListing)
		r.Post("/listings/{id}/restock", a.restockListing)
		r.Get("/vendors/orders", a.vendorOrders)
		r.Post("/vendors/verify-code", a.verifyCode)
		r.Post("/vendors/verify-qr", a.verifyQR)
	})

	r.Group(func(r chi.Router) {
		r.Use(buyer)
		r.Post("/orders", a.createOrder)
		r.Post("/orders/{id}/simulate-payment", a.simulatePayment)
		r.Get("/orders/myorders", a.myOrders)
		r.Post("/users/cart", a.addToCart)
		r.Get("/users/cart", a.getCart)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Errors go out as {message}; clients surface the message verbatim.
func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

// writeDomainErr keeps conflict-class errors (already collected, sold out,
// duplicate payment) on 409 and lookup misses on 404 so clients can render
// them distinctly.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, market.ErrListingNotFound),
		errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, market.ErrCodeNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, market.ErrAlreadyCollected),
		errors.Is(err, market.ErrAlreadyConfirmed),
		errors.Is(err, market.ErrPaymentRefUsed),
		errors.Is(err, market.ErrInsufficientStock),
		errors.Is(err, market.ErrListingSoldOut),
		errors.Is(err, market.ErrNotCollectable),
		errors.Is(err, market.ErrNotConfirmable):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, market.ErrInvalidQuantity):
		writeErr(w, http.StatusBadRequest, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, err.Error())
	}
}

// ---- listings ----

func (a *API) getListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		l   *market.Listing
		err error
	)
	if a.Cache != nil {
		l, err = a.Cache.Get(ctx, id)
	} else {
		l, err = a.Store.GetListing(ctx, id)
	}
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *API) listListings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	ls, err := a.Store.ListActiveListings(ctx)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (a *API) createListing(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	var l market.Listing
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	l.VendorID = sess.ActorID
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := a.Store.CreateListing(ctx, &l); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (a *API) restockListing(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	id := chi.URLParam(r, "id")
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	l, err := a.Store.GetListing(ctx, id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if sess.Role != session.RoleAdmin && l.VendorID != sess.ActorID {
		writeErr(w, http.StatusNotFound, market.ErrListingNotFound.Error())
		return
	}
	l, err = a.Store.Restock(ctx, id, req.Quantity)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if a.Cache != nil {
		a.Cache.Invalidate(ctx, id)
	}
	a.publish(r, market.TopicListingRestock, market.EventListingRestock, l.ID,
		market.ListingRestockPayload{ListingID: l.ID, Added: req.Quantity, Remaining: l.Remaining})
	writeJSON(w, http.StatusOK, l)
}

// ---- cart ----

func (a *API) addToCart(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	var req struct {
		ListingID string `json:"listingId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := a.Store.AddCartEntry(ctx, sess.ActorID, req.ListingID, req.Quantity); err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "added to cart"})
}

func (a *API) getCart(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	entries, err := a.Store.CartForBuyer(ctx, sess.ActorID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ---- orders ----

type createOrderReq struct {
	VendorID string             `json:"vendorId"`
	Items    []market.ItemInput `json:"items"`
}

func (a *API) createOrder(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VendorID == "" || len(req.Items) == 0 {
		writeErr(w, http.StatusBadRequest, "missing fields")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := a.Store.CreateOrder(ctx, sess.ActorID, req.VendorID, req.Items)
	if err != nil {
		writeDomainErr(w, err)
		return
	}

	if a.Cache != nil {
		for _, it := range o.Items {
			a.Cache.Invalidate(ctx, it.ListingID)
		}
	}
	a.cacheStatus(ctx, o)

	items := make([]market.ItemQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, market.ItemQty{ListingID: it.ListingID, Qty: it.Qty})
	}
	a.publish(r, market.TopicOrderCreated, market.EventOrderCreated, o.ID, market.OrderCreatedPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, VendorID: o.VendorID, Items: items, TotalCents: o.TotalCents,
	})
	for _, it := range o.Items {
		if l, err := a.Store.GetListing(ctx, it.ListingID); err == nil && l.Status == market.ListingSoldOut {
			a.publish(r, market.TopicListingSoldOut, market.EventListingSoldOut, l.ID,
				market.ListingSoldOutPayload{ListingID: l.ID, VendorID: l.VendorID})
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"order": o})
}

func (a *API) simulatePayment(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	orderID := chi.URLParam(r, "id")
	var req struct {
		PaymentID string `json:"paymentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PaymentID == "" {
		writeErr(w, http.StatusBadRequest, "missing paymentId")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := a.Store.GetOrder(ctx, orderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	if o.BuyerID != sess.ActorID {
		// do not leak other buyers' orders
		writeErr(w, http.StatusNotFound, market.ErrOrderNotFound.Error())
		return
	}

	o, err = a.Store.ConfirmPayment(ctx, orderID, req.PaymentID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	a.cacheStatus(ctx, o)
	a.publish(r, market.TopicOrderPlaced, market.EventOrderPlaced, o.ID, market.OrderPlacedPayload{
		OrderID: o.ID, PaymentRef: req.PaymentID, AmountCents: o.TotalCents,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "payment recorded", "order": o})
}

func (a *API) myOrders(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	out, err := a.Store.OrdersByBuyer(ctx, sess.ActorID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ---- vendor side ----

func (a *API) vendorOrders(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	out, err := a.Store.OrdersByVendor(ctx, sess.ActorID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	// the pickup code is the buyer's secret; strip it from the vendor view
	for i := range out {
		out[i].PickupCode = ""
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) verifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PickupCode string `json:"pickupCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !market.ValidPickupCode(req.PickupCode) {
		writeErr(w, http.StatusBadRequest, "pickup code must be exactly 4 digits")
		return
	}
	a.collect(w, r, req.PickupCode, market.CollectByPickupCode)
}

func (a *API) verifyQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OrderID == "" {
		writeErr(w, http.StatusBadRequest, "missing orderId")
		return
	}
	a.collect(w, r, req.OrderID, market.CollectByQR)
}

// collect is the single verification path behind both channels.
func (a *API) collect(w http.ResponseWriter, r *http.Request, ref string, via market.CollectChannel) {
	sess, _ := SessionFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := a.Store.Collect(ctx, sess.ActorID, ref, via)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	a.cacheStatus(ctx, o)
	a.publish(r, market.TopicOrderCollected, market.EventOrderCollected, o.ID, market.OrderCollectedPayload{
		OrderID: o.ID, VendorID: o.VendorID, Channel: string(via),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("order %s collected", shortID(o.ID)),
		"order":   o,
	})
}

func shortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}

// ---- side channels ----

func (a *API) cacheStatus(ctx context.Context, o *market.Order) {
	if a.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(map[string]string{"status": string(o.Status)})
	_ = a.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (a *API) publish(r *http.Request, topic, eventType, orderID string, payload any) {
	if a.Producer == nil {
		return
	}
	ev := market.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      a.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	a.Producer.Publish(topic, market.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
