package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kafkax "github.com/lastcrate/surplus-orders/internal/kafka"
	"github.com/lastcrate/surplus-orders/internal/market"
)

func envelope(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	ev := market.Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(ev)}
}

func TestHandleEvent(t *testing.T) {
	svc := &Service{ServiceName: "test-notifier"}
	ctx := context.Background()

	msgs := []kafkago.Message{
		envelope(t, market.EventOrderPlaced, market.OrderPlacedPayload{OrderID: "o1", PaymentRef: "pay_sim_1", AmountCents: 1000}),
		envelope(t, market.EventOrderCollected, market.OrderCollectedPayload{OrderID: "o1", VendorID: "v1", Channel: "code"}),
		envelope(t, market.EventOrderCancelled, market.OrderCancelledPayload{OrderID: "o2", Reason: "RESERVATION_EXPIRED"}),
		envelope(t, market.EventListingSoldOut, market.ListingSoldOutPayload{ListingID: "l1", VendorID: "v1"}),
		envelope(t, "SomebodyElsesEvent", map[string]string{"x": "y"}),
	}
	for _, m := range msgs {
		require.NoError(t, svc.HandleEvent(ctx, m))
	}
}

func TestHandleEventBadJSON(t *testing.T) {
	svc := &Service{ServiceName: "test-notifier"}
	err := svc.HandleEvent(context.Background(), kafkago.Message{Value: []byte("{not json")})
	assert.Error(t, err, "garbage must not be committed")
}
