// Package notifier consumes order lifecycle events and hands out
// notifications (today: log lines standing in for receipt emails and vendor
// pings). Processing is deduplicated per event id via Redis.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/lastcrate/surplus-orders/internal/kafka"
	"github.com/lastcrate/surplus-orders/internal/market"
	"github.com/lastcrate/surplus-orders/internal/redisx"
)

type Service struct {
	Redis       *redis.Client // nil disables dedup (tests)
	ServiceName string
}

// HandleEvent is wired as the consumer handler for every lifecycle topic.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env market.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
		exists, _ := redisx.Exists(ctx, s.Redis, dkey)
		if exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	switch env.EventType {
	case market.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[market.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("order %s placed: amount=%d ref=%s (receipt ready)", p.OrderID, p.AmountCents, p.PaymentRef)
	case market.EventOrderCollected:
		p, err := kafkax.UnwrapPayload[market.OrderCollectedPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("order %s collected via %s at vendor %s", p.OrderID, p.Channel, p.VendorID)
	case market.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[market.OrderCancelledPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("order %s cancelled: %s", p.OrderID, p.Reason)
	case market.EventListingSoldOut:
		p, err := kafkax.UnwrapPayload[market.ListingSoldOutPayload](env.Payload)
		if err != nil {
			return err
		}
		log.Printf("listing %s sold out (vendor %s)", p.ListingID, p.VendorID)
	default:
		// other event types are not ours to handle
	}
	return nil
}
