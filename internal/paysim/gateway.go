package paysim

import (
	"context"
	"time"
)

// Gateway drives a fresh Machine through the card flow for each payment.
// It satisfies the checkout package's Gateway interface.
type Gateway struct {
	Card            Card
	ProcessingDelay time.Duration
	SuccessDelay    time.Duration
}

// Pay walks methods -> card -> processing -> success and returns the token.
// The amount is ignored: the simulation charges nothing.
func (g *Gateway) Pay(ctx context.Context, amountCents int) (string, error) {
	m := New(g.ProcessingDelay, g.SuccessDelay)
	if err := m.Choose(MethodCard); err != nil {
		return "", err
	}
	if err := m.Submit(g.Card); err != nil {
		return "", err
	}
	return m.Await(ctx)
}
