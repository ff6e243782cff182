// Package paysim is the simulated card payment flow. It talks to nothing: its
// only job is to walk a fixed four-state machine and hand one synthetic
// payment token to the checkout flow. It hides behind checkout.Gateway so a
// real processor can replace it without touching the orchestration.
package paysim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

type State string

const (
	StateMethods    State = "methods"
	StateCard       State = "card"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
)

type Method string

const (
	MethodCard       Method = "card"
	MethodNetbanking Method = "netbanking"
	MethodUPI        Method = "upi"
)

// TokenPrefix + a uniqueness suffix forms every emitted payment token.
const TokenPrefix = "pay_sim_"

// Simulated bank delays. Tunable constants, not business rules; tests shrink
// them to microseconds.
const (
	DefaultProcessingDelay = 3 * time.Second
	DefaultSuccessDelay    = 1500 * time.Millisecond
)

var (
	ErrMethodDisabled = errors.New("payment method not available")
	ErrBadTransition  = errors.New("action not allowed in current state")
	ErrCommitted      = errors.New("payment already processing, cannot cancel")
	ErrCancelled      = errors.New("payment flow dismissed")
)

type Card struct {
	Number string
	Expiry string
	CVV    string
	Holder string
}

func (c Card) validate() error {
	digits := 0
	for _, r := range c.Number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 12 || digits > 19 {
		return fmt.Errorf("card number must be 12-19 digits")
	}
	if len(c.Expiry) != 5 {
		return fmt.Errorf("expiry must be MM/YY")
	}
	if len(c.CVV) != 3 {
		return fmt.Errorf("cvv must be 3 digits")
	}
	return nil
}

// Machine is one payment session. Strictly linear: methods -> card ->
// processing -> success, with card -> methods as the only way back.
// Ephemeral by design; nothing survives it but the token.
type Machine struct {
	mu              sync.Mutex
	state           State
	cancelled       bool
	emitted         bool
	processingDelay time.Duration
	successDelay    time.Duration
	now             func() time.Time
}

func New(processingDelay, successDelay time.Duration) *Machine {
	if processingDelay <= 0 {
		processingDelay = DefaultProcessingDelay
	}
	if successDelay <= 0 {
		successDelay = DefaultSuccessDelay
	}
	return &Machine{
		state:           StateMethods,
		processingDelay: processingDelay,
		successDelay:    successDelay,
		now:             time.Now,
	}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Choose picks a payment method. Only card is enabled in the simulation.
func (m *Machine) Choose(method Method) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return ErrCancelled
	}
	if m.state != StateMethods {
		return ErrBadTransition
	}
	if method != MethodCard {
		return ErrMethodDisabled
	}
	m.state = StateCard
	return nil
}

// Back returns from card capture to method selection.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateCard {
		return ErrBadTransition
	}
	m.state = StateMethods
	return nil
}

// Submit validates the card fields and commits the flow to processing.
func (m *Machine) Submit(card Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return ErrCancelled
	}
	if m.state != StateCard {
		return ErrBadTransition
	}
	if err := card.validate(); err != nil {
		return err
	}
	m.state = StateProcessing
	return nil
}

// Cancel dismisses the modal. Allowed only before processing starts; once the
// flow is committed the buyer rides it out so the reservation is not left in
// limbo with a half-done payment.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateMethods, StateCard:
		m.cancelled = true
		return nil
	default:
		return ErrCommitted
	}
}

// Await runs the committed part: the "bank confirmation" wait, the success
// pause, then exactly one token. A second call fails. Context cancellation
// abandons the wait but the server-side reservation stays put; the API's
// reservation reaper owns that cleanup.
func (m *Machine) Await(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state != StateProcessing || m.emitted {
		m.mu.Unlock()
		return "", ErrBadTransition
	}
	m.mu.Unlock()

	select {
	case <-time.After(m.processingDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m.mu.Lock()
	m.state = StateSuccess
	m.mu.Unlock()

	select {
	case <-time.After(m.successDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.emitted {
		return "", ErrBadTransition
	}
	m.emitted = true
	return TokenPrefix + strconv.FormatInt(m.now().UnixMilli(), 10), nil
}
