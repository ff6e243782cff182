package paysim

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCard = Card{Number: "4111111111111111", Expiry: "12/28", CVV: "123", Holder: "A Buyer"}

func fastMachine() *Machine {
	return New(time.Millisecond, time.Millisecond)
}

func TestHappyPathEmitsOneToken(t *testing.T) {
	m := fastMachine()
	require.Equal(t, StateMethods, m.State())

	require.NoError(t, m.Choose(MethodCard))
	require.Equal(t, StateCard, m.State())

	require.NoError(t, m.Submit(testCard))
	require.Equal(t, StateProcessing, m.State())

	token, err := m.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, m.State())
	assert.True(t, strings.HasPrefix(token, TokenPrefix), "token %q must carry the prefix", token)
	assert.Greater(t, len(token), len(TokenPrefix), "token needs a uniqueness suffix")

	// exactly once
	_, err = m.Await(context.Background())
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestOnlyCardIsEnabled(t *testing.T) {
	m := fastMachine()
	assert.ErrorIs(t, m.Choose(MethodNetbanking), ErrMethodDisabled)
	assert.ErrorIs(t, m.Choose(MethodUPI), ErrMethodDisabled)
	assert.NoError(t, m.Choose(MethodCard))
}

func TestBackFromCard(t *testing.T) {
	m := fastMachine()
	require.NoError(t, m.Choose(MethodCard))
	require.NoError(t, m.Back())
	assert.Equal(t, StateMethods, m.State())

	// back is the only backward transition; it does not exist elsewhere
	assert.ErrorIs(t, m.Back(), ErrBadTransition)
}

func TestCardValidation(t *testing.T) {
	tests := []struct {
		name string
		card Card
	}{
		{"short number", Card{Number: "4111", Expiry: "12/28", CVV: "123"}},
		{"empty number", Card{Expiry: "12/28", CVV: "123"}},
		{"bad expiry", Card{Number: "4111111111111111", Expiry: "1228", CVV: "123"}},
		{"bad cvv", Card{Number: "4111111111111111", Expiry: "12/28", CVV: "12"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := fastMachine()
			require.NoError(t, m.Choose(MethodCard))
			err := m.Submit(tc.card)
			assert.Error(t, err)
			assert.Equal(t, StateCard, m.State(), "a rejected card leaves the flow on the form")
		})
	}
}

func TestLinearOrderEnforced(t *testing.T) {
	m := fastMachine()

	// cannot submit before choosing a method
	assert.ErrorIs(t, m.Submit(testCard), ErrBadTransition)

	// cannot await before committing
	_, err := m.Await(context.Background())
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestCancelBeforeProcessingOnly(t *testing.T) {
	m := fastMachine()
	require.NoError(t, m.Cancel(), "dismissing from method selection is free")

	m2 := fastMachine()
	require.NoError(t, m2.Choose(MethodCard))
	require.NoError(t, m2.Cancel(), "dismissing from card capture is free")
	assert.ErrorIs(t, m2.Choose(MethodCard), ErrCancelled)

	m3 := fastMachine()
	require.NoError(t, m3.Choose(MethodCard))
	require.NoError(t, m3.Submit(testCard))
	assert.ErrorIs(t, m3.Cancel(), ErrCommitted, "once processing starts the flow is committed")
}

func TestAwaitHonoursContext(t *testing.T) {
	m := New(time.Hour, time.Hour)
	require.NoError(t, m.Choose(MethodCard))
	require.NoError(t, m.Submit(testCard))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := m.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGatewayPay(t *testing.T) {
	g := &Gateway{Card: testCard, ProcessingDelay: time.Millisecond, SuccessDelay: time.Millisecond}
	token, err := g.Pay(context.Background(), 12500)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
}
