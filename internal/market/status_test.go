package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusReserved, StatusPlaced, true},
		{StatusReserved, StatusCancelled, true},
		{StatusReserved, StatusCollected, false},
		{StatusPlaced, StatusCollected, true},
		{StatusPlaced, StatusCancelled, false},
		{StatusPlaced, StatusReserved, false},
		{StatusCollected, StatusPlaced, false},
		{StatusCollected, StatusCancelled, false},
		{StatusCancelled, StatusPlaced, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, ListingSoldOut, deriveStatus(0))
	assert.Equal(t, ListingActive, deriveStatus(1))
	assert.Equal(t, ListingSoldOut, deriveStatus(-1))
}
