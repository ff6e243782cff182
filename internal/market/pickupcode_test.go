package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPickupCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := NewPickupCode()
		require.NoError(t, err)
		assert.Len(t, code, PickupCodeLen)
		assert.True(t, ValidPickupCode(code), "generated code %q must validate", code)
		seen[code] = true
	}
	// 50 draws from 10000 codes: collisions possible, a single value is not
	assert.Greater(t, len(seen), 1)
}

func TestValidPickupCode(t *testing.T) {
	assert.True(t, ValidPickupCode("0000"))
	assert.True(t, ValidPickupCode("1234"))
	assert.False(t, ValidPickupCode("123"))
	assert.False(t, ValidPickupCode("12345"))
	assert.False(t, ValidPickupCode("12a4"))
	assert.False(t, ValidPickupCode(""))
	assert.False(t, ValidPickupCode("12 4"))
}
