package market

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// PickupCodeLen is the length of the short numeric code a buyer reads out at
// the counter instead of showing the QR.
const PickupCodeLen = 4

// NewPickupCode returns a random numeric code. Independent of the order id on
// purpose: knowing one must not let you guess the other.
func NewPickupCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < PickupCodeLen; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("pickup code: %w", err)
	}
	return fmt.Sprintf("%0*d", PickupCodeLen, n), nil
}

// ValidPickupCode reports whether s is exactly PickupCodeLen digits.
func ValidPickupCode(s string) bool {
	if len(s) != PickupCodeLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
