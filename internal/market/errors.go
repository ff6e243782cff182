package market

import "errors"

// Domain errors surfaced to API clients verbatim. Verification errors stay
// distinct: a vendor operator must be able to tell "already collected" from
// "wrong code" at the counter.
var (
	ErrListingNotFound   = errors.New("listing not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInsufficientStock = errors.New("requested quantity no longer available")
	ErrListingSoldOut    = errors.New("listing is sold out")
	ErrAlreadyConfirmed  = errors.New("payment already recorded for this order")
	ErrPaymentRefUsed    = errors.New("payment reference already used")
	ErrNotConfirmable    = errors.New("order is not awaiting payment")
	ErrAlreadyCollected  = errors.New("order already collected")
	ErrCodeNotFound      = errors.New("no active order matches that code")
	ErrNotCollectable    = errors.New("order is not ready for pickup")
)
