package market

import "time"

type ListingStatus string

const (
	ListingActive  ListingStatus = "active"
	ListingSoldOut ListingStatus = "sold_out"
)

type Listing struct {
	ID              string        `json:"_id"`
	VendorID        string        `json:"vendorId"`
	Title           string        `json:"title"`
	Description     string        `json:"description,omitempty"`
	OriginalCents   int           `json:"originalPrice"`
	DiscountedCents int           `json:"discountedPrice"`
	Quantity        int           `json:"quantity"`
	Remaining       int           `json:"remainingQuantity"`
	Status          ListingStatus `json:"status"`
	PickupStart     time.Time     `json:"pickupStart"`
	PickupEnd       time.Time     `json:"pickupEnd"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// deriveStatus: listing status follows remaining stock, never set directly.
func deriveStatus(remaining int) ListingStatus {
	if remaining <= 0 {
		return ListingSoldOut
	}
	return ListingActive
}

type Order struct {
	ID         string      `json:"_id"`
	BuyerID    string      `json:"userId"`
	VendorID   string      `json:"vendorId"`
	Items      []OrderItem `json:"items"`
	TotalCents int         `json:"totalAmount"`
	Status     OrderStatus `json:"orderStatus"`
	PickupCode string      `json:"pickupCode,omitempty"`
	PaymentRef string      `json:"paymentRef,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type OrderItem struct {
	ListingID string `json:"listingId"`
	Title     string `json:"title,omitempty"`
	Qty       int    `json:"quantity"`
	// unit price at reservation time, taken from the listing, not the client
	PriceCents int `json:"price"`
}

// ItemInput is the order-creation request shape: listing + desired quantity.
type ItemInput struct {
	ListingID string `json:"listingId"`
	Qty       int    `json:"quantity"`
}

type CartEntry struct {
	BuyerID   string    `json:"userId"`
	ListingID string    `json:"listingId"`
	Qty       int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}
