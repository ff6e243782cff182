package checkout

import (
	"sync"
	"time"
)

// Unconfirmed is a payment that finished locally but whose confirmation call
// failed. It is a reconciliation task for the buyer, not a silent failure.
type Unconfirmed struct {
	OrderID    string
	PaymentRef string
	Reason     string
	At         time.Time
}

// Journal keeps unconfirmed payments until the buyer acknowledges them.
type Journal struct {
	mu      sync.Mutex
	entries map[string]Unconfirmed // order id -> entry
}

func NewJournal() *Journal {
	return &Journal{entries: make(map[string]Unconfirmed)}
}

func (j *Journal) Record(orderID, paymentRef string, cause error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	j.entries[orderID] = Unconfirmed{
		OrderID:    orderID,
		PaymentRef: paymentRef,
		Reason:     reason,
		At:         time.Now().UTC(),
	}
}

func (j *Journal) Pending() []Unconfirmed {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Unconfirmed, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e)
	}
	return out
}

func (j *Journal) Acknowledge(orderID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[orderID]; !ok {
		return false
	}
	delete(j.entries, orderID)
	return true
}
