package market

const (
	TopicOrderCreated    = "order.created"
	TopicOrderPlaced     = "order.placed"
	TopicOrderCollected  = "order.collected"
	TopicOrderCancelled  = "order.cancelled"
	TopicListingSoldOut  = "listing.soldout"
	TopicListingRestock  = "listing.restocked"
)

// Partition key = order id so every event for one order keeps its ordering.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
