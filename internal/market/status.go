package market

type OrderStatus string

const (
	StatusReserved  OrderStatus = "reserved"
	StatusPlaced    OrderStatus = "placed"
	StatusCollected OrderStatus = "collected"
	StatusCancelled OrderStatus = "cancelled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusReserved:  {StatusPlaced: true, StatusCancelled: true},
	StatusPlaced:    {StatusCollected: true},
	StatusCollected: {},
	StatusCancelled: {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}
