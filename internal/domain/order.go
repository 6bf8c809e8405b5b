package domain

import "time"

// Order is the minimal order record the chat engine references. Order
// placement itself is owned by another service.
type Order struct {
	ID          string
	CustomerID  string
	TotalAmount int64
	Status      string
	CreatedAt   time.Time
}

// OrderDetails is the denormalized summary attached to session listings.
type OrderDetails struct {
	OrderNumber string
	TotalAmount int64
	Status      string
}

// OrderNumber derives the display reference for an order: the last six
// characters of its identifier. This is a display rule, never stored.
func OrderNumber(orderID string) string {
	if len(orderID) <= 6 {
		return orderID
	}
	return orderID[len(orderID)-6:]
}

// PlaceholderOrder is used when a session references an unknown order.
func PlaceholderOrder(orderID string) OrderDetails {
	return OrderDetails{OrderNumber: OrderNumber(orderID), TotalAmount: 0, Status: "Unknown"}
}

// Details converts an order record to its listing summary.
func (o *Order) Details() OrderDetails {
	return OrderDetails{
		OrderNumber: OrderNumber(o.ID),
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
	}
}
