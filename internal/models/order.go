package models

import "time"

// OrderStatus represents the lifecycle status of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusCompleted OrderStatus = "completed"
)

// LineItem is one item+quantity entry within a draft or finalized order.
// The catalog key is carried for the in-progress draft only; persisted
// orders keep just name, price and quantity.
type LineItem struct {
	Key      string  `json:"-"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Subtotal returns the price of the line, unit price times quantity.
func (li LineItem) Subtotal() float64 {
	return li.Price * float64(li.Quantity)
}

// SnapshotItems copies line items for persistence, dropping the draft-only
// catalog key so a stored order round-trips field for field.
func SnapshotItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		item.Key = ""
		out[i] = item
	}
	return out
}

// Order is the durable record created when a customer confirms a draft.
// Field names are the stable persisted layout.
type Order struct {
	ID          string      `json:"order_id"`
	UserID      int64       `json:"user_id"`
	UserName    string      `json:"user_name"`
	PhoneNumber string      `json:"phone_number"`
	Items       []LineItem  `json:"items"`
	PickupTime  string      `json:"pickup_time"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	CompletedAt *time.Time  `json:"completed_at"`
}

// Total returns the sum of line subtotals. No tax or discount logic.
func (o *Order) Total() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (o *Order) Clone() *Order {
	clone := *o
	clone.Items = make([]LineItem, len(o.Items))
	copy(clone.Items, o.Items)
	if o.CompletedAt != nil {
		completedAt := *o.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return &clone
}
