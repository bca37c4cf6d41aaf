package store

import (
	"context"
	"errors"

	"coffee-shop-bot/internal/models"
)

// ErrOrderNotFound is returned when an order id does not exist.
var ErrOrderNotFound = errors.New("order not found")

// Store is the durable collection of orders plus id allocation. CreateOrder
// and CompleteOrder are serialized by implementations so concurrent
// confirmations never collide on the shared sequence counter.
type Store interface {
	// NextOrderID returns the id the next created order will receive,
	// without allocating it.
	NextOrderID() string

	// CreateOrder allocates the next id, stamps creation time, persists the
	// order durably and returns it. The sequence counter advances only when
	// the durable write succeeds.
	CreateOrder(ctx context.Context, userID int64, userName, phoneNumber string, items []models.LineItem, pickupTime string) (*models.Order, error)

	// GetOrder returns the order with the given id, or ErrOrderNotFound.
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)

	// GetUserOrders returns all orders placed by a user, in storage order.
	GetUserOrders(ctx context.Context, userID int64) ([]*models.Order, error)

	// GetLastUserOrder returns the user's most recently created order, or
	// nil when the user has none.
	GetLastUserOrder(ctx context.Context, userID int64) (*models.Order, error)

	// CompleteOrder transitions an order to completed and persists the
	// change. It reports false when the id does not exist.
	CompleteOrder(ctx context.Context, orderID string) (bool, error)

	// Close releases storage resources.
	Close()
}
