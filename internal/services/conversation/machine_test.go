package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/menu"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/services/checkout"
	"coffee-shop-bot/internal/store"
	"coffee-shop-bot/internal/store/filestore"
	"coffee-shop-bot/internal/transport"
)

const (
	testWelcome        = "Welcome to our Coffee Shop!"
	testContactRequest = "Please share your contact information."
)

type captureNotifier struct {
	notifications []checkout.StaffNotification
}

func (n *captureNotifier) NotifyStaff(_ context.Context, notification checkout.StaffNotification) error {
	n.notifications = append(n.notifications, notification)
	return nil
}

type fixture struct {
	machine  *Machine
	store    store.Store
	sessions *Manager
	notifier *captureNotifier
}

func testCatalog(t *testing.T) *menu.Catalog {
	t.Helper()
	catalog, err := menu.New([]menu.Category{
		{
			Key:  "coffee",
			Name: "Coffee",
			Items: []menu.Item{
				{Key: "espresso", Name: "espresso", Price: 2.50},
				{Key: "cappuccino", Name: "cappuccino", Price: 4.00},
			},
		},
		{
			Key:  "desserts",
			Name: "Desserts",
			Items: []menu.Item{
				{Key: "tiramisu", Name: "tiramisu", Price: 5.50},
			},
		},
	})
	require.NoError(t, err)
	return catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewNop()

	st, err := filestore.New(filepath.Join(t.TempDir(), "orders.json"), "COFFEE", 1000, log)
	require.NoError(t, err)

	tmpl, err := checkout.ParseTemplates(
		"Your order is accepted!\nPickup time: {{.PickupTime}}\nOrder number: {{.OrderNumber}}",
		"NEW ORDER #{{.OrderNumber}}\nCustomer: {{.CustomerName}}\nPhone: {{.PhoneNumber}}\nItems:\n{{.Items}}",
	)
	require.NoError(t, err)

	notifier := &captureNotifier{}
	co := checkout.NewService(st, notifier, tmpl, log)
	sessions := NewManager(0, log)

	return &fixture{
		machine:  NewMachine(testCatalog(t), st, co, sessions, testWelcome, testContactRequest, []int{10, 20, 30}, log),
		store:    st,
		sessions: sessions,
		notifier: notifier,
	}
}

func (f *fixture) cmd(userID int64, command string) transport.Reply {
	return f.machine.Handle(context.Background(), transport.Event{UserID: userID, UserName: "Alice", Command: command})
}

func (f *fixture) cb(userID int64, data string) transport.Reply {
	return f.machine.Handle(context.Background(), transport.Event{UserID: userID, UserName: "Alice", Callback: data})
}

func (f *fixture) text(userID int64, text string) transport.Reply {
	return f.machine.Handle(context.Background(), transport.Event{UserID: userID, UserName: "Alice", Text: text})
}

func (f *fixture) contact(userID int64, phone string) transport.Reply {
	return f.machine.Handle(context.Background(), transport.Event{
		UserID:   userID,
		UserName: "Alice",
		Contact:  &transport.Contact{PhoneNumber: phone},
	})
}

func (f *fixture) state(userID int64) State {
	var state State
	f.sessions.Do(userID, func(s *Session) { state = s.State })
	return state
}

func keyboardData(reply transport.Reply) []string {
	var data []string
	for _, row := range reply.Keyboard {
		for _, button := range row {
			data = append(data, button.Data)
		}
	}
	return data
}

func TestStartFlow(t *testing.T) {
	f := newFixture(t)

	reply := f.cmd(1, CommandStart)
	assert.Contains(t, reply.Text, testWelcome)

	data := keyboardData(reply)
	assert.Contains(t, data, "category_coffee")
	assert.Contains(t, data, "category_desserts")
	assert.NotContains(t, data, "repeat_order", "no repeat shortcut without a prior order")
	assert.Equal(t, StateCategory, f.state(1))
}

func TestFullOrderFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cmd(1, CommandStart)

	reply := f.cb(1, "category_coffee")
	assert.Contains(t, reply.Text, "Please select an item")
	assert.Contains(t, keyboardData(reply), "item_espresso")

	reply = f.cb(1, "item_espresso")
	assert.Contains(t, reply.Text, "How many")

	reply = f.cb(1, "qty_2")
	assert.Contains(t, reply.Text, "Added 2x espresso")

	reply = f.cb(1, "proceed_checkout")
	assert.Contains(t, reply.Text, "pick up")
	assert.Contains(t, keyboardData(reply), "pickup_10")

	reply = f.cb(1, "pickup_10")
	assert.True(t, reply.RequestContact)
	assert.Equal(t, testContactRequest, reply.Text)

	reply = f.contact(1, "+15551234")
	assert.Contains(t, reply.Text, "ORDER SUMMARY")
	assert.Contains(t, reply.Text, "espresso x2 - $5.00")
	assert.Contains(t, reply.Text, "Total: $5.00")
	assert.Contains(t, reply.Text, "Phone: +15551234")

	reply = f.cb(1, "confirm_order")
	assert.Contains(t, reply.Text, "Order number: COFFEE_1000")
	assert.Equal(t, StateIdle, f.state(1))

	orders, err := f.store.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	order := orders[0]
	assert.Equal(t, "COFFEE_1000", order.ID)
	assert.Equal(t, "In 10 minutes", order.PickupTime)
	assert.Equal(t, "+15551234", order.PhoneNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "espresso", order.Items[0].Name)
	assert.Equal(t, 2, order.Items[0].Quantity)
	assert.Equal(t, 5.00, order.Total())

	require.Len(t, f.notifier.notifications, 1)
	notification := f.notifier.notifications[0]
	assert.Contains(t, notification.Text, "espresso x2 - $5.00")
	assert.Contains(t, notification.Text, "Total: $5.00")
}

func TestAddMoreKeepsAccumulatedItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")
	f.cb(1, "qty_1")

	// Looping back for a second item keeps the first one.
	reply := f.cb(1, "add_more")
	assert.Contains(t, keyboardData(reply), "category_desserts")
	assert.NotContains(t, keyboardData(reply), "repeat_order")

	f.cb(1, "category_desserts")
	f.cb(1, "item_tiramisu")
	f.cb(1, "qty_2")
	f.cb(1, "proceed_checkout")
	f.cb(1, "pickup_20")
	f.contact(1, "+100")
	f.cb(1, "confirm_order")

	orders, err := f.store.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, "espresso", orders[0].Items[0].Name)
	assert.Equal(t, "tiramisu", orders[0].Items[1].Name)
	assert.Equal(t, 13.50, orders[0].Total())
}

func TestManualQuantity(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")

	reply := f.cb(1, "qty_manual")
	assert.Contains(t, reply.Text, "enter the quantity")

	for _, input := range []string{"0", "21", "-3", "abc", "1.5", ""} {
		reply = f.text(1, input)
		assert.Equal(t, msgQuantityRetry, reply.Text, "input %q should be rejected", input)
		assert.Equal(t, StateQuantity, f.state(1))
	}

	reply = f.text(1, " 20 ")
	assert.Contains(t, reply.Text, "Added 20x espresso")
	assert.Equal(t, StateMoreItems, f.state(1))
}

func TestManualPickupTime(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")
	f.cb(1, "qty_1")
	f.cb(1, "proceed_checkout")

	reply := f.cb(1, "pickup_manual")
	assert.Contains(t, reply.Text, "enter pickup time")

	reply = f.text(1, "whenever")
	assert.Equal(t, msgFallback, reply.Text)
	assert.Equal(t, StatePickupTime, f.state(1))

	reply = f.text(1, "in 45 Minutes")
	assert.True(t, reply.RequestContact)
	assert.Equal(t, StateContact, f.state(1))
}

func TestContactFallback(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")
	f.cb(1, "qty_1")
	f.cb(1, "proceed_checkout")
	f.cb(1, "pickup_10")

	// Plain text instead of a shared contact still moves the order along.
	reply := f.text(1, "no thanks")
	assert.Contains(t, reply.Text, "Phone: Not provided")
	assert.Equal(t, StateConfirm, f.state(1))
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")
	f.cb(1, "qty_1")
	f.cb(1, "proceed_checkout")
	f.cb(1, "pickup_10")
	f.contact(1, "+100")

	reply := f.cb(1, "cancel_order")
	assert.Equal(t, msgOrderCancelled, reply.Text)
	assert.Equal(t, StateIdle, f.state(1))

	orders, err := f.store.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, f.notifier.notifications)
}

func TestBackNavigation(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")

	reply := f.cb(1, "back_to_categories")
	assert.Contains(t, keyboardData(reply), "category_coffee")
	assert.Equal(t, StateCategory, f.state(1))

	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")

	reply = f.cb(1, "back_to_items")
	assert.Contains(t, keyboardData(reply), "item_espresso")
	assert.Equal(t, StateItem, f.state(1))
}

func TestStaleCallback(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")

	// A button from an earlier step re-renders the current prompt.
	reply := f.cb(1, "category_desserts")
	assert.Contains(t, reply.Text, "How many")
	assert.Equal(t, StateQuantity, f.state(1))
}

func TestCallbackWithoutConversation(t *testing.T) {
	f := newFixture(t)

	reply := f.cb(1, "confirm_order")
	assert.Equal(t, msgStartOver, reply.Text)
	assert.Equal(t, StateIdle, f.state(1))
}

func TestUnknownCategoryCallback(t *testing.T) {
	f := newFixture(t)

	f.cmd(1, CommandStart)
	reply := f.cb(1, "category_sushi")
	assert.Contains(t, keyboardData(reply), "category_coffee")
	assert.Equal(t, StateCategory, f.state(1))
}

func TestRepeat_NoPriorOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.cmd(1, CommandRepeat)
	assert.Equal(t, msgNoLastOrder, reply.Text)

	orders, err := f.store.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestRepeatOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateOrder(ctx, 1, "Alice", "+100",
		[]models.LineItem{{Key: "espresso", Name: "espresso", Price: 2.50, Quantity: 2}},
		"In 10 minutes")
	require.NoError(t, err)

	// With a prior order, the fresh start offers the shortcut.
	reply := f.cmd(1, CommandStart)
	assert.Contains(t, keyboardData(reply), "repeat_order")

	reply = f.cb(1, "repeat_order")
	assert.Contains(t, reply.Text, "Order number: COFFEE_1001")
	assert.Equal(t, StateIdle, f.state(1))

	orders, err := f.store.GetUserOrders(ctx, 1)
	require.NoError(t, err)
	require.Len(t, orders, 2)
}

func TestRepeat_DoesNotCrossUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.CreateOrder(ctx, 2, "Bob", "+200",
		[]models.LineItem{{Key: "espresso", Name: "espresso", Price: 2.50, Quantity: 1}},
		"In 10 minutes")
	require.NoError(t, err)

	reply := f.cmd(1, CommandRepeat)
	assert.Equal(t, msgNoLastOrder, reply.Text)
}

func TestConfirmFailureKeepsDraft(t *testing.T) {
	log := logger.NewNop()
	st, err := filestore.New(filepath.Join(t.TempDir(), "orders.json"), "COFFEE", 1000, log)
	require.NoError(t, err)

	tmpl, err := checkout.ParseTemplates("ok {{.OrderNumber}}", "staff {{.OrderNumber}}")
	require.NoError(t, err)

	// The checkout path persists through a broken store while session
	// handling still works against the good one.
	co := checkout.NewService(brokenStore{}, &captureNotifier{}, tmpl, log)
	sessions := NewManager(0, log)
	f := &fixture{
		machine:  NewMachine(testCatalog(t), st, co, sessions, testWelcome, testContactRequest, []int{10}, log),
		store:    st,
		sessions: sessions,
	}

	f.cmd(1, CommandStart)
	f.cb(1, "category_coffee")
	f.cb(1, "item_espresso")
	f.cb(1, "qty_1")
	f.cb(1, "proceed_checkout")
	f.cb(1, "pickup_10")
	f.contact(1, "+100")

	reply := f.cb(1, "confirm_order")
	assert.Equal(t, msgConfirmFailed, reply.Text)
	assert.Equal(t, StateConfirm, f.state(1), "draft is kept for a retry")
}

func TestFallbackText(t *testing.T) {
	f := newFixture(t)

	reply := f.text(1, "hello")
	assert.Equal(t, msgFallback, reply.Text)
}

func TestHelpCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.cmd(1, CommandHelp)
	assert.Contains(t, reply.Text, "/start")
	assert.Contains(t, reply.Text, "/repeat")
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.cmd(1, "frobnicate")
	assert.Equal(t, msgFallback, reply.Text)
}

type brokenStore struct{}

func (brokenStore) NextOrderID() string { return "COFFEE_1000" }

func (brokenStore) CreateOrder(context.Context, int64, string, string, []models.LineItem, string) (*models.Order, error) {
	return nil, errors.New("disk full")
}

func (brokenStore) GetOrder(context.Context, string) (*models.Order, error) {
	return nil, store.ErrOrderNotFound
}

func (brokenStore) GetUserOrders(context.Context, int64) ([]*models.Order, error) { return nil, nil }

func (brokenStore) GetLastUserOrder(context.Context, int64) (*models.Order, error) {
	return nil, nil
}

func (brokenStore) CompleteOrder(context.Context, string) (bool, error) { return false, nil }

func (brokenStore) Close() {}
