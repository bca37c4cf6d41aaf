package checkout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/store/filestore"
)

const (
	testCustomerTemplate = "Your order is accepted!\nPickup time: {{.PickupTime}}\nOrder number: {{.OrderNumber}}"
	testStaffTemplate    = "NEW ORDER #{{.OrderNumber}}\nCustomer: {{.CustomerName}}\nPhone: {{.PhoneNumber}}\nItems:\n{{.Items}}\nPickup time: {{.PickupTime}}\nUser ID: {{.UserID}}"
)

type recordingNotifier struct {
	notifications []StaffNotification
	err           error
}

func (n *recordingNotifier) NotifyStaff(_ context.Context, notification StaffNotification) error {
	n.notifications = append(n.notifications, notification)
	return n.err
}

type failingStore struct{}

func (failingStore) NextOrderID() string { return "COFFEE_1000" }

func (failingStore) CreateOrder(context.Context, int64, string, string, []models.LineItem, string) (*models.Order, error) {
	return nil, errors.New("disk full")
}

func (failingStore) GetOrder(context.Context, string) (*models.Order, error) { return nil, nil }

func (failingStore) GetUserOrders(context.Context, int64) ([]*models.Order, error) { return nil, nil }

func (failingStore) GetLastUserOrder(context.Context, int64) (*models.Order, error) {
	return nil, nil
}

func (failingStore) CompleteOrder(context.Context, string) (bool, error) { return false, nil }

func (failingStore) Close() {}

func newTestService(t *testing.T) (*Service, *recordingNotifier) {
	t.Helper()
	st, err := filestore.New(filepath.Join(t.TempDir(), "orders.json"), "COFFEE", 1000, logger.NewNop())
	require.NoError(t, err)
	tmpl, err := ParseTemplates(testCustomerTemplate, testStaffTemplate)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	return NewService(st, notifier, tmpl, logger.NewNop()), notifier
}

func TestConfirm(t *testing.T) {
	svc, notifier := newTestService(t)

	items := []models.LineItem{
		{Key: "espresso", Name: "espresso", Price: 2.50, Quantity: 2},
	}
	result, err := svc.Confirm(context.Background(), 42, "Alice", "+100", items, "10 minutes")
	require.NoError(t, err)

	assert.Equal(t, "COFFEE_1000", result.Order.ID)
	assert.Equal(t, 5.00, result.Order.Total())

	assert.Contains(t, result.CustomerText, "Order number: COFFEE_1000")
	assert.Contains(t, result.CustomerText, "Pickup time: 10 minutes")

	assert.Contains(t, result.StaffText, "NEW ORDER #COFFEE_1000")
	assert.Contains(t, result.StaffText, "espresso x2 - $5.00")
	assert.Contains(t, result.StaffText, "Total: $5.00")
	assert.Contains(t, result.StaffText, "Phone: +100")

	require.Len(t, notifier.notifications, 1)
	notification := notifier.notifications[0]
	assert.Equal(t, "COFFEE_1000", notification.OrderNumber)
	assert.Equal(t, 5.00, notification.Total)
	assert.Equal(t, result.StaffText, notification.Text)
}

func TestConfirm_EmptyItems(t *testing.T) {
	svc, notifier := newTestService(t)

	_, err := svc.Confirm(context.Background(), 42, "Alice", "+100", nil, "10 minutes")
	assert.Error(t, err)
	assert.Empty(t, notifier.notifications)
}

func TestConfirm_PersistFailure(t *testing.T) {
	tmpl, err := ParseTemplates(testCustomerTemplate, testStaffTemplate)
	require.NoError(t, err)
	notifier := &recordingNotifier{}
	svc := NewService(failingStore{}, notifier, tmpl, logger.NewNop())

	items := []models.LineItem{
		{Key: "espresso", Name: "espresso", Price: 2.50, Quantity: 2},
	}
	_, err = svc.Confirm(context.Background(), 42, "Alice", "+100", items, "10 minutes")
	require.Error(t, err)

	// No order means no messaging of any kind.
	assert.Empty(t, notifier.notifications)
}

func TestConfirm_NotifierFailure(t *testing.T) {
	svc, notifier := newTestService(t)
	notifier.err = errors.New("broker down")

	items := []models.LineItem{
		{Key: "espresso", Name: "espresso", Price: 2.50, Quantity: 2},
	}
	result, err := svc.Confirm(context.Background(), 42, "Alice", "+100", items, "10 minutes")

	// A notification failure never rolls back the confirmed order.
	require.NoError(t, err)
	assert.Equal(t, "COFFEE_1000", result.Order.ID)
	assert.Len(t, notifier.notifications, 1)
}

func TestRenderItems(t *testing.T) {
	items := []models.LineItem{
		{Name: "espresso", Price: 2.50, Quantity: 2},
		{Name: "latte", Price: 4.00, Quantity: 1},
	}

	text := RenderItems(items)
	assert.Contains(t, text, "• espresso x2 - $5.00")
	assert.Contains(t, text, "• latte x1 - $4.00")
	assert.Contains(t, text, "Total: $9.00")
}

func TestParseTemplates_Invalid(t *testing.T) {
	_, err := ParseTemplates("{{.Broken", testStaffTemplate)
	assert.Error(t, err)

	_, err = ParseTemplates(testCustomerTemplate, "{{.Broken")
	assert.Error(t, err)
}

func TestParseTemplates_FieldTypo(t *testing.T) {
	// A template that parses but references a nonexistent field must fail
	// here, before any order can be persisted against it.
	_, err := ParseTemplates("Order number: {{.OrderNumbr}}", testStaffTemplate)
	assert.Error(t, err)

	_, err = ParseTemplates(testCustomerTemplate, "Customer: {{.CustomrName}}")
	assert.Error(t, err)
}
