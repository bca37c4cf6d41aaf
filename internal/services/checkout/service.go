package checkout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/menu"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/store"
)

// Notifier dispatches a staff notification for a freshly created order.
// Dispatch happens after the order is durably persisted; a failure is
// logged and never rolls the order back.
type Notifier interface {
	NotifyStaff(ctx context.Context, notification StaffNotification) error
}

// StaffNotification carries both the structured order fields and the
// rendered staff text.
type StaffNotification struct {
	OrderNumber  string  `json:"order_number"`
	CustomerName string  `json:"customer_name"`
	PhoneNumber  string  `json:"phone_number"`
	Items        string  `json:"items"`
	Total        float64 `json:"total"`
	PickupTime   string  `json:"pickup_time"`
	UserID       int64   `json:"user_id"`
	Text         string  `json:"text"`
}

// CustomerMessageData is the data available to the customer confirmation
// template.
type CustomerMessageData struct {
	PickupTime  string
	OrderNumber string
}

// StaffMessageData is the data available to the staff notification
// template.
type StaffMessageData struct {
	OrderNumber  string
	CustomerName string
	PhoneNumber  string
	Items        string
	PickupTime   string
	UserID       int64
}

// Templates holds the parsed outbound message templates.
type Templates struct {
	customer *template.Template
	staff    *template.Template
}

// ParseTemplates parses both message templates and renders each against
// zero-value data. Called at startup so a broken template, including a
// field typo that only Execute can catch, never surfaces after an order
// has already been persisted.
func ParseTemplates(customerTmpl, staffTmpl string) (*Templates, error) {
	customer, err := template.New("order_confirmed").Option("missingkey=error").Parse(customerTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse customer template: %w", err)
	}
	if err := customer.Execute(io.Discard, CustomerMessageData{}); err != nil {
		return nil, fmt.Errorf("customer template does not match its data: %w", err)
	}
	staff, err := template.New("staff_order").Option("missingkey=error").Parse(staffTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse staff template: %w", err)
	}
	if err := staff.Execute(io.Discard, StaffMessageData{}); err != nil {
		return nil, fmt.Errorf("staff template does not match its data: %w", err)
	}
	return &Templates{customer: customer, staff: staff}, nil
}

// Result is what a successful confirmation produces.
type Result struct {
	Order        *models.Order
	CustomerText string
	StaffText    string
}

// Service turns a completed draft into a persisted order and renders the
// customer confirmation and staff summary.
type Service struct {
	store    store.Store
	notifier Notifier
	tmpl     *Templates
	log      logger.Logger
}

func NewService(st store.Store, notifier Notifier, tmpl *Templates, log logger.Logger) *Service {
	return &Service{store: st, notifier: notifier, tmpl: tmpl, log: log}
}

// Confirm persists a new order and dispatches the staff notification. When
// the durable write fails no order exists, no messaging happens and the
// error is returned to the caller.
func (s *Service) Confirm(ctx context.Context, userID int64, userName, phoneNumber string, items []models.LineItem, pickupTime string) (*Result, error) {
	requestID := logger.GenerateRequestID()

	if len(items) == 0 {
		return nil, fmt.Errorf("cannot confirm an order with no items")
	}

	order, err := s.store.CreateOrder(ctx, userID, userName, phoneNumber, items, pickupTime)
	if err != nil {
		s.log.Error("order_persist_failed", requestID, "Failed to persist order", err,
			logger.Int64("user_id", userID))
		return nil, err
	}

	itemsText := RenderItems(order.Items)

	customerText, err := render(s.tmpl.customer, CustomerMessageData{
		PickupTime:  order.PickupTime,
		OrderNumber: order.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render customer confirmation: %w", err)
	}

	staffText, err := render(s.tmpl.staff, StaffMessageData{
		OrderNumber:  order.ID,
		CustomerName: order.UserName,
		PhoneNumber:  order.PhoneNumber,
		Items:        itemsText,
		PickupTime:   order.PickupTime,
		UserID:       order.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render staff summary: %w", err)
	}

	s.log.Info("order_created", requestID, "Order created",
		logger.String("order_id", order.ID),
		logger.Int64("user_id", order.UserID),
		logger.Float64("total", order.Total()))

	// The order is durable at this point. Notification failure is logged
	// for operator follow-up and does not affect the confirmation.
	if err := s.notifier.NotifyStaff(ctx, StaffNotification{
		OrderNumber:  order.ID,
		CustomerName: order.UserName,
		PhoneNumber:  order.PhoneNumber,
		Items:        itemsText,
		Total:        order.Total(),
		PickupTime:   order.PickupTime,
		UserID:       order.UserID,
		Text:         staffText,
	}); err != nil {
		s.log.Error("staff_notification_failed", requestID, "Failed to notify staff", err,
			logger.String("order_id", order.ID))
	}

	return &Result{Order: order, CustomerText: customerText, StaffText: staffText}, nil
}

// RenderItems formats the itemized list with per-line subtotals and the
// order total.
func RenderItems(items []models.LineItem) string {
	var b strings.Builder
	var total float64
	for _, item := range items {
		subtotal := item.Subtotal()
		total += subtotal
		fmt.Fprintf(&b, "• %s x%d - %s\n", item.Name, item.Quantity, menu.FormatPrice(subtotal))
	}
	fmt.Fprintf(&b, "\nTotal: %s", menu.FormatPrice(total))
	return b.String()
}

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
