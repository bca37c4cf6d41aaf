package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/menu"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/services/checkout"
	"coffee-shop-bot/internal/store"
	"coffee-shop-bot/internal/transport"
)

// Callback data protocol shared with the chat transport.
const (
	cbCategoryPrefix   = "category_"
	cbItemPrefix       = "item_"
	cbQuantityPrefix   = "qty_"
	cbPickupPrefix     = "pickup_"
	cbQuantityManual   = "qty_manual"
	cbPickupManual     = "pickup_manual"
	cbBackToCategories = "back_to_categories"
	cbBackToItems      = "back_to_items"
	cbRepeatOrder      = "repeat_order"
	cbAddMore          = "add_more"
	cbProceedCheckout  = "proceed_checkout"
	cbConfirmOrder     = "confirm_order"
	cbCancelOrder      = "cancel_order"
)

// Commands surfaced to the transport layer.
const (
	CommandStart  = "start"
	CommandHelp   = "help"
	CommandMenu   = "menu"
	CommandRepeat = "repeat"
)

const (
	minQuantity = 1
	maxQuantity = 20
)

const (
	msgStartOver      = "Something went wrong with your order. Please start over with /start."
	msgFallback       = "Please use the buttons provided or type /start to begin a new order."
	msgQuantityRetry  = "Please enter a number between 1 and 20."
	msgConfirmFailed  = "Could not complete your order, please try again."
	msgNoLastOrder    = "No previous order found. Please start a new order with /start"
	msgOrderCancelled = "Order cancelled. You can start a new order anytime with /start"
)

// Machine drives a user's session through the ordering flow. It never
// returns an error to the transport: invalid, stale or out-of-sequence
// input always resolves to a reply.
type Machine struct {
	catalog        *menu.Catalog
	store          store.Store
	checkout       *checkout.Service
	sessions       *Manager
	welcome        string
	contactRequest string
	pickupTimes    []int
	log            logger.Logger
}

func NewMachine(catalog *menu.Catalog, st store.Store, co *checkout.Service, sessions *Manager, welcome, contactRequest string, pickupTimes []int, log logger.Logger) *Machine {
	return &Machine{
		catalog:        catalog,
		store:          st,
		checkout:       co,
		sessions:       sessions,
		welcome:        welcome,
		contactRequest: contactRequest,
		pickupTimes:    pickupTimes,
		log:            log,
	}
}

// Handle processes one incoming user action under the user's session lock.
func (m *Machine) Handle(ctx context.Context, ev transport.Event) transport.Reply {
	requestID := logger.GenerateRequestID()

	var reply transport.Reply
	m.sessions.Do(ev.UserID, func(s *Session) {
		reply = m.handle(ctx, requestID, s, ev)
	})
	return reply
}

func (m *Machine) handle(ctx context.Context, requestID string, s *Session, ev transport.Event) transport.Reply {
	m.log.Debug("event_received", requestID, "Handling user action",
		logger.Int64("user_id", ev.UserID),
		logger.String("state", s.State.String()),
		logger.String("command", ev.Command),
		logger.String("callback", ev.Callback))

	switch {
	case ev.Command != "":
		return m.handleCommand(ctx, requestID, s, ev)
	case ev.Callback != "":
		return m.handleCallback(ctx, requestID, s, ev)
	default:
		return m.handleText(ctx, requestID, s, ev)
	}
}

func (m *Machine) handleCommand(ctx context.Context, requestID string, s *Session, ev transport.Event) transport.Reply {
	switch ev.Command {
	case CommandStart, CommandMenu:
		return m.startFlow(ctx, requestID, s, ev)
	case CommandHelp:
		return helpReply()
	case CommandRepeat:
		return m.repeatOrder(ctx, requestID, s)
	default:
		return transport.Reply{Text: msgFallback}
	}
}

// startFlow begins a fresh order, discarding whatever draft existed.
func (m *Machine) startFlow(ctx context.Context, requestID string, s *Session, ev transport.Event) transport.Reply {
	s.Draft = Draft{}
	s.State = StateCategory

	reply := m.categoriesPrompt(ctx, requestID, s, true)
	reply.Text = m.welcome + "\n\nWhat would you like to order?"
	return reply
}

// categoriesPrompt renders the category keyboard. The repeat shortcut is
// offered only on a fresh start, when the user has a prior order and no
// accumulated draft items.
func (m *Machine) categoriesPrompt(ctx context.Context, requestID string, s *Session, offerRepeat bool) transport.Reply {
	var keyboard [][]transport.Button
	for _, cat := range m.catalog.Categories() {
		keyboard = append(keyboard, []transport.Button{
			{Label: cat.Name, Data: cbCategoryPrefix + cat.Key},
		})
	}

	if offerRepeat && len(s.Draft.Items) == 0 {
		last, err := m.store.GetLastUserOrder(ctx, s.UserID)
		if err != nil {
			m.log.Error("last_order_lookup_failed", requestID, "Failed to look up last order", err,
				logger.Int64("user_id", s.UserID))
		} else if last != nil {
			keyboard = append(keyboard, []transport.Button{
				{Label: "Repeat Last Order", Data: cbRepeatOrder},
			})
		}
	}

	return transport.Reply{
		Text:     "What would you like to order?",
		Keyboard: keyboard,
	}
}

func (m *Machine) handleCallback(ctx context.Context, requestID string, s *Session, ev transport.Event) transport.Reply {
	data := ev.Callback

	switch s.State {
	case StateCategory:
		return m.onCategoryCallback(ctx, requestID, s, data)
	case StateItem:
		return m.onItemCallback(ctx, requestID, s, data)
	case StateQuantity:
		return m.onQuantityCallback(requestID, s, data)
	case StateMoreItems:
		return m.onMoreItemsCallback(ctx, requestID, s, data)
	case StatePickupTime:
		return m.onPickupCallback(s, data)
	case StateContact:
		return m.contactPrompt()
	case StateConfirm:
		return m.onConfirmCallback(ctx, requestID, s, data)
	default:
		// A button press with no conversation in progress.
		return m.startOverReply(s)
	}
}

func (m *Machine) onCategoryCallback(ctx context.Context, requestID string, s *Session, data string) transport.Reply {
	if data == cbRepeatOrder {
		return m.repeatOrder(ctx, requestID, s)
	}

	if key, ok := strings.CutPrefix(data, cbCategoryPrefix); ok {
		items := m.catalog.Items(key)
		if len(items) == 0 {
			m.log.Warn("unknown_category", requestID, "Category not in catalog",
				logger.String("category", key))
			return m.categoriesPrompt(ctx, requestID, s, false)
		}
		s.Draft.Category = key
		s.State = StateItem
		return m.itemsPrompt(key)
	}

	// Stale button from a later step.
	return m.categoriesPrompt(ctx, requestID, s, false)
}

func (m *Machine) itemsPrompt(categoryKey string) transport.Reply {
	var keyboard [][]transport.Button
	for _, item := range m.catalog.Items(categoryKey) {
		label := fmt.Sprintf("%s - %s", item.Name, menu.FormatPrice(item.Price))
		keyboard = append(keyboard, []transport.Button{
			{Label: label, Data: cbItemPrefix + item.Key},
		})
	}
	keyboard = append(keyboard, []transport.Button{
		{Label: "Back to Categories", Data: cbBackToCategories},
	})

	return transport.Reply{
		Text:     fmt.Sprintf("%s\n\nPlease select an item:", m.catalog.CategoryName(categoryKey)),
		Keyboard: keyboard,
	}
}

func (m *Machine) onItemCallback(ctx context.Context, requestID string, s *Session, data string) transport.Reply {
	if s.Draft.Category == "" {
		return m.startOverReply(s)
	}

	if data == cbBackToCategories {
		s.State = StateCategory
		return m.categoriesPrompt(ctx, requestID, s, false)
	}

	if key, ok := strings.CutPrefix(data, cbItemPrefix); ok {
		item, err := m.catalog.Item(s.Draft.Category, key)
		if err != nil {
			m.log.Warn("unknown_item", requestID, "Item not in catalog",
				logger.String("category", s.Draft.Category),
				logger.String("item", key))
			return m.itemsPrompt(s.Draft.Category)
		}
		s.Draft.Pending = &PendingItem{Key: item.Key, Name: item.Name, Price: item.Price}
		s.State = StateQuantity
		return quantityPrompt(item.Name)
	}

	return m.itemsPrompt(s.Draft.Category)
}

func quantityPrompt(itemName string) transport.Reply {
	return transport.Reply{
		Text: fmt.Sprintf("%s\n\nHow many would you like?", itemName),
		Keyboard: [][]transport.Button{
			{
				{Label: "1", Data: cbQuantityPrefix + "1"},
				{Label: "2", Data: cbQuantityPrefix + "2"},
				{Label: "3", Data: cbQuantityPrefix + "3"},
			},
			{{Label: "Enter manually", Data: cbQuantityManual}},
			{{Label: "Back to Items", Data: cbBackToItems}},
		},
	}
}

func (m *Machine) onQuantityCallback(requestID string, s *Session, data string) transport.Reply {
	if s.Draft.Pending == nil {
		return m.startOverReply(s)
	}

	switch {
	case data == cbBackToItems:
		s.Draft.Pending = nil
		s.State = StateItem
		return m.itemsPrompt(s.Draft.Category)
	case data == cbQuantityManual:
		return transport.Reply{Text: "Please enter the quantity:"}
	}

	if raw, ok := strings.CutPrefix(data, cbQuantityPrefix); ok {
		qty, err := strconv.Atoi(raw)
		if err != nil || qty < minQuantity || qty > maxQuantity {
			return quantityPrompt(s.Draft.Pending.Name)
		}
		return m.addLineItem(s, qty)
	}

	return quantityPrompt(s.Draft.Pending.Name)
}

// addLineItem appends the pending item with the chosen quantity and moves
// on to the more-items decision. Re-selecting the same item appends a new
// line rather than merging.
func (m *Machine) addLineItem(s *Session, quantity int) transport.Reply {
	if s.Draft.Pending == nil {
		return m.startOverReply(s)
	}

	item := s.Draft.Pending
	s.Draft.Items = append(s.Draft.Items, models.LineItem{
		Key:      item.Key,
		Name:     item.Name,
		Price:    item.Price,
		Quantity: quantity,
	})
	s.Draft.Pending = nil
	s.State = StateMoreItems

	return transport.Reply{
		Text:     fmt.Sprintf("Added %dx %s to your order.\n\nWould you like to add more items?", quantity, item.Name),
		Keyboard: moreItemsKeyboard(),
	}
}

func moreItemsKeyboard() [][]transport.Button {
	return [][]transport.Button{
		{{Label: "Add more items", Data: cbAddMore}},
		{{Label: "Proceed to checkout", Data: cbProceedCheckout}},
	}
}

func (m *Machine) onMoreItemsCallback(ctx context.Context, requestID string, s *Session, data string) transport.Reply {
	switch data {
	case cbAddMore:
		// Loop back to category selection, keeping the accumulated items.
		s.State = StateCategory
		return m.categoriesPrompt(ctx, requestID, s, false)
	case cbProceedCheckout:
		if len(s.Draft.Items) == 0 {
			return m.startOverReply(s)
		}
		s.State = StatePickupTime
		return m.pickupPrompt()
	default:
		return transport.Reply{
			Text:     "Would you like to add more items?",
			Keyboard: moreItemsKeyboard(),
		}
	}
}

func (m *Machine) pickupPrompt() transport.Reply {
	var keyboard [][]transport.Button
	for _, minutes := range m.pickupTimes {
		keyboard = append(keyboard, []transport.Button{
			{Label: fmt.Sprintf("In %d minutes", minutes), Data: fmt.Sprintf("%s%d", cbPickupPrefix, minutes)},
		})
	}
	keyboard = append(keyboard, []transport.Button{
		{Label: "Enter time manually", Data: cbPickupManual},
	})

	return transport.Reply{
		Text:     "When would you like to pick up your order?",
		Keyboard: keyboard,
	}
}

func (m *Machine) onPickupCallback(s *Session, data string) transport.Reply {
	if data == cbPickupManual {
		return transport.Reply{Text: "Please enter pickup time (e.g., '15 minutes', 'in 30 minutes'):"}
	}

	if raw, ok := strings.CutPrefix(data, cbPickupPrefix); ok {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return m.pickupPrompt()
		}
		s.Draft.PickupTime = fmt.Sprintf("In %d minutes", minutes)
		s.State = StateContact
		return m.contactPrompt()
	}

	return m.pickupPrompt()
}

func (m *Machine) contactPrompt() transport.Reply {
	return transport.Reply{
		Text:           m.contactRequest,
		RequestContact: true,
	}
}

// collectContact records contact details and renders the order summary.
// This step cannot reject input: without a shared contact the phone is
// recorded as "Not provided".
func (m *Machine) collectContact(s *Session, ev transport.Event) transport.Reply {
	phone := "Not provided"
	if ev.Contact != nil && ev.Contact.PhoneNumber != "" {
		phone = ev.Contact.PhoneNumber
	}
	s.Draft.PhoneNumber = phone
	s.Draft.UserName = ev.UserName
	s.State = StateConfirm

	return summaryPrompt(&s.Draft)
}

func summaryPrompt(d *Draft) transport.Reply {
	var b strings.Builder
	b.WriteString("ORDER SUMMARY\n\n")
	b.WriteString(checkout.RenderItems(d.Items))
	fmt.Fprintf(&b, "\nPickup time: %s\n", d.PickupTime)
	fmt.Fprintf(&b, "Customer: %s\n", d.UserName)
	fmt.Fprintf(&b, "Phone: %s\n\n", d.PhoneNumber)
	b.WriteString("Please confirm your order:")

	return transport.Reply{
		Text: b.String(),
		Keyboard: [][]transport.Button{
			{{Label: "Confirm Order", Data: cbConfirmOrder}},
			{{Label: "Cancel", Data: cbCancelOrder}},
		},
	}
}

func (m *Machine) onConfirmCallback(ctx context.Context, requestID string, s *Session, data string) transport.Reply {
	switch data {
	case cbCancelOrder:
		s.Draft = Draft{}
		s.State = StateIdle
		return transport.Reply{Text: msgOrderCancelled}
	case cbConfirmOrder:
		return m.confirmOrder(ctx, requestID, s)
	default:
		return summaryPrompt(&s.Draft)
	}
}

func (m *Machine) confirmOrder(ctx context.Context, requestID string, s *Session) transport.Reply {
	if len(s.Draft.Items) == 0 {
		return m.startOverReply(s)
	}

	res, err := m.checkout.Confirm(ctx, s.UserID, s.Draft.UserName, s.Draft.PhoneNumber, s.Draft.Items, s.Draft.PickupTime)
	if err != nil {
		m.log.Error("order_confirmation_failed", requestID, "Order confirmation failed", err,
			logger.Int64("user_id", s.UserID))
		// The draft and state are kept so the user can retry.
		return transport.Reply{Text: msgConfirmFailed}
	}

	s.Draft = Draft{}
	s.State = StateIdle
	return transport.Reply{Text: res.CustomerText}
}

// repeatOrder re-creates the user's last order as a brand-new order, using
// the stored items, contact and pickup time without re-confirming them.
func (m *Machine) repeatOrder(ctx context.Context, requestID string, s *Session) transport.Reply {
	last, err := m.store.GetLastUserOrder(ctx, s.UserID)
	if err != nil {
		m.log.Error("last_order_lookup_failed", requestID, "Failed to look up last order", err,
			logger.Int64("user_id", s.UserID))
		return transport.Reply{Text: msgConfirmFailed}
	}
	if last == nil {
		s.Draft = Draft{}
		s.State = StateIdle
		return transport.Reply{Text: msgNoLastOrder}
	}

	res, err := m.checkout.Confirm(ctx, s.UserID, last.UserName, last.PhoneNumber, last.Items, last.PickupTime)
	if err != nil {
		m.log.Error("order_confirmation_failed", requestID, "Repeat order failed", err,
			logger.Int64("user_id", s.UserID))
		return transport.Reply{Text: msgConfirmFailed}
	}

	s.Draft = Draft{}
	s.State = StateIdle
	return transport.Reply{Text: res.CustomerText}
}

func (m *Machine) handleText(ctx context.Context, requestID string, s *Session, ev transport.Event) transport.Reply {
	switch s.State {
	case StateQuantity:
		qty, err := parseQuantity(ev.Text)
		if err != nil {
			m.log.Debug("quantity_rejected", requestID, "Manual quantity rejected",
				logger.String("input", ev.Text))
			return transport.Reply{Text: msgQuantityRetry}
		}
		return m.addLineItem(s, qty)
	case StatePickupTime:
		if containsTimeUnit(ev.Text) {
			s.Draft.PickupTime = ev.Text
			s.State = StateContact
			return m.contactPrompt()
		}
		return transport.Reply{Text: msgFallback}
	case StateContact:
		return m.collectContact(s, ev)
	default:
		return transport.Reply{Text: msgFallback}
	}
}

// startOverReply resets the session after an action that assumed draft
// state which does not exist.
func (m *Machine) startOverReply(s *Session) transport.Reply {
	s.Draft = Draft{}
	s.State = StateIdle
	return transport.Reply{Text: msgStartOver}
}

// parseQuantity validates free-text quantity input.
func parseQuantity(text string) (int, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, &ValidationError{Field: "quantity", Reason: "must be a whole number"}
	}
	if qty < minQuantity || qty > maxQuantity {
		return 0, &ValidationError{
			Field:  "quantity",
			Reason: fmt.Sprintf("must be between %d and %d", minQuantity, maxQuantity),
		}
	}
	return qty, nil
}

// containsTimeUnit accepts manual pickup input that mentions a time unit.
func containsTimeUnit(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "minute") || strings.Contains(lower, "min")
}

func helpReply() transport.Reply {
	return transport.Reply{Text: `Coffee Shop Bot Help

Commands:
• /start - Start ordering
• /help - Show this help
• /menu - View menu categories
• /repeat - Repeat your last order

How to order:
1. Choose a category
2. Select your item
3. Choose quantity
4. Add more items or proceed
5. Select pickup time
6. Share your contact
7. Confirm your order

That's it! Your order will be sent to our staff.`}
}
