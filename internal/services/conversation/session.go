package conversation

import (
	"context"
	"sync"
	"time"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/models"
)

// State is a step in the ordering conversation.
type State int

const (
	StateIdle State = iota
	StateCategory
	StateItem
	StateQuantity
	StateMoreItems
	StatePickupTime
	StateContact
	StateConfirm
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCategory:
		return "category_selection"
	case StateItem:
		return "item_selection"
	case StateQuantity:
		return "quantity_selection"
	case StateMoreItems:
		return "more_items_decision"
	case StatePickupTime:
		return "pickup_time_selection"
	case StateContact:
		return "contact_collection"
	case StateConfirm:
		return "order_confirmation"
	default:
		return "unknown"
	}
}

// PendingItem is the item a user has picked but not yet given a quantity
// for.
type PendingItem struct {
	Key   string
	Name  string
	Price float64
}

// Draft is the in-progress, not-yet-persisted order a user is assembling.
// It lives only in memory and is discarded on confirmation or
// cancellation.
type Draft struct {
	Category    string
	Pending     *PendingItem
	Items       []models.LineItem
	PickupTime  string
	UserName    string
	PhoneNumber string
}

// Session is one user's conversation state. A session is mutated only
// while its manager holds the per-user lock.
type Session struct {
	mu         sync.Mutex
	UserID     int64
	State      State
	Draft      Draft
	lastActive time.Time
}

// Manager is the keyed session store. Access to a session goes through Do,
// which holds that user's lock for the duration, so two actions for the
// same user never interleave even if the transport misbehaves.
type Manager struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	ttl      time.Duration
	log      logger.Logger
}

// NewManager creates a session manager. Sessions idle longer than ttl are
// evicted by the sweeper; ttl <= 0 disables eviction.
func NewManager(ttl time.Duration, log logger.Logger) *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
		ttl:      ttl,
		log:      log,
	}
}

func (m *Manager) get(userID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		s = &Session{UserID: userID, State: StateIdle}
		m.sessions[userID] = s
	}
	return s
}

// Do runs fn with exclusive access to the user's session. A session the
// sweeper evicted between lookup and lock is discarded and the lookup
// retried, so fn never mutates an orphan the map no longer holds.
func (m *Manager) Do(userID int64, fn func(s *Session)) {
	for {
		s := m.get(userID)
		s.mu.Lock()

		m.mu.Lock()
		live := m.sessions[userID] == s
		m.mu.Unlock()
		if !live {
			s.mu.Unlock()
			continue
		}

		s.lastActive = time.Now()
		fn(s)
		s.mu.Unlock()
		return
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartSweeper evicts abandoned sessions in the background until ctx is
// cancelled.
func (m *Manager) StartSweeper(ctx context.Context) {
	if m.ttl <= 0 {
		return
	}

	interval := m.ttl / 2
	if interval < time.Minute {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if evicted := m.sweep(time.Now()); evicted > 0 {
					m.log.Info("sessions_evicted", "", "Evicted abandoned sessions",
						logger.Int("count", evicted))
				}
			}
		}
	}()
}

func (m *Manager) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for userID, s := range m.sessions {
		// TryLock skips sessions currently being handled.
		if !s.mu.TryLock() {
			continue
		}
		idle := now.Sub(s.lastActive)
		s.mu.Unlock()
		if idle > m.ttl {
			delete(m.sessions, userID)
			evicted++
		}
	}
	return evicted
}
