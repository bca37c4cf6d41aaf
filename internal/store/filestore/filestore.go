package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/store"
)

// FileStore keeps the whole order collection in memory and mirrors it to a
// single JSON document, keyed by order id. Every mutation rewrites the file
// before returning.
type FileStore struct {
	mu           sync.Mutex
	path         string
	prefix       string
	counterStart int
	orders       map[string]*models.Order
	nextSeq      int
	log          logger.Logger
}

// New loads the store from path. A missing or malformed file is treated as
// an empty store. The next sequence number is recomputed as the maximum
// sequence embedded in existing ids plus one, or counterStart for an empty
// store.
func New(path, prefix string, counterStart int, log logger.Logger) (*FileStore, error) {
	s := &FileStore{
		path:         path,
		prefix:       prefix,
		counterStart: counterStart,
		orders:       make(map[string]*models.Order),
		log:          log,
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	s.nextSeq = s.computeNextSeq()

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read order store: %w", err)
	}

	if err := json.Unmarshal(data, &s.orders); err != nil {
		s.log.Warn("store_corrupt", "", "Order store file is malformed, starting empty",
			logger.String("path", s.path))
		s.orders = make(map[string]*models.Order)
	}
	return nil
}

// computeNextSeq derives the counter from the persisted ids so a restart
// never reuses an id.
func (s *FileStore) computeNextSeq() int {
	maxSeq := -1
	for id := range s.orders {
		seq, ok := parseSeq(id)
		if !ok {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	if maxSeq < 0 {
		return s.counterStart
	}
	return maxSeq + 1
}

func parseSeq(orderID string) (int, bool) {
	idx := strings.LastIndex(orderID, "_")
	if idx < 0 {
		return 0, false
	}
	seq, err := strconv.Atoi(orderID[idx+1:])
	if err != nil {
		return 0, false
	}
	return seq, true
}

func (s *FileStore) formatID(seq int) string {
	return fmt.Sprintf("%s_%04d", s.prefix, seq)
}

func (s *FileStore) NextOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formatID(s.nextSeq)
}

func (s *FileStore) CreateOrder(ctx context.Context, userID int64, userName, phoneNumber string, items []models.LineItem, pickupTime string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order := &models.Order{
		ID:          s.formatID(s.nextSeq),
		UserID:      userID,
		UserName:    userName,
		PhoneNumber: phoneNumber,
		Items:       models.SnapshotItems(items),
		PickupTime:  pickupTime,
		Status:      models.StatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	s.orders[order.ID] = order
	if err := s.persist(); err != nil {
		// The counter stays put so a failed save does not leave a gap.
		delete(s.orders, order.ID)
		return nil, fmt.Errorf("failed to persist order %s: %w", order.ID, err)
	}
	s.nextSeq++

	return order.Clone(), nil
}

func (s *FileStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, store.ErrOrderNotFound)
	}
	return order.Clone(), nil
}

func (s *FileStore) GetUserOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []*models.Order
	for _, order := range s.orders {
		if order.UserID == userID {
			orders = append(orders, order.Clone())
		}
	}
	return orders, nil
}

func (s *FileStore) GetLastUserOrder(ctx context.Context, userID int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *models.Order
	for _, order := range s.orders {
		if order.UserID != userID {
			continue
		}
		if last == nil || order.CreatedAt.After(last.CreatedAt) {
			last = order
		}
	}
	if last == nil {
		return nil, nil
	}
	return last.Clone(), nil
}

func (s *FileStore) CompleteOrder(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return false, nil
	}

	prevStatus := order.Status
	prevCompletedAt := order.CompletedAt

	completedAt := time.Now().UTC()
	order.Status = models.StatusCompleted
	order.CompletedAt = &completedAt

	if err := s.persist(); err != nil {
		order.Status = prevStatus
		order.CompletedAt = prevCompletedAt
		return false, fmt.Errorf("failed to persist order %s: %w", orderID, err)
	}
	return true, nil
}

// persist writes the full collection to a temp file and renames it into
// place so a crash mid-write cannot truncate the store.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(s.orders, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal orders: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".orders-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace order store: %w", err)
	}
	return nil
}

func (s *FileStore) Close() {}
