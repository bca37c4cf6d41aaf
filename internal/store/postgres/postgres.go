package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"coffee-shop-bot/internal/config"
	"coffee-shop-bot/internal/logger"
	"coffee-shop-bot/internal/models"
	"coffee-shop-bot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id     TEXT PRIMARY KEY,
	seq          BIGINT NOT NULL,
	user_id      BIGINT NOT NULL,
	user_name    TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	pickup_time  TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS order_items (
	id       BIGSERIAL PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders(order_id),
	position INT NOT NULL,
	name     TEXT NOT NULL,
	price    DOUBLE PRECISION NOT NULL,
	quantity INT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
`

// Store is the PostgreSQL backend of the order store. The sequence counter
// is recomputed from MAX(seq) at startup and guarded by a mutex so
// concurrent confirmations never collide on an id.
type Store struct {
	mu           sync.Mutex
	pool         *pgxpool.Pool
	prefix       string
	counterStart int
	nextSeq      int
	log          logger.Logger
}

// New connects to PostgreSQL with retries, bootstraps the schema and
// recomputes the next order sequence.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	var pool *pgxpool.Pool
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		pool, err = pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = pool.Ping(pingCtx)
			cancel()
			if err == nil {
				break
			}
			pool.Close()
		}

		if i < maxRetries-1 {
			waitTime := time.Duration(i+1) * 2 * time.Second
			log.Error("db_connection_failed", "startup",
				fmt.Sprintf("Failed to connect to database, retrying in %v", waitTime), err)
			time.Sleep(waitTime)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	s := &Store{
		pool:         pool,
		prefix:       cfg.Orders.Prefix,
		counterStart: cfg.Orders.CounterStart,
		log:          log,
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
	}

	if err := s.initCounter(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initCounter(ctx context.Context) error {
	var maxSeq *int64
	err := s.pool.QueryRow(ctx, `SELECT MAX(seq) FROM orders`).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("failed to read order sequence: %w", err)
	}
	if maxSeq == nil {
		s.nextSeq = s.counterStart
	} else {
		s.nextSeq = int(*maxSeq) + 1
	}
	return nil
}

func (s *Store) formatID(seq int) string {
	return fmt.Sprintf("%s_%04d", s.prefix, seq)
}

func (s *Store) NextOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formatID(s.nextSeq)
}

func (s *Store) CreateOrder(ctx context.Context, userID int64, userName, phoneNumber string, items []models.LineItem, pickupTime string) (*models.Order, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (order_id, seq, user_id, user_name, phone_number, pickup_time, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, s.nextSeq, order.UserID, order.UserName, order.PhoneNumber,
		order.PickupTime, order.Status, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}

	for i, item := range order.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, name, price, quantity) VALUES ($1, $2, $3, $4, $5)`,
			order.ID, i, item.Name, item.Price, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to insert items for order %s: %w", order.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		// Counter untouched, the id will be reused by the next attempt.
		return nil, fmt.Errorf("failed to commit order %s: %w", order.ID, err)
	}
	s.nextSeq++

	return order, nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order := &models.Order{}
	err := s.pool.QueryRow(ctx,
		`SELECT order_id, user_id, user_name, phone_number, pickup_time, status, created_at, completed_at
		 FROM orders WHERE order_id = $1`, orderID).
		Scan(&order.ID, &order.UserID, &order.UserName, &order.PhoneNumber,
			&order.PickupTime, &order.Status, &order.CreatedAt, &order.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, store.ErrOrderNotFound)
		}
		return nil, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}

	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) GetUserOrders(ctx context.Context, userID int64) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT order_id, user_id, user_name, phone_number, pickup_time, status, created_at, completed_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query user orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		err := rows.Scan(&order.ID, &order.UserID, &order.UserName, &order.PhoneNumber,
			&order.PickupTime, &order.Status, &order.CreatedAt, &order.CompletedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read user orders: %w", err)
	}

	for _, order := range orders {
		if err := s.loadItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *Store) GetLastUserOrder(ctx context.Context, userID int64) (*models.Order, error) {
	order := &models.Order{}
	err := s.pool.QueryRow(ctx,
		`SELECT order_id, user_id, user_name, phone_number, pickup_time, status, created_at, completed_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&order.ID, &order.UserID, &order.UserName, &order.PhoneNumber,
			&order.PickupTime, &order.Status, &order.CreatedAt, &order.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last order: %w", err)
	}

	if err := s.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Store) CompleteOrder(ctx context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, completed_at = $2 WHERE order_id = $3`,
		models.StatusCompleted, time.Now().UTC(), orderID)
	if err != nil {
		return false, fmt.Errorf("failed to complete order %s: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx,
		`SELECT name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY position`, order.ID)
	if err != nil {
		return fmt.Errorf("failed to query items for order %s: %w", order.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.LineItem
		if err := rows.Scan(&item.Name, &item.Price, &item.Quantity); err != nil {
			return fmt.Errorf("failed to scan item row: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
