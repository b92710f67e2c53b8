package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	clierr "github.com/ggonzalez94/tradeagent/internal/errors"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

func OpenStore(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create order store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create order lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open order sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			order_type TEXT NOT NULL,
			status TEXT NOT NULL,
			token TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_orders_status_updated ON orders(status, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init order schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) withLock(fn func() error) error {
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock order store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock order store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) Save(order Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("save order: missing order id")
	}
	return s.withLock(func() error { return s.save(order) })
}

func (s *Store) save(order Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	createdUnix := parseRFC3339Unix(order.CreatedAt, s.now())
	updatedUnix := parseRFC3339Unix(order.UpdatedAt, s.now())

	_, err = s.db.Exec(`
		INSERT INTO orders (order_id, order_type, status, token, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			order_type=excluded.order_type,
			status=excluded.status,
			token=excluded.token,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, order.ID, order.Type, string(order.Status), order.Token, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (s *Store) Get(orderID string) (Order, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM orders WHERE order_id = ?", orderID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("order not found: %s", orderID))
		}
		return Order{}, fmt.Errorf("read order: %w", err)
	}
	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return Order{}, fmt.Errorf("decode order payload: %w", err)
	}
	return order, nil
}

// List returns orders by most recent update. An empty status lists all.
func (s *Store) List(status Status, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query("SELECT payload FROM orders ORDER BY updated_at DESC, created_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM orders WHERE status = ? ORDER BY updated_at DESC, created_at DESC LIMIT ?", string(status), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := make([]Order, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		var order Order
		if err := json.Unmarshal(payload, &order); err != nil {
			return nil, fmt.Errorf("decode order row: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return out, nil
}

// Cancel moves a pending order to cancelled. Cancelling twice is an error.
func (s *Store) Cancel(orderID string) (Order, error) {
	var out Order
	err := s.withLock(func() error {
		order, err := s.Get(orderID)
		if err != nil {
			return err
		}
		if order.Status != StatusPending {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("order %s is %s, not pending", orderID, order.Status))
		}
		order.Status = StatusCancelled
		order.UpdatedAt = s.now().UTC().Format(time.RFC3339)
		if err := s.save(order); err != nil {
			return err
		}
		out = order
		return nil
	})
	return out, err
}

func parseRFC3339Unix(v string, fallback time.Time) int64 {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return fallback.UTC().Unix()
	}
	return t.UTC().Unix()
}
