// Package cache keeps the most recent price snapshot per source in sqlite so
// repeated invocations avoid refetching and can fall back to stale data.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/tradeagent/internal/intent"
)

type Store struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Snapshot is a cached price context and how old it is.
type Snapshot struct {
	Hit       bool
	Prices    intent.PriceContext
	FetchedAt time.Time
	Age       time.Duration
	Stale     bool
	TooStale  bool
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS price_snapshots (
			source TEXT PRIMARY KEY,
			prices BLOB NOT NULL,
			fetched_at INTEGER NOT NULL,
			ttl_seconds INTEGER NOT NULL
		);`,
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init cache schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath), now: time.Now}, nil
}

// SetClock replaces the time source used for ages and writes.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Prune deletes snapshots older than their TTL plus horizon.
func (s *Store) Prune(horizon time.Duration) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := s.now().UTC().Add(-horizon).Unix()
	if _, err := s.db.Exec("DELETE FROM price_snapshots WHERE fetched_at + ttl_seconds < ?", cutoff); err != nil {
		return fmt.Errorf("prune cache: %w", err)
	}
	return nil
}

// Get returns the snapshot for source. A snapshot older than its TTL is Stale;
// one older than TTL plus maxStale is TooStale. A negative maxStale accepts
// any age.
func (s *Store) Get(source string, maxStale time.Duration) (Snapshot, error) {
	var payload []byte
	var fetchedUnix, ttlSeconds int64
	err := s.db.QueryRow("SELECT prices, fetched_at, ttl_seconds FROM price_snapshots WHERE source = ?", source).
		Scan(&payload, &fetchedUnix, &ttlSeconds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("cache read: %w", err)
	}
	var prices intent.PriceContext
	if err := json.Unmarshal(payload, &prices); err != nil {
		return Snapshot{}, fmt.Errorf("decode cached prices: %w", err)
	}

	fetched := time.Unix(fetchedUnix, 0).UTC()
	age := s.now().Sub(fetched)
	if age < 0 {
		age = 0
	}
	ttl := time.Duration(ttlSeconds) * time.Second
	stale := age > ttl
	return Snapshot{
		Hit:       true,
		Prices:    prices,
		FetchedAt: fetched,
		Age:       age,
		Stale:     stale,
		TooStale:  stale && maxStale >= 0 && age > ttl+maxStale,
	}, nil
}

func (s *Store) Put(source string, prices intent.PriceContext, ttl time.Duration) error {
	payload, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("encode prices: %w", err)
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock cache: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock cache: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	ttlSeconds := int64(ttl.Seconds())
	if ttlSeconds <= 0 {
		ttlSeconds = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO price_snapshots (source, prices, fetched_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			prices=excluded.prices,
			fetched_at=excluded.fetched_at,
			ttl_seconds=excluded.ttl_seconds
	`, source, payload, s.now().UTC().Unix(), ttlSeconds)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}
