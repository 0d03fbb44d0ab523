// Package store persists items and feed watermarks in SQLite.
package store

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

	_ "modernc.org/sqlite"

	"github.com/bakkerme/curator-streams/internal/core"
)

const upsertItem = `INSERT INTO items (id, feed_id, source, published_at, stored_at, payload)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	feed_id = excluded.feed_id,
	source = excluded.source,
	published_at = excluded.published_at,
	stored_at = excluded.stored_at,
	payload = excluded.payload`

// Watermarks only move forward, even when two writers race.
const upsertWatermark = `INSERT INTO watermarks (feed_id, watermark) VALUES (?, ?)
ON CONFLICT(feed_id) DO UPDATE SET watermark = MAX(watermark, excluded.watermark)`

// SQLiteStore is a scheduler sink and watermark store backed by one SQLite file.
// Timestamps are stored as unix nanoseconds so ordering and MAX work numerically.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlite dsn is required")
	}
	if err := ensureSQLiteDir(dsn); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Store(ctx context.Context, item *core.Item) error {
	args, err := s.itemArgs(item)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertItem, args...); err != nil {
		return fmt.Errorf("store item %s: %w", item.ID, err)
	}
	return nil
}

// StoreBatch upserts items in one transaction; either all are stored or none.
func (s *SQLiteStore) StoreBatch(ctx context.Context, items []*core.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, upsertItem)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, item := range items {
		args, err := s.itemArgs(item)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store item %s: %w", item.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, item *core.Item) error {
	if item == nil || item.ID == "" {
		return fmt.Errorf("item id is required")
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", item.ID)
	return err
}

// Item returns the stored item with the given id, or nil when absent.
func (s *SQLiteStore) Item(ctx context.Context, id string) (*core.Item, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM items WHERE id = ?", id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var item core.Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return &item, nil
}

// Count returns the number of stored items, optionally restricted to one feed.
func (s *SQLiteStore) Count(ctx context.Context, feedID string) (int, error) {
	query, args := "SELECT COUNT(*) FROM items", []any{}
	if feedID != "" {
		query += " WHERE feed_id = ?"
		args = append(args, feedID)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) SaveWatermark(ctx context.Context, feedID string, watermark time.Time) error {
	if feedID == "" {
		return fmt.Errorf("feed id is required")
	}
	if watermark.IsZero() {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, upsertWatermark, feedID, watermark.UnixNano()); err != nil {
		return fmt.Errorf("save watermark %s: %w", feedID, err)
	}
	return nil
}

// LoadWatermarks returns every persisted watermark keyed by feed id.
func (s *SQLiteStore) LoadWatermarks(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT feed_id, watermark FROM watermarks")
	if err != nil {
		return nil, fmt.Errorf("load watermarks: %w", err)
	}
	defer rows.Close()
	out := map[string]time.Time{}
	for rows.Next() {
		var (
			feedID string
			nanos  int64
		)
		if err := rows.Scan(&feedID, &nanos); err != nil {
			return nil, err
		}
		out[feedID] = time.Unix(0, nanos).UTC()
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) itemArgs(item *core.Item) ([]any, error) {
	if !item.Valid() {
		return nil, fmt.Errorf("item requires an id and a publication time")
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item %s: %w", item.ID, err)
	}
	return []any{
		item.ID,
		item.FeedID,
		item.Source,
		item.PublicationTime.UnixNano(),
		s.now().UTC().UnixNano(),
		payload,
	}, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id TEXT PRIMARY KEY,
			feed_id TEXT NOT NULL,
			source TEXT NOT NULL,
			published_at INTEGER NOT NULL,
			stored_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS items_feed_published_idx ON items (feed_id, published_at)",
		`CREATE TABLE IF NOT EXISTS watermarks (
			feed_id TEXT PRIMARY KEY,
			watermark INTEGER NOT NULL
		)`,
	}
	for _, ddl := range statements {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create sqlite schema: %w", err)
		}
	}
	return nil
}

func ensureSQLiteDir(dsn string) error {
	if strings.HasPrefix(dsn, "file:") {
		dsn = strings.TrimPrefix(dsn, "file:")
		if idx := strings.IndexRune(dsn, '?'); idx >= 0 {
			dsn = dsn[:idx]
		}
	}
	if dsn == "" || dsn == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dsn)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
