// Package sqlite provides a SQLite implementation of the medsync QueueStore
// and SnapshotStore collaborators.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	medsync "github.com/dosetrack/medsync"
	syncErrors "github.com/dosetrack/medsync/errors"
	"github.com/dosetrack/medsync/logging"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreClosed is returned by every operation after Close.
var ErrStoreClosed = errors.New("store is closed")

// snapshotKey is the row key under which the single cached snapshot lives.
const snapshotKey = "current"

// Config holds configuration options for the Store.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// Recommended and enabled by DefaultConfig. When true, automatically
	// appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "?_journal_mode=") {
			c.DataSourceName += "?_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
	}
	config.setDefaults()
	return config
}

// NewWithDataSource is a convenience constructor using DefaultConfig.
func NewWithDataSource(dataSourceName string) (*Store, error) {
	return New(DefaultConfig(dataSourceName))
}

// Store persists the mutation queue and the cached snapshot in SQLite.
type Store struct {
	db     *sql.DB
	mu     stdSync.RWMutex
	closed bool
	logger *logging.Logger
}

// Compile-time checks against the medsync collaborator interfaces.
var (
	_ medsync.QueueStore    = (*Store)(nil)
	_ medsync.SnapshotStore = (*Store)(nil)
)

// New creates a Store from a Config.
func New(config *Config) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()
	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent(logging.Component("sqlite-store"))
	logger.Info("opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL))

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &Store{
		db:     db,
		logger: logger,
	}
	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

func (s *Store) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS sync_queue (
        seq         INTEGER PRIMARY KEY AUTOINCREMENT,
        id          TEXT NOT NULL UNIQUE,
        action      TEXT NOT NULL,
        payload     TEXT,
        created_at  TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_sync_queue_action ON sync_queue (action);

    CREATE TABLE IF NOT EXISTS snapshots (
        key         TEXT PRIMARY KEY,
        data        TEXT NOT NULL,
        updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(query)
	return err
}

// AppendItem persists a single queue item.
func (s *Store) AppendItem(ctx context.Context, item medsync.QueueItem) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	query := `INSERT INTO sync_queue (id, action, payload, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.Action, payloadText(item.Payload), item.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "AppendItem")
	}
	return nil
}

// LoadItems returns every queue item in insertion order.
func (s *Store) LoadItems(ctx context.Context) ([]medsync.QueueItem, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	s.mu.RUnlock()

	query := `SELECT id, action, payload, created_at FROM sync_queue ORDER BY seq ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, syncErrors.NewStorageError(syncErrors.OpLoad, err).WithMetadata("method", "LoadItems")
	}
	defer rows.Close()

	return scanItems(rows)
}

// ReplaceItems atomically replaces the persisted queue.
func (s *Store) ReplaceItems(ctx context.Context, items []medsync.QueueItem) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "ReplaceItems")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM sync_queue`); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "ReplaceItems")
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sync_queue (id, action, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "ReplaceItems")
	}
	defer stmt.Close()

	for _, item := range items {
		if _, err = stmt.ExecContext(ctx,
			item.ID, item.Action, payloadText(item.Payload), item.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "ReplaceItems")
		}
	}

	if err = tx.Commit(); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "ReplaceItems")
	}
	return nil
}

// RemoveItem deletes the item with the given ID; unknown IDs are a no-op.
func (s *Store) RemoveItem(ctx context.Context, id string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "RemoveItem")
	}
	return nil
}

// SaveSnapshot overwrites the cached snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot medsync.DomainSnapshot) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "SaveSnapshot")
	}

	query := `INSERT INTO snapshots (key, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
	          ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`
	if _, err := s.db.ExecContext(ctx, query, snapshotKey, string(data)); err != nil {
		return syncErrors.NewStorageError(syncErrors.OpStore, err).WithMetadata("method", "SaveSnapshot")
	}
	return nil
}

// LoadSnapshot returns the cached snapshot, or a zero snapshot when nothing
// has been cached yet.
func (s *Store) LoadSnapshot(ctx context.Context) (medsync.DomainSnapshot, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return medsync.DomainSnapshot{}, ErrStoreClosed
	}
	s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE key = ?`, snapshotKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return medsync.DomainSnapshot{}, nil
	}
	if err != nil {
		return medsync.DomainSnapshot{}, syncErrors.NewStorageError(syncErrors.OpLoad, err).WithMetadata("method", "LoadSnapshot")
	}

	var snapshot medsync.DomainSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return medsync.DomainSnapshot{}, syncErrors.NewStorageError(syncErrors.OpLoad, err).WithMetadata("method", "LoadSnapshot")
	}
	return snapshot, nil
}

// Close closes the database connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Stats returns database statistics for monitoring.
func (s *Store) Stats() sql.DBStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return sql.DBStats{}
	}
	return s.db.Stats()
}

func payloadText(payload json.RawMessage) sql.NullString {
	if payload == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(payload), Valid: true}
}

func scanItems(rows *sql.Rows) ([]medsync.QueueItem, error) {
	var items []medsync.QueueItem
	for rows.Next() {
		var item medsync.QueueItem
		var payload sql.NullString
		var createdAt string

		if err := rows.Scan(&item.ID, &item.Action, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan queue row: %w", err)
		}
		if payload.Valid {
			item.Payload = json.RawMessage(payload.String)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
		}
		item.CreatedAt = ts

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return items, nil
}
