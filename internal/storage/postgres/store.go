// Package postgres provides a Postgres-backed storage target.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store keeps items as JSONB rows keyed by TTB ID. The key column is text:
// identifiers carry significant leading zeros. When a document fetcher is
// attached, create and update also pull the label PDF into the row's
// document column; fetch failures degrade to a row without a document.
type Store struct {
	pool    pgxPool
	table   string
	fetcher cola.DocumentFetcher
	logger  *zap.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithDocumentFetcher enables document capture during create and update.
func WithDocumentFetcher(f cola.DocumentFetcher) Option {
	return func(s *Store) { s.fetcher = f }
}

// WithLogger attaches a logger for best-effort side effects.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Postgres-backed Store using the provided config.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "cola_items"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(pool, table, opts...)
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool, table string, opts ...Option) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cola_items"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return newStore(pool, table, opts...)
}

func newStore(pool pgxPool, table string, opts ...Option) (*Store, error) {
	s := &Store{pool: pool, table: table, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the backing table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	ttb_id     TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	deprecated BOOLEAN NOT NULL DEFAULT FALSE,
	document   BYTEA,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// GetExistingIDs returns every stored TTB ID, deprecated rows included.
func (s *Store) GetExistingIDs(ctx context.Context) (cola.IDSet, error) {
	query := fmt.Sprintf(`SELECT ttb_id FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select existing ids: %w", err)
	}
	defer rows.Close()

	ids := make(cola.IDSet)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ttb_id: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing ids: %w", err)
	}
	return ids, nil
}

// CreateItems inserts items one row each, skipping identifiers that already
// exist, and returns the number actually inserted.
func (s *Store) CreateItems(ctx context.Context, items []cola.Item) (int, error) {
	query := fmt.Sprintf(`
INSERT INTO %s (ttb_id, data, deprecated, updated_at)
VALUES ($1, $2, FALSE, now())
ON CONFLICT (ttb_id) DO NOTHING`, s.table)

	created := 0
	for _, item := range items {
		data, err := json.Marshal(cola.NormalizeItemDates(item))
		if err != nil {
			return created, fmt.Errorf("marshal item %s: %w", item.TTBID, err)
		}
		tag, err := s.pool.Exec(ctx, query, item.TTBID, data)
		if err != nil {
			return created, fmt.Errorf("insert item %s: %w", item.TTBID, err)
		}
		if tag.RowsAffected() > 0 {
			created++
			s.attachDocument(ctx, item.TTBID)
		}
	}
	return created, nil
}

// UpdateItem rewrites a stored row when the incoming item differs from it.
// Missing rows and unchanged content report false without error.
func (s *Store) UpdateItem(ctx context.Context, item cola.Item) (bool, error) {
	selectQuery := fmt.Sprintf(`SELECT data, deprecated, document IS NOT NULL FROM %s WHERE ttb_id = $1`, s.table)

	var (
		data        []byte
		deprecated  bool
		hasDocument bool
	)
	err := s.pool.QueryRow(ctx, selectQuery, item.TTBID).Scan(&data, &deprecated, &hasDocument)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select item %s: %w", item.TTBID, err)
	}

	var stored cola.Item
	if err := json.Unmarshal(data, &stored); err != nil {
		return false, fmt.Errorf("unmarshal item %s: %w", item.TTBID, err)
	}
	if cola.ItemsEquivalent(stored, item) && !deprecated {
		return false, nil
	}

	payload, err := json.Marshal(cola.NormalizeItemDates(item))
	if err != nil {
		return false, fmt.Errorf("marshal item %s: %w", item.TTBID, err)
	}
	updateQuery := fmt.Sprintf(`
UPDATE %s SET data = $2, deprecated = FALSE, updated_at = now()
WHERE ttb_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, updateQuery, item.TTBID, payload); err != nil {
		return false, fmt.Errorf("update item %s: %w", item.TTBID, err)
	}
	if !hasDocument {
		s.attachDocument(ctx, item.TTBID)
	}
	return true, nil
}

// attachDocument is best-effort: a row without its PDF is still a synced
// row, so fetch and write failures only log.
func (s *Store) attachDocument(ctx context.Context, ttbID string) {
	if s.fetcher == nil {
		return
	}
	pdf, err := s.fetcher.FetchDocument(ctx, ttbID)
	if err != nil {
		s.logger.Warn("document fetch failed", zap.String("ttb_id", ttbID), zap.Error(err))
		return
	}
	query := fmt.Sprintf(`UPDATE %s SET document = $2 WHERE ttb_id = $1`, s.table)
	if _, err := s.pool.Exec(ctx, query, ttbID, pdf); err != nil {
		s.logger.Warn("document write failed", zap.String("ttb_id", ttbID), zap.Error(err))
	}
}

// MarkAsDeprecated flags the given identifiers and returns how many rows
// changed state.
func (s *Store) MarkAsDeprecated(ctx context.Context, ttbIDs []string) (int, error) {
	if len(ttbIDs) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
UPDATE %s SET deprecated = TRUE, updated_at = now()
WHERE ttb_id = ANY($1) AND NOT deprecated`, s.table)
	tag, err := s.pool.Exec(ctx, query, ttbIDs)
	if err != nil {
		return 0, fmt.Errorf("mark deprecated: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteAll removes every row and returns how many were removed.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s`, s.table)
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
