// Package postgres provides the Postgres-backed frontier store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/frontier-crawler/internal/clock/system"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for the frontier table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// FrontierStore persists work items in Postgres.
type FrontierStore struct {
	pool   pool
	table  string
	clock  crawler.Clock
	claims *storage.Claims
}

var _ crawler.FrontierStore = (*FrontierStore)(nil)

// NewFrontierStore connects to Postgres using the provided config.
func NewFrontierStore(ctx context.Context, cfg Config, clock crawler.Clock) (*FrontierStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStore(p, table, clock), nil
}

// NewFrontierStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewFrontierStoreWithPool(p pool, table string, clock crawler.Clock) (*FrontierStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newStore(p, name, clock), nil
}

func newStore(p pool, table string, clock crawler.Clock) *FrontierStore {
	if clock == nil {
		clock = system.New()
	}
	return &FrontierStore{pool: p, table: table, clock: clock, claims: storage.NewClaims()}
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "crawl_queue"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the frontier table and its indexes when missing.
func (s *FrontierStore) EnsureSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	parent_url TEXT,
	depth INTEGER NOT NULL CHECK (depth >= 0),
	max_depth INTEGER NOT NULL CHECK (max_depth >= 0),
	status TEXT NOT NULL CHECK (status IN ('pending', 'crawled', 'failed')),
	classification TEXT NOT NULL DEFAULT 'crawlable',
	discovered_at TIMESTAMPTZ NOT NULL,
	crawled_at TIMESTAMPTZ,
	failed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS %[1]s_pending_idx ON %[1]s (depth, id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS %[1]s_status_idx ON %[1]s (status);`, s.table)
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Enqueue inserts the candidate unless its URL already exists.
func (s *FrontierStore) Enqueue(ctx context.Context, c crawler.Candidate) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	class := c.Classification
	if class == "" {
		class = crawler.ClassCrawlable
	}
	status := class.InitialStatus()
	now := s.clock.Now()
	var crawledAt *time.Time
	if status == crawler.StatusCrawled {
		crawledAt = &now
	}
	query := fmt.Sprintf(`
INSERT INTO %s (url, parent_url, depth, max_depth, status, classification, discovered_at, crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		c.URL, nullable(c.ParentURL), c.Depth, c.MaxDepth, string(status), string(class), now, crawledAt)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", c.URL, err)
	}
	return tag.RowsAffected() == 1, nil
}

// DequeueNext claims the shallowest, oldest unclaimed pending item.
func (s *FrontierStore) DequeueNext(ctx context.Context) (crawler.WorkItem, bool, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE status = 'pending' AND NOT (url = ANY($1))
ORDER BY depth ASC, id ASC
LIMIT 1`, columns, s.table)

	// A concurrent dequeue may claim the same row between the select and the claim;
	// retry with the refreshed claim set in that case.
	for {
		item, err := scanItem(s.pool.QueryRow(ctx, query, s.claims.List()))
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.WorkItem{}, false, nil
		}
		if err != nil {
			return crawler.WorkItem{}, false, fmt.Errorf("dequeue next: %w", err)
		}
		if s.claims.Add(item.URL) {
			return item, true, nil
		}
	}
}

// MarkTerminal moves a pending item to crawled or failed.
func (s *FrontierStore) MarkTerminal(ctx context.Context, url string, outcome crawler.Status) error {
	var column string
	switch outcome {
	case crawler.StatusCrawled:
		column = "crawled_at"
	case crawler.StatusFailed:
		column = "failed_at"
	default:
		return fmt.Errorf("%w: outcome %q is not terminal", crawler.ErrInvalidItem, outcome)
	}
	query := fmt.Sprintf(`UPDATE %s SET status = $1, %s = $2 WHERE url = $3 AND status = 'pending'`, s.table, column)
	tag, err := s.pool.Exec(ctx, query, string(outcome), s.clock.Now(), url)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", url, outcome, err)
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotPending
	}
	s.claims.Remove(url)
	return nil
}

// Release drops the claim on url.
func (s *FrontierStore) Release(_ context.Context, url string) error {
	s.claims.Remove(url)
	return nil
}

// Counts returns the number of items per status from one query.
func (s *FrontierStore) Counts(ctx context.Context) (crawler.Counts, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, s.table))
	if err != nil {
		return crawler.Counts{}, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	var counts crawler.Counts
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return crawler.Counts{}, fmt.Errorf("scan counts: %w", err)
		}
		switch crawler.Status(status) {
		case crawler.StatusPending:
			counts.Pending = n
		case crawler.StatusCrawled:
			counts.Crawled = n
		case crawler.StatusFailed:
			counts.Failed = n
		}
	}
	if err := rows.Err(); err != nil {
		return crawler.Counts{}, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// Reset truncates the table and restarts the id sequence.
func (s *FrontierStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`TRUNCATE TABLE %s RESTART IDENTITY`, s.table)); err != nil {
		return fmt.Errorf("reset %s: %w", s.table, err)
	}
	s.claims.Clear()
	return nil
}

// Get returns the item stored under url.
func (s *FrontierStore) Get(ctx context.Context, url string) (crawler.WorkItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = $1`, columns, s.table)
	item, err := scanItem(s.pool.QueryRow(ctx, query, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.WorkItem{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.WorkItem{}, fmt.Errorf("get %s: %w", url, err)
	}
	return item, nil
}

// List returns items in discovery order.
func (s *FrontierStore) List(ctx context.Context, filter crawler.ListFilter) ([]crawler.WorkItem, error) {
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1 = '' OR status = $1)
ORDER BY id ASC
LIMIT $2 OFFSET $3`, columns, s.table)
	rows, err := s.pool.Query(ctx, query, string(filter.Status), limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := []crawler.WorkItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Close releases the underlying pool resources.
func (s *FrontierStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const columns = `id, url, parent_url, depth, max_depth, status, classification, discovered_at, crawled_at, failed_at`

func scanItem(row pgx.Row) (crawler.WorkItem, error) {
	var (
		item   crawler.WorkItem
		parent *string
		status string
		class  string
	)
	if err := row.Scan(&item.Seq, &item.URL, &parent, &item.Depth, &item.MaxDepth,
		&status, &class, &item.DiscoveredAt, &item.CrawledAt, &item.FailedAt); err != nil {
		return crawler.WorkItem{}, err
	}
	if parent != nil {
		item.ParentURL = *parent
	}
	item.Status = crawler.Status(status)
	item.Classification = crawler.Classification(class)
	return item, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
