// Package sqlite provides an embedded, file-backed frontier store built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/frontier-crawler/internal/clock/system"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/storage"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the database lives and how it is opened.
type Config struct {
	Path          string
	Table         string
	BusyTimeoutMS int
	DisableWAL    bool
}

// FrontierStore persists work items in a single SQLite table.
type FrontierStore struct {
	db        *sql.DB
	table     string
	clock     crawler.Clock
	claims    *storage.Claims
	dequeueMu sync.Mutex
}

var _ crawler.FrontierStore = (*FrontierStore)(nil)

// Open opens (creating if needed) the database at cfg.Path and ensures the schema exists.
func Open(ctx context.Context, cfg Config, clock crawler.Clock) (*FrontierStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage.sqlite.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = "crawl_queue"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		dsn += "?mode=rwc"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &FrontierStore{db: db, table: table, clock: clock, claims: storage.NewClaims()}
	if err := store.configure(ctx, cfg); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *FrontierStore) configure(ctx context.Context, cfg Config) error {
	busy := cfg.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", busy)}
	if !cfg.DisableWAL && cfg.Path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *FrontierStore) createTable(ctx context.Context) error {
	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	parent_url TEXT,
	depth INTEGER NOT NULL CHECK (depth >= 0),
	max_depth INTEGER NOT NULL CHECK (max_depth >= 0),
	status TEXT NOT NULL CHECK (status IN ('pending', 'crawled', 'failed')),
	classification TEXT NOT NULL DEFAULT 'crawlable',
	discovered_at INTEGER NOT NULL,
	crawled_at INTEGER,
	failed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_pending ON %[1]s (depth, id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_%[1]s_status ON %[1]s (status);`, s.table)
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
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
	now := s.clock.Now().UnixNano()
	var crawledAt any
	if status == crawler.StatusCrawled {
		crawledAt = now
	}
	query := fmt.Sprintf(`
INSERT OR IGNORE INTO %s (url, parent_url, depth, max_depth, status, classification, discovered_at, crawled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	res, err := s.db.ExecContext(ctx, query,
		c.URL, nullString(c.ParentURL), c.Depth, c.MaxDepth, string(status), string(class), now, crawledAt)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", c.URL, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enqueue rows affected: %w", err)
	}
	return affected == 1, nil
}

// DequeueNext claims the shallowest, oldest unclaimed pending item.
func (s *FrontierStore) DequeueNext(ctx context.Context) (crawler.WorkItem, bool, error) {
	s.dequeueMu.Lock()
	defer s.dequeueMu.Unlock()

	claimed := s.claims.List()
	args := make([]any, 0, len(claimed))
	exclude := ""
	if len(claimed) > 0 {
		placeholders := make([]string, len(claimed))
		for i, url := range claimed {
			placeholders[i] = "?"
			args = append(args, url)
		}
		exclude = fmt.Sprintf(" AND url NOT IN (%s)", strings.Join(placeholders, ","))
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE status = 'pending'%s ORDER BY depth ASC, id ASC LIMIT 1`,
		columns, s.table, exclude)

	item, err := scanItem(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.WorkItem{}, false, nil
	}
	if err != nil {
		return crawler.WorkItem{}, false, fmt.Errorf("dequeue next: %w", err)
	}
	s.claims.Add(item.URL)
	return item, true, nil
}

// MarkTerminal moves a pending item to crawled or failed.
func (s *FrontierStore) MarkTerminal(ctx context.Context, url string, outcome crawler.Status) error {
	column, err := terminalColumn(outcome)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = ?, %s = ? WHERE url = ? AND status = 'pending'`, s.table, column)
	res, err := s.db.ExecContext(ctx, query, string(outcome), s.clock.Now().UnixNano(), url)
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", url, outcome, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark rows affected: %w", err)
	}
	if affected == 0 {
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
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT status, COUNT(*) FROM %s GROUP BY status`, s.table))
	if err != nil {
		return crawler.Counts{}, fmt.Errorf("count items: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// Reset deletes every item and restarts the discovery sequence.
func (s *FrontierStore) Reset(ctx context.Context) error {
	s.dequeueMu.Lock()
	defer s.dequeueMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, s.table)); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = ?`, s.table); err != nil {
		return fmt.Errorf("reset sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	s.claims.Clear()
	return nil
}

// Get returns the item stored under url.
func (s *FrontierStore) Get(ctx context.Context, url string) (crawler.WorkItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE url = ?`, columns, s.table)
	item, err := scanItem(s.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.WorkItem{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.WorkItem{}, fmt.Errorf("get %s: %w", url, err)
	}
	return item, nil
}

// List returns items in discovery order.
func (s *FrontierStore) List(ctx context.Context, filter crawler.ListFilter) ([]crawler.WorkItem, error) {
	var (
		where string
		args  []any
	)
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, max(filter.Offset, 0))
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY id ASC LIMIT ? OFFSET ?`, columns, s.table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

// Close closes the database.
func (s *FrontierStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const columns = `id, url, parent_url, depth, max_depth, status, classification, discovered_at, crawled_at, failed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (crawler.WorkItem, error) {
	var (
		item       crawler.WorkItem
		parent     sql.NullString
		status     string
		class      string
		discovered int64
		crawled    sql.NullInt64
		failed     sql.NullInt64
	)
	if err := row.Scan(&item.Seq, &item.URL, &parent, &item.Depth, &item.MaxDepth,
		&status, &class, &discovered, &crawled, &failed); err != nil {
		return crawler.WorkItem{}, err
	}
	item.ParentURL = parent.String
	item.Status = crawler.Status(status)
	item.Classification = crawler.Classification(class)
	item.DiscoveredAt = time.Unix(0, discovered).UTC()
	item.CrawledAt = fromNanos(crawled)
	item.FailedAt = fromNanos(failed)
	return item, nil
}

func fromNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func terminalColumn(outcome crawler.Status) (string, error) {
	switch outcome {
	case crawler.StatusCrawled:
		return "crawled_at", nil
	case crawler.StatusFailed:
		return "failed_at", nil
	default:
		return "", fmt.Errorf("%w: outcome %q is not terminal", crawler.ErrInvalidItem, outcome)
	}
}
