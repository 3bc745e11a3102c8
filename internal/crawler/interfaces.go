package crawler

import (
	"context"
	"time"
)

// FrontierStore persists work items and hands them out in breadth-first order.
//
// Implementations must be safe for concurrent use. DequeueNext claims the item it
// returns so that a concurrent DequeueNext never receives the same URL; the claim
// lasts until MarkTerminal or Release and does not survive a process restart.
type FrontierStore interface {
	// Enqueue inserts the candidate unless its URL already exists. Non-crawlable
	// candidates are stored as crawled leaves.
	Enqueue(ctx context.Context, c Candidate) (bool, error)
	// DequeueNext returns the unclaimed pending item with the smallest depth,
	// ties broken by discovery order. ok is false when nothing is available.
	DequeueNext(ctx context.Context) (item WorkItem, ok bool, err error)
	// MarkTerminal moves a pending item to crawled or failed.
	MarkTerminal(ctx context.Context, url string, outcome Status) error
	// Release drops the claim on url without changing its status.
	Release(ctx context.Context, url string) error
	Counts(ctx context.Context) (Counts, error)
	// Reset deletes every work item.
	Reset(ctx context.Context) error
	Get(ctx context.Context, url string) (WorkItem, error)
	List(ctx context.Context, filter ListFilter) ([]WorkItem, error)
	Close() error
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// LinkExtractor returns the absolute http(s) links found in a page.
type LinkExtractor interface {
	ExtractLinks(body []byte, baseURL string) ([]string, error)
}

// Throttle delays fetches for crawl etiquette.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
