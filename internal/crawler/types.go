// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"net/http"
	"time"
)

// Status represents the lifecycle state of a frontier work item.
type Status string

// Work item status values persisted in the frontier store.
const (
	StatusPending Status = "pending"
	StatusCrawled Status = "crawled"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the three persisted statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCrawled, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is crawled or failed.
func (s Status) Terminal() bool {
	return s == StatusCrawled || s == StatusFailed
}

// Classification is the scheduling class derived from a URL's path suffix.
type Classification string

// Supported classifications. Only crawlable URLs become pending work.
const (
	ClassCrawlable  Classification = "crawlable"
	ClassMedia      Classification = "media"
	ClassWebSupport Classification = "web-support"
)

// InitialStatus maps a classification to the status a new item is stored with.
func (c Classification) InitialStatus() Status {
	if c == ClassCrawlable || c == "" {
		return StatusPending
	}
	return StatusCrawled
}

// Sentinel errors returned by FrontierStore implementations.
var (
	ErrNotFound    = errors.New("work item not found")
	ErrNotPending  = errors.New("work item not found or not pending")
	ErrInvalidItem = errors.New("invalid work item")
)

// WorkItem is one row per distinct URL ever discovered.
type WorkItem struct {
	Seq            int64          `json:"seq"`
	URL            string         `json:"url"`
	ParentURL      string         `json:"parent_url,omitempty"`
	Depth          int            `json:"depth"`
	MaxDepth       int            `json:"max_depth"`
	Status         Status         `json:"status"`
	Classification Classification `json:"classification"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
	CrawledAt      *time.Time     `json:"crawled_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
}

// Expandable reports whether links discovered on this item may be enqueued.
func (w WorkItem) Expandable() bool {
	return w.Depth < w.MaxDepth
}

// Candidate is a URL offered to the frontier for insertion.
type Candidate struct {
	URL            string
	ParentURL      string
	Depth          int
	MaxDepth       int
	Classification Classification
}

// Validate enforces the depth invariants before anything reaches a store.
func (c Candidate) Validate() error {
	switch {
	case c.URL == "":
		return errors.Join(ErrInvalidItem, errors.New("url is required"))
	case c.Depth < 0:
		return errors.Join(ErrInvalidItem, errors.New("depth must be >= 0"))
	case c.MaxDepth < 0:
		return errors.Join(ErrInvalidItem, errors.New("max_depth must be >= 0"))
	case c.Depth > c.MaxDepth:
		return errors.Join(ErrInvalidItem, errors.New("depth exceeds max_depth"))
	}
	return nil
}

// Counts is a point-in-time snapshot of the frontier.
type Counts struct {
	Pending int64 `json:"pending"`
	Crawled int64 `json:"crawled"`
	Failed  int64 `json:"failed"`
}

// Total returns the number of items across all statuses.
func (c Counts) Total() int64 {
	return c.Pending + c.Crawled + c.Failed
}

// ListFilter narrows List results. A zero Status matches every status.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Depth   int
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
