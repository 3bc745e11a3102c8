// Package memory provides in-memory implementations useful for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/frontier-crawler/internal/clock/system"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/storage"
)

// FrontierStore keeps work items in a map plus a pending index ordered by (depth, seq).
type FrontierStore struct {
	mu      sync.RWMutex
	clock   crawler.Clock
	items   map[string]*crawler.WorkItem
	pending []*crawler.WorkItem
	nextSeq int64
	claims  *storage.Claims
}

var _ crawler.FrontierStore = (*FrontierStore)(nil)

// NewFrontierStore constructs an empty store. A nil clock falls back to wall time.
func NewFrontierStore(clock crawler.Clock) *FrontierStore {
	if clock == nil {
		clock = system.New()
	}
	return &FrontierStore{
		clock:  clock,
		items:  make(map[string]*crawler.WorkItem),
		claims: storage.NewClaims(),
	}
}

// Enqueue inserts the candidate if its URL is new.
func (s *FrontierStore) Enqueue(_ context.Context, c crawler.Candidate) (bool, error) {
	if err := c.Validate(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.URL]; exists {
		return false, nil
	}
	class := c.Classification
	if class == "" {
		class = crawler.ClassCrawlable
	}
	s.nextSeq++
	now := s.clock.Now()
	item := &crawler.WorkItem{
		Seq:            s.nextSeq,
		URL:            c.URL,
		ParentURL:      c.ParentURL,
		Depth:          c.Depth,
		MaxDepth:       c.MaxDepth,
		Status:         class.InitialStatus(),
		Classification: class,
		DiscoveredAt:   now,
	}
	if item.Status == crawler.StatusCrawled {
		item.CrawledAt = pointerTime(now)
	}
	s.items[c.URL] = item
	if item.Status == crawler.StatusPending {
		s.insertPending(item)
	}
	return true, nil
}

// insertPending keeps s.pending sorted. Seq only grows, so a new item lands after
// every existing item of the same depth.
func (s *FrontierStore) insertPending(item *crawler.WorkItem) {
	idx := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].Depth > item.Depth
	})
	s.pending = append(s.pending, nil)
	copy(s.pending[idx+1:], s.pending[idx:])
	s.pending[idx] = item
}

func (s *FrontierStore) removePending(url string) {
	for i, item := range s.pending {
		if item.URL == url {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// DequeueNext claims and returns the first unclaimed pending item.
func (s *FrontierStore) DequeueNext(_ context.Context) (crawler.WorkItem, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.pending {
		if s.claims.Add(item.URL) {
			return *item, true, nil
		}
	}
	return crawler.WorkItem{}, false, nil
}

// MarkTerminal moves a pending item to crawled or failed.
func (s *FrontierStore) MarkTerminal(_ context.Context, url string, outcome crawler.Status) error {
	if !outcome.Terminal() {
		return fmt.Errorf("%w: outcome %q is not terminal", crawler.ErrInvalidItem, outcome)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[url]
	if !ok || item.Status != crawler.StatusPending {
		return crawler.ErrNotPending
	}
	now := s.clock.Now()
	item.Status = outcome
	if outcome == crawler.StatusCrawled {
		item.CrawledAt = pointerTime(now)
	} else {
		item.FailedAt = pointerTime(now)
	}
	s.removePending(url)
	s.claims.Remove(url)
	return nil
}

// Release drops the claim on url.
func (s *FrontierStore) Release(_ context.Context, url string) error {
	s.claims.Remove(url)
	return nil
}

// Counts returns the number of items per status.
func (s *FrontierStore) Counts(_ context.Context) (crawler.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var counts crawler.Counts
	for _, item := range s.items {
		switch item.Status {
		case crawler.StatusPending:
			counts.Pending++
		case crawler.StatusCrawled:
			counts.Crawled++
		case crawler.StatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

// Reset deletes every item and claim.
func (s *FrontierStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]*crawler.WorkItem)
	s.pending = nil
	s.nextSeq = 0
	s.claims.Clear()
	return nil
}

// Get returns a copy of the item stored under url.
func (s *FrontierStore) Get(_ context.Context, url string) (crawler.WorkItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[url]
	if !ok {
		return crawler.WorkItem{}, crawler.ErrNotFound
	}
	return *item, nil
}

// List returns items in discovery order.
func (s *FrontierStore) List(_ context.Context, filter crawler.ListFilter) ([]crawler.WorkItem, error) {
	s.mu.RLock()
	out := make([]crawler.WorkItem, 0, len(s.items))
	for _, item := range s.items {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		out = append(out, *item)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []crawler.WorkItem{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (s *FrontierStore) Close() error {
	return nil
}

func pointerTime(t time.Time) *time.Time {
	return &t
}
