// Package storagetest provides a behavioural test suite that every
// crawler.FrontierStore implementation must pass.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
)

// Factory returns a fresh, empty store for a single subtest.
type Factory func(t *testing.T) crawler.FrontierStore

// Run executes the frontier store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := map[string]func(t *testing.T, store crawler.FrontierStore){
		"FirstDiscoveryWins":         testFirstDiscoveryWins,
		"ConcurrentEnqueueIsUnique":  testConcurrentEnqueue,
		"RejectsDepthBeyondBudget":   testRejectsInvalid,
		"BreadthFirstOrder":          testBreadthFirstOrder,
		"DequeueClaimsItem":          testDequeueClaims,
		"NonCrawlableStoredAsLeaf":   testNonCrawlableLeaf,
		"StatusIsWriteOnceForward":   testWriteOnceForward,
		"ResetIsIdempotent":          testReset,
		"ListFiltersAndPages":        testList,
		"GetMissingReturnsNotFound":  testGetMissing,
		"TerminalItemsLeaveFrontier": testTerminalLeavesFrontier,
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() { _ = store.Close() })
			fn(t, store)
		})
	}
}

func seed(url string, depth, maxDepth int) crawler.Candidate {
	return crawler.Candidate{
		URL:            url,
		Depth:          depth,
		MaxDepth:       maxDepth,
		Classification: crawler.ClassCrawlable,
	}
}

func testFirstDiscoveryWins(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()

	inserted, err := store.Enqueue(ctx, crawler.Candidate{
		URL: "https://example.com/a", ParentURL: "https://example.com", Depth: 1, MaxDepth: 3,
		Classification: crawler.ClassCrawlable,
	})
	require.NoError(t, err)
	require.True(t, inserted)

	for depth := 0; depth <= 3; depth++ {
		inserted, err = store.Enqueue(ctx, crawler.Candidate{
			URL: "https://example.com/a", ParentURL: "https://other.example", Depth: depth, MaxDepth: 3,
			Classification: crawler.ClassCrawlable,
		})
		require.NoError(t, err)
		assert.False(t, inserted)
	}

	item, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", item.ParentURL)
	assert.Equal(t, 1, item.Depth)
	assert.Equal(t, crawler.StatusPending, item.Status)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Counts{Pending: 1}, counts)
}

func testConcurrentEnqueue(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	const workers = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Enqueue(ctx, seed("https://example.com/same", 0, 1))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Total())
}

func testRejectsInvalid(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()

	_, err := store.Enqueue(ctx, seed("https://example.com/deep", 3, 2))
	require.ErrorIs(t, err, crawler.ErrInvalidItem)
	_, err = store.Enqueue(ctx, seed("", 0, 1))
	require.ErrorIs(t, err, crawler.ErrInvalidItem)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func testBreadthFirstOrder(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()

	for i, depth := range []int{2, 0, 1, 0} {
		_, err := store.Enqueue(ctx, seed(fmt.Sprintf("https://example.com/%d", i), depth, 2))
		require.NoError(t, err)
	}

	want := []string{
		"https://example.com/1",
		"https://example.com/3",
		"https://example.com/2",
		"https://example.com/0",
	}
	for _, url := range want {
		item, ok, err := store.DequeueNext(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, url, item.URL)
		require.NoError(t, store.MarkTerminal(ctx, item.URL, crawler.StatusCrawled))
	}

	_, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDequeueClaims(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	_, err := store.Enqueue(ctx, seed("https://example.com/first", 0, 1))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, seed("https://example.com/second", 0, 1))
	require.NoError(t, err)

	first, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	second, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, first.URL, second.URL)

	_, ok, err = store.DequeueNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "claimed items must not be handed out twice")

	require.NoError(t, store.Release(ctx, first.URL))
	again, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.URL, again.URL)
	assert.Equal(t, crawler.StatusPending, again.Status)
}

func testNonCrawlableLeaf(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()

	for _, c := range []crawler.Candidate{
		{URL: "https://example.com/logo.png", ParentURL: "https://example.com", Depth: 1, MaxDepth: 1, Classification: crawler.ClassMedia},
		{URL: "https://example.com/app.js", ParentURL: "https://example.com", Depth: 1, MaxDepth: 1, Classification: crawler.ClassWebSupport},
	} {
		inserted, err := store.Enqueue(ctx, c)
		require.NoError(t, err)
		require.True(t, inserted)

		item, err := store.Get(ctx, c.URL)
		require.NoError(t, err)
		assert.Equal(t, crawler.StatusCrawled, item.Status)
		assert.Equal(t, c.Classification, item.Classification)
		assert.NotNil(t, item.CrawledAt)
		assert.Nil(t, item.FailedAt)
	}

	_, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Counts{Crawled: 2}, counts)
}

func testWriteOnceForward(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	_, err := store.Enqueue(ctx, seed("https://example.com/ok", 0, 1))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, seed("https://example.com/bad", 0, 1))
	require.NoError(t, err)

	require.NoError(t, store.MarkTerminal(ctx, "https://example.com/ok", crawler.StatusCrawled))
	require.NoError(t, store.MarkTerminal(ctx, "https://example.com/bad", crawler.StatusFailed))

	require.ErrorIs(t, store.MarkTerminal(ctx, "https://example.com/ok", crawler.StatusFailed), crawler.ErrNotPending)
	require.ErrorIs(t, store.MarkTerminal(ctx, "https://example.com/bad", crawler.StatusCrawled), crawler.ErrNotPending)
	require.ErrorIs(t, store.MarkTerminal(ctx, "https://example.com/missing", crawler.StatusCrawled), crawler.ErrNotPending)
	require.ErrorIs(t, store.MarkTerminal(ctx, "https://example.com/ok", crawler.StatusPending), crawler.ErrInvalidItem)

	ok, err := store.Get(ctx, "https://example.com/ok")
	require.NoError(t, err)
	assert.Equal(t, crawler.StatusCrawled, ok.Status)
	assert.NotNil(t, ok.CrawledAt)
	assert.Nil(t, ok.FailedAt)

	bad, err := store.Get(ctx, "https://example.com/bad")
	require.NoError(t, err)
	assert.Equal(t, crawler.StatusFailed, bad.Status)
	assert.NotNil(t, bad.FailedAt)
	assert.Nil(t, bad.CrawledAt)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, crawler.Counts{Crawled: 1, Failed: 1}, counts)
}

func testReset(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	_, err := store.Enqueue(ctx, seed("https://example.com", 0, 2))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, crawler.Candidate{
		URL: "https://example.com/x.css", Depth: 1, MaxDepth: 2, Classification: crawler.ClassWebSupport,
	})
	require.NoError(t, err)
	_, _, err = store.DequeueNext(ctx)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, store.Reset(ctx))
		counts, err := store.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, crawler.Counts{}, counts)
	}

	inserted, err := store.Enqueue(ctx, seed("https://example.com", 0, 2))
	require.NoError(t, err)
	assert.True(t, inserted)
	item, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok, "reset must drop stale claims")
	assert.Equal(t, "https://example.com", item.URL)
}

func testList(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Enqueue(ctx, seed(fmt.Sprintf("https://example.com/%d", i), 0, 1))
		require.NoError(t, err)
	}
	require.NoError(t, store.MarkTerminal(ctx, "https://example.com/1", crawler.StatusFailed))

	all, err := store.List(ctx, crawler.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "https://example.com/0", all[0].URL)
	assert.Equal(t, "https://example.com/4", all[4].URL)

	page, err := store.List(ctx, crawler.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "https://example.com/1", page[0].URL)
	assert.Equal(t, "https://example.com/2", page[1].URL)

	failed, err := store.List(ctx, crawler.ListFilter{Status: crawler.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "https://example.com/1", failed[0].URL)

	empty, err := store.List(ctx, crawler.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testGetMissing(t *testing.T, store crawler.FrontierStore) {
	_, err := store.Get(context.Background(), "https://nowhere.example")
	require.ErrorIs(t, err, crawler.ErrNotFound)
}

func testTerminalLeavesFrontier(t *testing.T, store crawler.FrontierStore) {
	ctx := context.Background()
	_, err := store.Enqueue(ctx, seed("https://example.com", 0, 1))
	require.NoError(t, err)

	item, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.MarkTerminal(ctx, item.URL, crawler.StatusCrawled))
	require.NoError(t, store.Release(ctx, item.URL))

	_, ok, err = store.DequeueNext(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
