package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/frontier-crawler/internal/clock/fake"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/storage/storagetest"
)

func openTemp(t *testing.T, clock crawler.Clock) *FrontierStore {
	t.Helper()
	store, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "frontier.db"),
	}, clock)
	require.NoError(t, err)
	return store
}

func TestFrontierStoreContract(t *testing.T) {
	t.Parallel()

	storagetest.Run(t, func(t *testing.T) crawler.FrontierStore {
		return openTemp(t, nil)
	})
}

func TestOpenValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, nil)
	require.Error(t, err)

	_, err = Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "x.db"), Table: "bad-name"}, nil)
	require.ErrorContains(t, err, "invalid table name")
}

func TestStatePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "frontier.db")
	clk := fake.New(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	store, err := Open(ctx, Config{Path: path, Table: "queue"}, clk)
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, crawler.Candidate{URL: "https://example.com", MaxDepth: 2, Classification: crawler.ClassCrawlable})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, crawler.Candidate{
		URL: "https://example.com/a", ParentURL: "https://example.com", Depth: 1, MaxDepth: 2,
		Classification: crawler.ClassCrawlable,
	})
	require.NoError(t, err)

	// The seed is in flight when the process stops.
	item, ok, err := store.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com", item.URL)
	require.NoError(t, store.Close())

	reopened, err := Open(ctx, Config{Path: path, Table: "queue"}, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	again, ok, err := reopened.DequeueNext(ctx)
	require.NoError(t, err)
	require.True(t, ok, "abandoned in-flight item must be dequeued again")
	assert.Equal(t, "https://example.com", again.URL)
	assert.Equal(t, clk.Now(), again.DiscoveredAt)

	child, err := reopened.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", child.ParentURL)
	assert.Equal(t, 1, child.Depth)
	assert.Equal(t, 2, child.MaxDepth)
}

func TestResetRestartsSequence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := openTemp(t, nil)
	t.Cleanup(func() { _ = store.Close() })

	_, err := store.Enqueue(ctx, crawler.Candidate{URL: "https://example.com/1", MaxDepth: 1})
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))
	_, err = store.Enqueue(ctx, crawler.Candidate{URL: "https://example.com/2", MaxDepth: 1})
	require.NoError(t, err)

	item, err := store.Get(ctx, "https://example.com/2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.Seq)
}
