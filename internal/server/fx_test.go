package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/config"
	"github.com/JakeFAU/frontier-crawler/internal/control"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	pgstore "github.com/JakeFAU/frontier-crawler/internal/storage/postgres"
)

func testConfig(t *testing.T, backend string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5, ShutdownTimeoutSeconds: 5},
		Crawler: config.CrawlerConfig{DefaultMaxDepth: 1},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5},
		Storage: config.StorageConfig{
			Backend: backend,
			Table:   "crawl_queue",
			SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "frontier.db")},
		},
		Progress: config.ProgressConfig{
			MaxBatchEvents: 8,
			MaxBatchWaitMs: 20,
			SinkTimeoutMs:  1000,
			Prometheus:     config.ToggleConfig{Enabled: true},
		},
	}
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><body><a href="/a">a</a><a href="/missing">gone</a><a href="/logo.png">logo</a></body></html>`)
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<a href="/deeper">too deep</a>`)
	})
	site := httptest.NewServer(mux)
	t.Cleanup(site.Close)
	return site
}

func TestBuild_CrawlThroughAdminAPI(t *testing.T) {
	t.Parallel()

	site := newSite(t)
	cfg := testConfig(t, config.BackendMemory)
	app, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop(), Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, app.Close(ctx))
	})

	body, err := json.Marshal(map[string]any{"start_url": site.URL + "/"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/crawl", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	select {
	case <-app.Controller().Done():
	case <-time.After(10 * time.Second):
		t.Fatal("crawl did not finish")
	}

	var status control.Status
	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
		if rec.Code != http.StatusOK || json.Unmarshal(rec.Body.Bytes(), &status) != nil {
			return false
		}
		return !status.IsRunning
	}, 5*time.Second, 10*time.Millisecond)

	// Seed, /a and /logo.png crawled; /missing failed; /deeper never discovered.
	require.Equal(t, crawler.Counts{Crawled: 3, Failed: 1}, status.Counts)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items?status=failed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/missing")
}

func TestOpenStore_SQLitePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.BackendSQLite)
	ctx := context.Background()

	store, err := OpenStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	inserted, err := store.Enqueue(ctx, crawler.Candidate{URL: "https://example.com/", MaxDepth: 2})
	require.NoError(t, err)
	require.True(t, inserted)
	require.NoError(t, store.Close())

	store, err = OpenStore(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, crawler.Counts{Pending: 1}, counts)
}

func TestBuild_FailsForMisconfiguredSink(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, config.BackendMemory)
	cfg.Progress.Prometheus.Enabled = false
	cfg.Progress.Kafka = config.KafkaSinkConfig{Enabled: true}

	_, err := Build(context.Background(), cfg, Options{Logger: zap.NewNop()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "kafka progress sink")
}

func TestPreparePostgres_CreatesFrontierTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := pgstore.NewFrontierStoreWithPool(mock, "crawl_queue", nil)
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_queue").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, preparePostgres(context.Background(), store))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreparePostgres_ClosesStoreOnSchemaError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := pgstore.NewFrontierStoreWithPool(mock, "crawl_queue", nil)
	require.NoError(t, err)

	boom := errors.New("permission denied for schema public")
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS crawl_queue").WillReturnError(boom)
	mock.ExpectClose()

	err = preparePostgres(context.Background(), store)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "postgres frontier init failed")
	require.NoError(t, mock.ExpectationsWereMet())
}
