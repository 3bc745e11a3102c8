package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/config"
	"github.com/JakeFAU/frontier-crawler/internal/control"
	"github.com/JakeFAU/frontier-crawler/internal/crawler"
	"github.com/JakeFAU/frontier-crawler/internal/storage/memory"
)

func TestServer_StartCrawl_JSON(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := newTestServer(ctrl, nil)

	body := `{"start_url":"https://example.com/","max_depth":3}`
	req := httptest.NewRequest(http.MethodPost, "/admin/crawl", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []control.SeedRequest{{URL: "https://example.com/", MaxDepth: 3}}, ctrl.Seeds())

	var res control.SeedResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Inserted)
	require.True(t, res.Status.IsRunning)
	require.EqualValues(t, 1, res.Status.Pending)
}

func TestServer_StartCrawl_FormUsesDefaultDepth(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := newTestServer(ctrl, nil)

	form := url.Values{"start_url": {"https://example.com/"}, "reset": {"true"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/crawl", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []control.SeedRequest{{URL: "https://example.com/", MaxDepth: 2, Reset: true}}, ctrl.Seeds())
}

func TestServer_StartCrawl_BadInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{name: "invalid json", contentType: "application/json", body: "{invalid", want: "invalid JSON"},
		{name: "non integer depth", contentType: "application/x-www-form-urlencoded", body: "start_url=https://example.com&max_depth=two", want: "max_depth must be an integer"},
		{name: "bad reset", contentType: "application/x-www-form-urlencoded", body: "start_url=https://example.com&reset=maybe", want: "reset must be a boolean"},
		{name: "missing url", contentType: "application/x-www-form-urlencoded", body: "max_depth=2", want: "please provide a start URL"},
		{name: "zero depth", contentType: "application/json", body: `{"start_url":"https://example.com","max_depth":0}`, want: "max depth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(&fakeController{}, nil)
			req := httptest.NewRequest(http.MethodPost, "/admin/crawl", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestServer_StartCrawl_ResetWhileRunningConflicts(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{seedErr: control.ErrRunning}
	server := newTestServer(ctrl, nil)

	req := httptest.NewRequest(http.MethodPost, "/admin/crawl",
		bytes.NewBufferString(`{"start_url":"https://example.com/","reset":true}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_PauseResumeStats(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := newTestServer(ctrl, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/pause", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pending":0,"crawled":0,"failed":0,"is_running":false,"is_paused":true}`, rec.Body.String())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/resume", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"is_paused":false`)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pending"`)
}

func TestServer_Reset(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := newTestServer(ctrl, nil)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reset", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	ctrl.resetErr = control.ErrRunning
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reset", nil))
	require.Equal(t, http.StatusConflict, rec.Code)

	ctrl.resetErr = errors.New("disk full")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/reset", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	ctrl := &fakeController{}
	server := newTestServer(ctrl, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	ctrl.statusErr = errors.New("connection refused")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeController{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_Items(t *testing.T) {
	t.Parallel()

	store := memory.NewFrontierStore(nil)
	ctx := context.Background()
	for i, path := range []string{"/", "/a", "/logo.png"} {
		parent := ""
		if i > 0 {
			parent = "https://example.com/"
		}
		_, err := store.Enqueue(ctx, crawler.Candidate{
			URL:            "https://example.com" + path,
			ParentURL:      parent,
			Depth:          min(i, 1),
			MaxDepth:       1,
			Classification: crawler.Classify(path),
		})
		require.NoError(t, err)
	}
	server := newTestServer(&fakeController{}, store)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items?status=pending&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items []crawler.WorkItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 2)
	require.Equal(t, "https://example.com/", listed.Items[0].URL)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items?limit=1&offset=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 1)
	require.Equal(t, crawler.ClassMedia, listed.Items[0].Classification)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items?status=done", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items?limit=-1", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	lookup := "/admin/items/lookup?url=" + url.QueryEscape("HTTPS://EXAMPLE.com/a")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, lookup, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"parent_url"`)
	require.Contains(t, rec.Body.String(), `"depth":1`)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/admin/items/lookup?url="+url.QueryEscape("https://example.com/missing"), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items/lookup", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ItemsWithoutStore(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeController{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/items", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server := NewServer(&fakeController{}, nil, cfg, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open for the orchestrator.
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeController{panicOnStatus: true}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- helpers/fakes ---

type fakeController struct {
	mu            sync.Mutex
	seeds         []control.SeedRequest
	paused        bool
	running       bool
	seedErr       error
	resetErr      error
	statusErr     error
	panicOnStatus bool
}

func (f *fakeController) EnqueueSeed(_ context.Context, req control.SeedRequest) (control.SeedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seedErr != nil {
		return control.SeedResult{}, f.seedErr
	}
	if strings.TrimSpace(req.URL) == "" {
		return control.SeedResult{}, fmt.Errorf("%w: please provide a start URL", control.ErrInvalidSeed)
	}
	if req.MaxDepth < 1 {
		return control.SeedResult{}, fmt.Errorf("%w: max depth must be at least 1", control.ErrInvalidSeed)
	}
	f.seeds = append(f.seeds, req)
	f.running = true
	return control.SeedResult{
		URL:      req.URL,
		Inserted: true,
		Status: control.Status{
			Counts:    crawler.Counts{Pending: 1},
			IsRunning: true,
			IsPaused:  f.paused,
		},
	}, nil
}

func (f *fakeController) Seeds() []control.SeedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]control.SeedRequest(nil), f.seeds...)
}

func (f *fakeController) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeController) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return nil
}

func (f *fakeController) Status(context.Context) (control.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnStatus {
		panic("status exploded")
	}
	if f.statusErr != nil {
		return control.Status{}, f.statusErr
	}
	return control.Status{IsRunning: f.running, IsPaused: f.paused}, nil
}

func (f *fakeController) Reset(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resetErr
}

func testConfig() config.Config {
	return config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSeconds: 5},
		Crawler: config.CrawlerConfig{DefaultMaxDepth: 2},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 10},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
	}
}

func newTestServer(ctrl Controller, store ItemReader) *Server {
	return NewServer(ctrl, store, testConfig(), zap.NewNop())
}
