package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/frontier-crawler/internal/crawler"
)

const (
	defaultItemLimit = 50
	maxItemLimit     = 500
	itemsTimeout     = 3 * time.Second
)

// ItemReader is the read-only slice of crawler.FrontierStore used for inspection.
type ItemReader interface {
	Get(ctx context.Context, url string) (crawler.WorkItem, error)
	List(ctx context.Context, filter crawler.ListFilter) ([]crawler.WorkItem, error)
}

// ItemHandler exposes read-only frontier endpoints.
type ItemHandler struct {
	store   ItemReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewItemHandler wires the store and logger.
func NewItemHandler(store ItemReader, logger *zap.Logger) *ItemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemHandler{
		store:   store,
		timeout: itemsTimeout,
		logger:  logger,
	}
}

// ListItems handles GET /admin/items?status=&limit=&offset=. It returns
// {"items": [...]} in discovery order, 400 for invalid filters, 503 when no
// store is wired, or 500 if the store call fails.
func (h *ItemHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "frontier store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultItemLimit, maxItemLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status, err := statusFromQuery(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	items, err := h.store.List(ctx, crawler.ListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		h.logger.Error("list items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []crawler.WorkItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// LookupItem handles GET /admin/items/lookup?url=. It returns {"item": {...}},
// 400 when url is missing, 404 for unknown URLs, or 500 otherwise.
func (h *ItemHandler) LookupItem(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "frontier store unavailable")
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	key := raw
	if normalized, err := crawler.NormalizeURL(raw); err == nil {
		key = normalized
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.logger.Error("get item failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load item")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
