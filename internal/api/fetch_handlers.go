package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/feeds"
)

const (
	defaultFetchLimit = 50
	maxFetchLimit     = 500
	defaultPaperLimit = 50
	maxPaperLimit     = 500
	fetchesTimeout    = 3 * time.Second
)

// FetchHandler exposes read-only fetch run history.
type FetchHandler struct {
	runs    feeds.FetchRunStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewFetchHandler wires the run store and logger.
func NewFetchHandler(runs feeds.FetchRunStore, logger *zap.Logger) *FetchHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FetchHandler{
		runs:    runs,
		timeout: fetchesTimeout,
		logger:  logger,
	}
}

// ListFetches handles GET /api/fetches?issn=&limit=&offset=. It returns
// {"fetches": [...]} newest first, 400 for invalid paging values, 503 when no
// store is configured, or 500 if the store call fails.
func (h *FetchHandler) ListFetches(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "fetch history unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultFetchLimit, maxFetchLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	issn := strings.TrimSpace(r.URL.Query().Get("issn"))
	runs, err := h.runs.ListRuns(ctx, issn, limit, offset)
	if err != nil {
		h.logger.Error("list fetch runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list fetches")
		return
	}
	if runs == nil {
		runs = []feeds.FetchRun{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"fetches": runs,
		"limit":   limit,
		"offset":  offset,
	})
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
