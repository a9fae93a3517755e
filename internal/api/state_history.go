package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/dysonlink/internal/device"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// historyQuery is the parsed query string of the history endpoint.
type historyQuery struct {
	limit int
	since time.Time // zero: no lower bound
}

func parseHistoryQuery(q url.Values) (historyQuery, error) {
	hq := historyQuery{limit: defaultHistoryLimit}

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			return hq, badRequest("limit must be an integer")
		case n < 1:
			return hq, badRequest("limit must be at least 1")
		}
		hq.limit = min(n, maxHistoryLimit)
	}

	since, err := parseSinceParam(q.Get("since"))
	if err != nil {
		return hq, badRequest("invalid since timestamp")
	}
	hq.since = since
	return hq, nil
}

// keep drops entries at or before the since bound. Entries arrive newest
// first, so the cut is a prefix.
func (hq historyQuery) keep(entries []device.StateHistoryEntry) []device.StateHistoryEntry {
	if hq.since.IsZero() {
		return entries
	}
	for i, e := range entries {
		if !e.CreatedAt.After(hq.since) {
			return entries[:i]
		}
	}
	return entries
}

// handleGetDeviceHistory returns recorded snapshots for a device, newest first.
//
// Query parameters:
//   - limit: maximum entries (default 50, max 200)
//   - since: RFC3339 or unix seconds; only newer entries are returned
func (s *Server) handleGetDeviceHistory(w http.ResponseWriter, r *http.Request) {
	d, ok := s.deviceFromRequest(w, r)
	if !ok {
		return
	}
	if s.history == nil {
		writeError(w, notFound("state history disabled"))
		return
	}

	hq, err := parseHistoryQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.history.GetHistory(r.Context(), d.Serial(), hq.limit)
	if err != nil {
		s.logger.Error("loading state history failed", "serial", d.Serial(), "error", err)
		writeError(w, internalError("failed to load device history"))
		return
	}
	entries = hq.keep(entries)

	writeJSON(w, http.StatusOK, map[string]any{
		"serial":  d.Serial(),
		"history": entries,
		"count":   len(entries),
	})
}

// parseSinceParam accepts RFC3339 or unix seconds. Empty means no bound.
func parseSinceParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}
