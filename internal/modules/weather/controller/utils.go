package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	// maxPage keeps (page-1)*limit well inside int range.
	maxPage = 1_000_000
)

// observationRanges are the shorthand windows accepted by ?range=.
var observationRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"6h":  6 * time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

type observationsQuery struct {
	from   time.Time
	to     time.Time
	limit  int
	offset int
	page   int
}

// parseObservationsQuery reads from/to (RFC3339) or range, limit and page.
// range is relative to now and cannot be combined with from or to.
func parseObservationsQuery(r *http.Request, now time.Time) (observationsQuery, error) {
	q := r.URL.Query()
	var out observationsQuery
	var err error

	if s := q.Get("from"); s != "" {
		out.from, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return observationsQuery{}, errors.New("invalid 'from' (expected RFC3339)")
		}
	}
	if s := q.Get("to"); s != "" {
		out.to, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return observationsQuery{}, errors.New("invalid 'to' (expected RFC3339)")
		}
	}
	if key := q.Get("range"); key != "" {
		if !out.from.IsZero() || !out.to.IsZero() {
			return observationsQuery{}, errors.New("'range' cannot be combined with 'from' or 'to'")
		}
		d, ok := resolveRange(key)
		if !ok {
			return observationsQuery{}, errors.New("invalid 'range' (allowed: 1h, 6h, 24h, 7d)")
		}
		out.to = now.UTC()
		out.from = out.to.Add(-d)
	}
	if !out.from.IsZero() && !out.to.IsZero() && out.from.After(out.to) {
		return observationsQuery{}, errors.New("'from' must be <= 'to'")
	}

	if out.limit, err = parseLimit(r); err != nil {
		return observationsQuery{}, err
	}
	out.page = parsePage(r)
	out.offset = (out.page - 1) * out.limit
	return out, nil
}

func parseLimit(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxLimit {
		return 0, errors.New("'limit' must be <= 1000")
	}
	return n, nil
}

func resolveRange(key string) (time.Duration, bool) {
	d, ok := observationRanges[key]
	return d, ok
}

// parsePage returns the 1-based page number from the request (default 1,
// min 1, capped at maxPage).
func parsePage(r *http.Request) int {
	s := r.URL.Query().Get("page")
	if s == "" {
		return 1
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return min(n, maxPage)
}
