package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ── Storage Port Interfaces ──
// These decouple the history loader from concrete stores (Redis, SQLite,
// Polygon REST, synthetic data).

// BarQuery selects a contiguous range of bars for one symbol.
type BarQuery struct {
	Symbol   string
	Timespan Timespan
	From     time.Time
	To       time.Time
}

// ParseTime accepts YYYY-MM-DD (UTC midnight), RFC 3339 or epoch milliseconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", s)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// BarSource returns bars for a query, ordered by timestamp ascending.
type BarSource interface {
	Bars(ctx context.Context, q BarQuery) ([]Bar, error)
}

// BarStore persists bars durably along with the query ranges it has fully
// loaded, so a later query inside a loaded range can be served locally.
type BarStore interface {
	BarSource

	// Covers reports whether a previously saved range contains q.
	Covers(ctx context.Context, q BarQuery) (bool, error)

	// SaveRange upserts bars and records q's range as loaded.
	SaveRange(ctx context.Context, q BarQuery, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarCache is a short-lived cache keyed by query.
type BarCache interface {
	Get(ctx context.Context, q BarQuery) ([]Bar, bool, error)
	Put(ctx context.Context, q BarQuery, bars []Bar) error
}
