// Package history loads historical bars through a tiered lookup: the Redis
// cache, then ranges already persisted in SQLite, then the remote source,
// writing remote results back to both.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

var (
	// ErrNoData is returned when no tier has bars for the query.
	ErrNoData = errors.New("history: no bars for query")
	// ErrInvalidQuery is returned for an empty symbol or an inverted range.
	ErrInvalidQuery = errors.New("history: invalid query")
)

// Config wires the loader's tiers. Cache and Store are optional.
type Config struct {
	Cache   model.BarCache
	Store   model.BarStore
	Remote  model.BarSource
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Loader implements model.BarSource over the configured tiers. Concurrent
// loads of the same query share one lookup.
type Loader struct {
	cache  model.BarCache
	store  model.BarStore
	remote model.BarSource
	m      *metrics.Metrics
	log    *slog.Logger
	group  singleflight.Group
	now    func() time.Time
}

// NewLoader creates a loader. cfg.Remote is required.
func NewLoader(cfg Config) *Loader {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loader{
		cache:  cfg.Cache,
		store:  cfg.Store,
		remote: cfg.Remote,
		m:      cfg.Metrics,
		log:    log.With("component", "history"),
		now:    time.Now,
	}
}

var _ model.BarSource = (*Loader)(nil)

// Bars returns ascending, de-duplicated bars for q.
func (l *Loader) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	q.Symbol = model.NormalizeSymbol(q.Symbol)
	if q.Timespan == "" {
		q.Timespan = model.Day
	}
	if q.Symbol == "" || q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: symbol=%q from=%s to=%s", ErrInvalidQuery, q.Symbol, q.From, q.To)
	}

	start := time.Now()
	v, err, shared := l.group.Do(flightKey(q), func() (any, error) {
		return l.load(ctx, q)
	})
	if l.m != nil {
		l.m.HistoryLoadDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	bars := v.([]model.Bar)
	if shared {
		// Callers must not share a backing array.
		bars = append([]model.Bar(nil), bars...)
	}
	return bars, nil
}

func (l *Loader) load(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	if bars, ok := l.fromCache(ctx, q); ok {
		return bars, nil
	}
	if bars, ok := l.fromStore(ctx, q); ok {
		l.putCache(ctx, q, bars)
		return bars, nil
	}

	bars, err := l.remote.Bars(ctx, q)
	if err != nil {
		l.count("remote", "error")
		return nil, fmt.Errorf("history remote: %w", err)
	}
	bars = Normalize(bars)
	if len(bars) == 0 {
		l.count("remote", "miss")
		return nil, fmt.Errorf("%w: %s %s", ErrNoData, q.Symbol, q.Timespan)
	}
	l.count("remote", "hit")

	l.putCache(ctx, q, bars)
	if l.store != nil && l.closed(q) {
		if err := l.store.SaveRange(ctx, q, bars); err != nil {
			l.log.Warn("bar store write failed", "symbol", q.Symbol, "error", err)
		}
	}
	return bars, nil
}

func (l *Loader) fromCache(ctx context.Context, q model.BarQuery) ([]model.Bar, bool) {
	if l.cache == nil {
		return nil, false
	}
	bars, ok, err := l.cache.Get(ctx, q)
	switch {
	case err != nil:
		l.count("cache", "error")
		l.log.Warn("bar cache read failed", "symbol", q.Symbol, "error", err)
		return nil, false
	case !ok:
		l.count("cache", "miss")
		return nil, false
	}
	l.count("cache", "hit")
	return bars, true
}

func (l *Loader) fromStore(ctx context.Context, q model.BarQuery) ([]model.Bar, bool) {
	if l.store == nil {
		return nil, false
	}
	covered, err := l.store.Covers(ctx, q)
	if err != nil {
		l.count("store", "error")
		l.log.Warn("bar store lookup failed", "symbol", q.Symbol, "error", err)
		return nil, false
	}
	if !covered {
		l.count("store", "miss")
		return nil, false
	}
	bars, err := l.store.Bars(ctx, q)
	if err != nil {
		l.count("store", "error")
		l.log.Warn("bar store read failed", "symbol", q.Symbol, "error", err)
		return nil, false
	}
	l.count("store", "hit")
	return bars, true
}

func (l *Loader) putCache(ctx context.Context, q model.BarQuery, bars []model.Bar) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Put(ctx, q, bars); err != nil {
		l.log.Warn("bar cache write failed", "symbol", q.Symbol, "error", err)
	}
}

// closed reports whether q ends at least one bar before now, so its range can
// no longer gain bars and may be recorded as complete.
func (l *Loader) closed(q model.BarQuery) bool {
	return q.To.Before(l.now().Add(-q.Timespan.Step()))
}

func (l *Loader) count(source, result string) {
	if l.m != nil {
		l.m.HistoryLookups.WithLabelValues(source, result).Inc()
	}
}

// Normalize sorts bars by timestamp and keeps the last bar for any repeated
// timestamp, so the result is strictly increasing.
func Normalize(bars []model.Bar) []model.Bar {
	out := append([]model.Bar(nil), bars...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })

	n := 0
	for i, b := range out {
		if i > 0 && b.Timestamp == out[n-1].Timestamp {
			out[n-1] = b
			continue
		}
		out[n] = b
		n++
	}
	return out[:n]
}

func flightKey(q model.BarQuery) string {
	return q.Symbol + "|" + string(q.Timespan) + "|" +
		strconv.FormatInt(q.From.UnixMilli(), 10) + "|" + strconv.FormatInt(q.To.UnixMilli(), 10)
}
