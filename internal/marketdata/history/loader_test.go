package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/store/sqlite"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type memCache struct {
	mu      sync.Mutex
	data    map[string][]model.Bar
	failGet bool
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]model.Bar)} }

func (c *memCache) Get(ctx context.Context, q model.BarQuery) ([]model.Bar, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, errors.New("cache down")
	}
	bars, ok := c.data[flightKey(q)]
	return bars, ok, nil
}

func (c *memCache) Put(ctx context.Context, q model.BarQuery, bars []model.Bar) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[flightKey(q)] = bars
	return nil
}

type countingSource struct {
	mu    sync.Mutex
	calls int
	bars  []model.Bar
	err   error
	gate  chan struct{}
}

func (s *countingSource) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.bars, s.err
}

func (s *countingSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func pastQuery() model.BarQuery {
	from := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return model.BarQuery{Symbol: "aapl", Timespan: model.Day, From: from, To: from.AddDate(0, 0, 2)}
}

func threeBars(q model.BarQuery) []model.Bar {
	return []model.Bar{
		{Timestamp: q.From.AddDate(0, 0, 2).UnixMilli(), Close: 3},
		{Timestamp: q.From.UnixMilli(), Close: 1},
		{Timestamp: q.From.AddDate(0, 0, 1).UnixMilli(), Close: 2},
	}
}

// ────────────────────────────────────────────────────────────
// Tests
// ────────────────────────────────────────────────────────────

func TestLoader_TierOrderAndWriteBack(t *testing.T) {
	q := pastQuery()
	store, err := sqlite.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cache := newMemCache()
	remote := &countingSource{bars: threeBars(q)}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	l := NewLoader(Config{Cache: cache, Store: store, Remote: remote, Metrics: m})
	ctx := context.Background()

	bars, err := l.Bars(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 || bars[0].Close != 1 || bars[2].Close != 3 {
		t.Fatalf("remote bars not normalised: %+v", bars)
	}
	if remote.Calls() != 1 {
		t.Fatalf("remote calls=%d, want 1", remote.Calls())
	}

	// Cache serves the repeat.
	if _, err := l.Bars(ctx, q); err != nil {
		t.Fatal(err)
	}
	if remote.Calls() != 1 {
		t.Errorf("cache hit should not reach remote, calls=%d", remote.Calls())
	}
	if got := testutil.ToFloat64(m.HistoryLookups.WithLabelValues("cache", "hit")); got != 1 {
		t.Errorf("cache hits=%v, want 1", got)
	}

	// Without the cache, the store serves the saved range.
	cache.failGet = true
	if _, err := l.Bars(ctx, q); err != nil {
		t.Fatal(err)
	}
	if remote.Calls() != 1 {
		t.Errorf("store hit should not reach remote, calls=%d", remote.Calls())
	}
	if got := testutil.ToFloat64(m.HistoryLookups.WithLabelValues("store", "hit")); got != 1 {
		t.Errorf("store hits=%v, want 1", got)
	}
}

func TestLoader_OpenRangeNotRecorded(t *testing.T) {
	store, err := sqlite.Open(":memory:", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	q := model.BarQuery{Symbol: "MSFT", Timespan: model.Day, From: now.AddDate(0, 0, -2), To: now}
	l := NewLoader(Config{Store: store, Remote: &countingSource{bars: threeBars(q)}})
	l.now = func() time.Time { return now }

	if _, err := l.Bars(context.Background(), q); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.Covers(context.Background(), q); ok {
		t.Error("a range ending now should not be recorded as complete")
	}
}

func TestLoader_Errors(t *testing.T) {
	ctx := context.Background()

	l := NewLoader(Config{Remote: &countingSource{}})
	if _, err := l.Bars(ctx, pastQuery()); !errors.Is(err, ErrNoData) {
		t.Errorf("empty remote: err=%v, want ErrNoData", err)
	}

	boom := errors.New("boom")
	l = NewLoader(Config{Remote: &countingSource{err: boom}})
	if _, err := l.Bars(ctx, pastQuery()); !errors.Is(err, boom) {
		t.Errorf("remote failure: err=%v, want wrapped boom", err)
	}

	bad := pastQuery()
	bad.From, bad.To = bad.To, bad.From
	if _, err := l.Bars(ctx, bad); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("inverted range: err=%v, want ErrInvalidQuery", err)
	}
	if _, err := l.Bars(ctx, model.BarQuery{Symbol: "  "}); !errors.Is(err, ErrInvalidQuery) {
		t.Errorf("empty symbol: err=%v, want ErrInvalidQuery", err)
	}
}

func TestLoader_CollapsesConcurrentLoads(t *testing.T) {
	q := pastQuery()
	remote := &countingSource{bars: threeBars(q), gate: make(chan struct{})}
	l := NewLoader(Config{Remote: remote})

	var wg sync.WaitGroup
	results := make([][]model.Bar, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = l.Bars(context.Background(), q)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(remote.gate)
	wg.Wait()

	if remote.Calls() != 1 {
		t.Errorf("remote calls=%d, want 1", remote.Calls())
	}
	for i, r := range results {
		if len(r) != 3 {
			t.Errorf("caller %d got %d bars", i, len(r))
		}
	}
}

func TestNormalize(t *testing.T) {
	in := []model.Bar{{Timestamp: 3, Close: 3}, {Timestamp: 1, Close: 1}, {Timestamp: 3, Close: 33}, {Timestamp: 2}}
	got := Normalize(in)
	if len(got) != 3 || got[0].Timestamp != 1 || got[2].Close != 33 {
		t.Errorf("Normalize=%+v", got)
	}
	if in[0].Timestamp != 3 {
		t.Error("Normalize mutated its input")
	}
}
