// Package sim provides synthetic market data for development without a
// Polygon API key: a deterministic historical bar source and an in-process
// feed that emits trades and second aggregates for subscribed symbols.
//
// Prices follow a seeded random walk per symbol, so the same query always
// returns the same bars and indicator output is reproducible.
package sim

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

const (
	// maxBars caps a single synthetic response.
	maxBars = 5000
	// defaultLookback is used when a query has no range.
	defaultLookback = 30
)

// Source generates synthetic bars. It implements model.BarSource.
type Source struct {
	now func() time.Time
}

// NewSource creates a synthetic bar source.
func NewSource() *Source {
	return &Source{now: time.Now}
}

var _ model.BarSource = (*Source)(nil)

// Bars returns one bar per timespan step from q.From to q.To inclusive.
// A zero range yields the last 31 steps ending now.
func (s *Source) Bars(ctx context.Context, q model.BarQuery) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	step := q.Timespan.Step()
	from, to := q.From, q.To
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() || !from.Before(to) {
		from = to.Add(-defaultLookback * step)
	}
	return Generate(q.Symbol, from.Truncate(step), to, step), nil
}

// Generate produces bars for symbol from start, stepping by step, up to end.
// Output depends only on the arguments.
func Generate(symbol string, start, end time.Time, step time.Duration) []model.Bar {
	if step <= 0 || end.Before(start) {
		return []model.Bar{}
	}
	n := int(end.Sub(start)/step) + 1
	if n > maxBars {
		start = start.Add(time.Duration(n-maxBars) * step)
		n = maxBars
	}

	// Seed from symbol and start so overlapping ranges stay stable per start.
	rng := rand.New(rand.NewSource(seed(symbol) ^ start.UnixMilli()))
	price := BasePrice(symbol)
	vol := 0.01 + float64(seed(symbol)%20)/1000 // 1%..3% per step

	bars := make([]model.Bar, 0, n)
	for i := 0; i < n; i++ {
		open := price
		last := open * math.Exp(vol*rng.NormFloat64())
		high := math.Max(open, last) * (1 + vol*rng.Float64()/2)
		low := math.Min(open, last) * (1 - vol*rng.Float64()/2)
		bars = append(bars, model.Bar{
			Timestamp: start.Add(time.Duration(i) * step).UnixMilli(),
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(last),
			Volume:    float64(100_000 + rng.Intn(9_900_000)),
		})
		price = last
	}
	return bars
}

// BasePrice is the deterministic starting price for symbol, in [100, 500).
func BasePrice(symbol string) float64 {
	return 100 + float64(seed(symbol)%40000)/100
}

func seed(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(model.NormalizeSymbol(symbol)))
	return int64(h.Sum64() & math.MaxInt64)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
