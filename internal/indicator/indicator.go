// Package indicator computes technical indicators over OHLCV bar series.
//
// The batch functions (SMA, EMA, RSI, MACD, BollingerBands, ATR) take an
// ordered bar slice and return a freshly allocated series aligned to bar
// timestamps. Input shorter than an indicator's warm-up yields an empty
// series, never an error. Each batch function folds one of the rolling
// calculators in this package, which can also be fed one bar at a time.
package indicator

import "github.com/vortexpixelz/datax-research-terminal/internal/model"

// Default lookback parameters.
const (
	DefaultRSIPeriod    = 14
	DefaultATRPeriod    = 14
	DefaultMACDFast     = 12
	DefaultMACDSlow     = 26
	DefaultMACDSignal   = 9
	DefaultBandsPeriod  = 20
	DefaultBandsStdDevK = 2.0
)

// Rolling is the interface for all streaming indicator calculators.
type Rolling interface {
	// Name returns the indicator name (e.g., "SMA", "RSI").
	Name() string

	// Update feeds the next bar and recalculates.
	Update(bar model.Bar)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// fold feeds every bar into r and collects a point for each bar at which r
// is ready.
func fold(r Rolling, bars []model.Bar, capacity int) []model.Point {
	out := make([]model.Point, 0, capacity)
	for _, b := range bars {
		r.Update(b)
		if r.Ready() {
			out = append(out, model.Point{Timestamp: b.Timestamp, Value: r.Value()})
		}
	}
	return out
}
