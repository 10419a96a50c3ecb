package indicator

import "github.com/vortexpixelz/datax-research-terminal/internal/model"

// RollingRSI calculates the Relative Strength Index of closes using Wilder's
// smoothing method. Update is O(1) per bar.
type RollingRSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
	current   float64
}

// NewRollingRSI creates a new RSI calculator with the given period (typically 14).
func NewRollingRSI(period int) *RollingRSI {
	return &RollingRSI{period: period}
}

func (r *RollingRSI) Name() string { return "RSI" }

func (r *RollingRSI) Update(bar model.Bar) {
	price := bar.Close
	r.count++

	if r.count == 1 {
		// First bar: record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price

	gain := 0.0
	loss := 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period+1 {
		// Accumulation phase: build initial averages
		r.avgGain += gain
		r.avgLoss += loss

		if r.count == r.period+1 {
			r.avgGain /= float64(r.period)
			r.avgLoss /= float64(r.period)
			r.current = rsiFrom(r.avgGain, r.avgLoss)
		}
		return
	}

	// Wilder's smoothing: avgGain = (prevAvgGain * (period-1) + gain) / period
	p := float64(r.period)
	r.avgGain = (r.avgGain*(p-1) + gain) / p
	r.avgLoss = (r.avgLoss*(p-1) + loss) / p
	r.current = rsiFrom(r.avgGain, r.avgLoss)
}

func (r *RollingRSI) Value() float64 { return r.current }
func (r *RollingRSI) Ready() bool    { return r.count > r.period }

// rsiFrom maps smoothed averages to [0,100]. Gains with no losses give
// 100; a flat window (no gains, no losses) gives 0.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain > 0 {
			return 100.0
		}
		return 0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSI returns the relative strength index of closes. The first point is
// aligned to bars[period]; fewer than period+1 bars yields an empty series.
func RSI(bars []model.Bar, period int) []model.Point {
	if period <= 0 || len(bars) <= period {
		return []model.Point{}
	}
	return fold(NewRollingRSI(period), bars, len(bars)-period)
}
