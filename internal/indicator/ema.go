package indicator

import "github.com/vortexpixelz/datax-research-terminal/internal/model"

// RollingEMA calculates Exponential Moving Average.
// O(1) per update with no window storage.
type RollingEMA struct {
	period     int
	field      model.PriceField
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewRollingEMA creates a new EMA calculator reading field from each bar.
func NewRollingEMA(period int, field model.PriceField) *RollingEMA {
	return &RollingEMA{
		period:     period,
		field:      field,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *RollingEMA) Name() string { return "EMA" }

func (e *RollingEMA) Update(bar model.Bar) {
	price := bar.Price(e.field)
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (price-e.current)*e.multiplier + e.current
}

func (e *RollingEMA) Value() float64 { return e.current }
func (e *RollingEMA) Ready() bool    { return e.count >= e.period }

// Reset clears the EMA state for reuse.
func (e *RollingEMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}

// EMA returns the exponential moving average of field. The first point is the
// SMA of the first period prices, aligned to bars[period-1].
func EMA(bars []model.Bar, period int, field model.PriceField) []model.Point {
	if period <= 0 || len(bars) < period {
		return []model.Point{}
	}
	return fold(NewRollingEMA(period, field), bars, len(bars)-period+1)
}
