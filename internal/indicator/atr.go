package indicator

import (
	"math"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// RollingATR calculates Average True Range with a simple-average seed over
// the first period true ranges, then Wilder smoothing.
type RollingATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewRollingATR creates a new ATR calculator with the given period.
func NewRollingATR(period int) *RollingATR {
	return &RollingATR{period: period}
}

func (a *RollingATR) Name() string { return "ATR" }

func (a *RollingATR) Update(bar model.Bar) {
	a.count++
	if a.count == 1 {
		a.prevClose = bar.Close
		return
	}

	tr := TrueRange(bar, a.prevClose)
	a.prevClose = bar.Close

	if a.count <= a.period+1 {
		a.sum += tr
		if a.count == a.period+1 {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func (a *RollingATR) Value() float64 { return a.current }
func (a *RollingATR) Ready() bool    { return a.count > a.period }

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(bar model.Bar, prevClose float64) float64 {
	return math.Max(bar.High-bar.Low,
		math.Max(math.Abs(bar.High-prevClose), math.Abs(bar.Low-prevClose)))
}

// ATR returns the average true range. The first point is aligned to
// bars[period]; fewer than period+1 bars yields an empty series.
func ATR(bars []model.Bar, period int) []model.Point {
	if period <= 0 || len(bars) <= period {
		return []model.Point{}
	}
	return fold(NewRollingATR(period), bars, len(bars)-period)
}
