package indicator

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// BollingerBands returns bands of k population standard deviations around
// each bar's close. The deviation is measured over the trailing period closes
// about their SMA; the middle line is the bar's own close.
func BollingerBands(bars []model.Bar, period int, k float64) []model.BandPoint {
	if period <= 0 || len(bars) < period {
		return []model.BandPoint{}
	}

	sma := NewRollingSMA(period, model.PriceClose)
	out := make([]model.BandPoint, 0, len(bars)-period+1)
	for _, b := range bars {
		sma.Update(b)
		if !sma.Ready() {
			continue
		}
		dev := sma.Window()
		floats.AddConst(-sma.Value(), dev)
		std := math.Sqrt(floats.Dot(dev, dev) / float64(period))

		out = append(out, model.BandPoint{
			Timestamp: b.Timestamp,
			Upper:     b.Close + k*std,
			Middle:    b.Close,
			Lower:     b.Close - k*std,
		})
	}
	return out
}
