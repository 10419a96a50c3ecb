package indicator

import "github.com/vortexpixelz/datax-research-terminal/internal/model"

// MACD returns the moving average convergence/divergence of closes.
//
// The MACD line is EMA(fast) - EMA(slow) at every timestamp both series
// cover. The signal line is an EMA over the MACD line treated as a close-only
// bar series, and points are emitted only where both lines exist.
func MACD(bars []model.Bar, fast, slow, signal int) []model.MACDPoint {
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return []model.MACDPoint{}
	}
	fastLine := EMA(bars, fast, model.PriceClose)
	slowLine := EMA(bars, slow, model.PriceClose)
	if len(fastLine) == 0 || len(slowLine) == 0 {
		return []model.MACDPoint{}
	}

	slowAt := make(map[int64]float64, len(slowLine))
	for _, p := range slowLine {
		slowAt[p.Timestamp] = p.Value
	}

	line := make([]model.Bar, 0, len(slowLine))
	for _, p := range fastLine {
		s, ok := slowAt[p.Timestamp]
		if !ok {
			continue
		}
		v := p.Value - s
		line = append(line, model.Bar{Timestamp: p.Timestamp, Open: v, High: v, Low: v, Close: v})
	}

	signalLine := EMA(line, signal, model.PriceClose)
	if len(signalLine) == 0 {
		return []model.MACDPoint{}
	}
	signalAt := make(map[int64]float64, len(signalLine))
	for _, p := range signalLine {
		signalAt[p.Timestamp] = p.Value
	}

	out := make([]model.MACDPoint, 0, len(signalLine))
	for _, b := range line {
		sig, ok := signalAt[b.Timestamp]
		if !ok {
			continue
		}
		out = append(out, model.MACDPoint{
			Timestamp: b.Timestamp,
			MACD:      b.Close,
			Signal:    sig,
			Histogram: b.Close - sig,
		})
	}
	return out
}
