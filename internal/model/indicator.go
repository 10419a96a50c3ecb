package model

// Point is one value of a single-line indicator (SMA, EMA, RSI, ATR),
// aligned to the timestamp of the bar that produced it.
type Point struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// MACDPoint is one MACD output row.
type MACDPoint struct {
	Timestamp int64   `json:"timestamp"`
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BandPoint is one Bollinger Bands output row.
type BandPoint struct {
	Timestamp int64   `json:"timestamp"`
	Upper     float64 `json:"upper"`
	Middle    float64 `json:"middle"`
	Lower     float64 `json:"lower"`
}
