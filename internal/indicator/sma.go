package indicator

import "github.com/vortexpixelz/datax-research-terminal/internal/model"

// RollingSMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type RollingSMA struct {
	period  int
	field   model.PriceField
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewRollingSMA creates a new SMA calculator reading field from each bar.
func NewRollingSMA(period int, field model.PriceField) *RollingSMA {
	return &RollingSMA{
		period: period,
		field:  field,
		buf:    make([]float64, period),
	}
}

func (s *RollingSMA) Name() string { return "SMA" }

func (s *RollingSMA) Update(bar model.Bar) {
	s.push(bar.Price(s.field))
}

func (s *RollingSMA) push(price float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *RollingSMA) Value() float64 { return s.current }
func (s *RollingSMA) Ready() bool    { return s.count >= s.period }

// Window returns the prices currently in the window, oldest first.
func (s *RollingSMA) Window() []float64 {
	n := s.count
	if n > s.period {
		n = s.period
	}
	out := make([]float64, n)
	start := 0
	if s.count >= s.period {
		start = s.idx
	}
	for i := 0; i < n; i++ {
		out[i] = s.buf[(start+i)%s.period]
	}
	return out
}

// Reset clears the SMA state for reuse.
func (s *RollingSMA) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// SMA returns the simple moving average of field for every index
// i >= period-1, aligned to bars[i]. The result has len(bars)-period+1 points.
func SMA(bars []model.Bar, period int, field model.PriceField) []model.Point {
	if period <= 0 || len(bars) < period {
		return []model.Point{}
	}
	return fold(NewRollingSMA(period, field), bars, len(bars)-period+1)
}
