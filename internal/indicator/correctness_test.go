package indicator

import (
	"math"
	"reflect"
	"testing"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

// closeBars builds bars with timestamps 1..n and every price equal to the close.
func closeBars(closes ...float64) []model.Bar {
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Timestamp: int64(i + 1), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return bars
}

// waveBars is a deterministic up-and-down series.
func waveBars(n int) []model.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/3) + float64(i%4)
	}
	bars := closeBars(closes...)
	for i := range bars {
		bars[i].High = bars[i].Close + 1.5
		bars[i].Low = bars[i].Close - 1.25
	}
	return bars
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period2(t *testing.T) {
	got := SMA(closeBars(10, 20, 30, 40), 2, model.PriceClose)
	want := []model.Point{{Timestamp: 2, Value: 15}, {Timestamp: 3, Value: 25}, {Timestamp: 4, Value: 35}}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Timestamp != want[i].Timestamp {
			t.Errorf("point %d: ts=%d, want %d", i, got[i].Timestamp, want[i].Timestamp)
		}
		assertClose(t, "SMA(2)", got[i].Value, want[i].Value, 1e-9)
	}
}

func TestSMA_Length(t *testing.T) {
	bars := waveBars(50)
	for _, p := range []int{1, 5, 20, 50} {
		if got := len(SMA(bars, p, model.PriceClose)); got != len(bars)-p+1 {
			t.Errorf("SMA(%d): len=%d, want %d", p, got, len(bars)-p+1)
		}
	}
}

func TestSMA_PriceField(t *testing.T) {
	bars := closeBars(10, 20, 30)
	for i := range bars {
		bars[i].High = bars[i].Close * 2
	}
	got := SMA(bars, 3, model.PriceHigh)
	if len(got) != 1 {
		t.Fatalf("len=%d, want 1", len(got))
	}
	assertClose(t, "SMA(3) high", got[0].Value, 40, 1e-9)
}

func TestRollingSMA_Window(t *testing.T) {
	s := NewRollingSMA(3, model.PriceClose)
	for _, b := range closeBars(1, 2, 3, 4, 5) {
		s.Update(b)
	}
	if w := s.Window(); !reflect.DeepEqual(w, []float64{3, 4, 5}) {
		t.Errorf("Window()=%v, want [3 4 5]", w)
	}
	s.Reset()
	if s.Ready() || len(s.Window()) != 0 {
		t.Error("Reset should clear the window")
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// seed = (10+11+12)/3 = 11, k = 0.5
	// 13 → (13-11)*0.5+11 = 12
	// 14 → (14-12)*0.5+12 = 13
	got := EMA(closeBars(10, 11, 12, 13, 14), 3, model.PriceClose)
	want := []float64{11, 12, 13}
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	if got[0].Timestamp != 3 {
		t.Errorf("first ts=%d, want 3", got[0].Timestamp)
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i].Value, want[i], 1e-9)
	}
}

func TestEMA_SeedEqualsSMA(t *testing.T) {
	bars := waveBars(40)
	for _, p := range []int{2, 5, 9, 26} {
		ema := EMA(bars, p, model.PriceClose)
		sma := SMA(bars, p, model.PriceClose)
		if ema[0].Value != sma[0].Value || ema[0].Timestamp != sma[0].Timestamp {
			t.Errorf("EMA(%d) seed %v@%d, SMA %v@%d", p, ema[0].Value, ema[0].Timestamp, sma[0].Value, sma[0].Timestamp)
		}
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 100
	}
	closes[20] = 120 // sudden jump

	bars := closeBars(closes...)
	ema := EMA(bars, 10, model.PriceClose)
	sma := SMA(bars, 10, model.PriceClose)
	if ema[len(ema)-1].Value <= sma[len(sma)-1].Value {
		t.Errorf("EMA should react more than SMA to a jump: EMA=%.4f, SMA=%.4f",
			ema[len(ema)-1].Value, sma[len(sma)-1].Value)
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period2(t *testing.T) {
	// deltas: +1, -1, +1
	// seed: avgGain=0.5 avgLoss=0.5 → 50 at bars[2]
	// next: avgGain=(0.5+1)/2=0.75 avgLoss=0.25 → RS=3 → 75
	got := RSI(closeBars(1, 2, 1, 2), 2)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	if got[0].Timestamp != 3 {
		t.Errorf("first ts=%d, want 3", got[0].Timestamp)
	}
	assertClose(t, "RSI(2) seed", got[0].Value, 50, 1e-9)
	assertClose(t, "RSI(2) next", got[1].Value, 75, 1e-9)
}

func TestRSI_MonotonicRise_Is100(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	got := RSI(closeBars(closes...), 14)
	if len(got) != 6 {
		t.Fatalf("len=%d, want 6", len(got))
	}
	if last := got[len(got)-1].Value; last != 100 {
		t.Errorf("final RSI=%v, want exactly 100", last)
	}
}

func TestRSI_AllDown_Is0(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(200 - i)
	}
	got := RSI(closeBars(closes...), 5)
	assertClose(t, "RSI all down", got[len(got)-1].Value, 0, 1e-9)
}

func TestRSI_Flat_Is0(t *testing.T) {
	// No gains and no losses: the loss denominator is taken as 1, so RS=0.
	got := RSI(closeBars(50, 50, 50, 50), 3)
	if len(got) != 1 {
		t.Fatalf("len=%d, want 1", len(got))
	}
	assertClose(t, "RSI flat", got[0].Value, 0, 1e-9)

	// A rise after a flat seed has gains and no losses.
	got = RSI(closeBars(50, 50, 50, 50, 51), 3)
	if last := got[len(got)-1].Value; last != 100 {
		t.Errorf("RSI after rise=%v, want 100", last)
	}
}

func TestRSI_Bounds(t *testing.T) {
	for _, p := range RSI(waveBars(200), 14) {
		if p.Value < 0 || p.Value > 100 {
			t.Fatalf("RSI out of range at ts=%d: %v", p.Timestamp, p.Value)
		}
	}
}

func TestRSI_NeedsPeriodPlusOne(t *testing.T) {
	if got := RSI(waveBars(14), 14); len(got) != 0 {
		t.Errorf("14 bars: len=%d, want 0", len(got))
	}
	if got := RSI(waveBars(15), 14); len(got) != 1 {
		t.Errorf("15 bars: len=%d, want 1", len(got))
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_HistogramIsDifference(t *testing.T) {
	got := MACD(waveBars(120), DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	if want := 120 - DefaultMACDSlow + 1 - DefaultMACDSignal + 1; len(got) != want {
		t.Fatalf("len=%d, want %d", len(got), want)
	}
	for _, p := range got {
		if math.Abs(p.Histogram-(p.MACD-p.Signal)) > 1e-9 {
			t.Fatalf("ts=%d: histogram %v != %v - %v", p.Timestamp, p.Histogram, p.MACD, p.Signal)
		}
	}
}

func TestMACD_Alignment(t *testing.T) {
	bars := waveBars(10)
	got := MACD(bars, 3, 5, 2)
	// slow EMA starts at bars[4], signal needs 2 MACD points → bars[5]
	if len(got) != 5 {
		t.Fatalf("len=%d, want 5", len(got))
	}
	if got[0].Timestamp != bars[5].Timestamp {
		t.Errorf("first ts=%d, want %d", got[0].Timestamp, bars[5].Timestamp)
	}

	fast := EMA(bars, 3, model.PriceClose)
	slow := EMA(bars, 5, model.PriceClose)
	// fast[3] and slow[1] are both aligned to bars[5]
	assertClose(t, "MACD line", got[0].MACD, fast[3].Value-slow[1].Value, 1e-9)
}

func TestMACD_FlatIsZero(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50
	}
	for _, p := range MACD(closeBars(closes...), 12, 26, 9) {
		assertClose(t, "flat MACD", p.MACD, 0, 1e-9)
		assertClose(t, "flat signal", p.Signal, 0, 1e-9)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness_Period3(t *testing.T) {
	// window [1,2,3]: mean 2, population variance 2/3
	std := math.Sqrt(2.0 / 3.0)
	got := BollingerBands(closeBars(1, 2, 3, 4), 3, 2)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	assertClose(t, "middle[0]", got[0].Middle, 3, 1e-9)
	assertClose(t, "upper[0]", got[0].Upper, 3+2*std, 1e-9)
	assertClose(t, "lower[0]", got[0].Lower, 3-2*std, 1e-9)
	assertClose(t, "middle[1]", got[1].Middle, 4, 1e-9)
	assertClose(t, "upper[1]", got[1].Upper, 4+2*std, 1e-9)
}

func TestBollinger_Ordering(t *testing.T) {
	for _, p := range BollingerBands(waveBars(80), 20, 2) {
		if p.Upper < p.Middle || p.Middle < p.Lower {
			t.Fatalf("ts=%d: bands out of order %+v", p.Timestamp, p)
		}
	}
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATR_Correctness_Period2(t *testing.T) {
	bars := []model.Bar{
		{Timestamp: 1, High: 10, Low: 8, Close: 9},
		{Timestamp: 2, High: 11, Low: 9, Close: 10},   // TR 2
		{Timestamp: 3, High: 12, Low: 9, Close: 11},   // TR 3 → seed 2.5
		{Timestamp: 4, High: 11, Low: 10, Close: 10.5}, // TR 1 → (2.5+1)/2
	}
	got := ATR(bars, 2)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	if got[0].Timestamp != 3 {
		t.Errorf("first ts=%d, want 3", got[0].Timestamp)
	}
	assertClose(t, "ATR seed", got[0].Value, 2.5, 1e-9)
	assertClose(t, "ATR next", got[1].Value, 1.75, 1e-9)
}

func TestTrueRange_GapUp(t *testing.T) {
	b := model.Bar{High: 15, Low: 14, Close: 14.5}
	assertClose(t, "TR gap", TrueRange(b, 10), 5, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Shared contracts
// ────────────────────────────────────────────────────────────

func TestInsufficientData_EmptyNotNil(t *testing.T) {
	short := waveBars(3)
	cases := map[string]int{
		"SMA":  len(SMA(short, 5, model.PriceClose)),
		"EMA":  len(EMA(short, 5, model.PriceClose)),
		"RSI":  len(RSI(short, 3)),
		"ATR":  len(ATR(short, 3)),
		"MACD": len(MACD(short, 12, 26, 9)),
		"BB":   len(BollingerBands(short, 5, 2)),
		"SMA0": len(SMA(short, 0, model.PriceClose)),
		"nil":  len(EMA(nil, 3, model.PriceClose)),
	}
	for name, n := range cases {
		if n != 0 {
			t.Errorf("%s: len=%d, want 0", name, n)
		}
	}

	if SMA(short, 5, model.PriceClose) == nil || RSI(nil, 14) == nil ||
		MACD(short, 12, 26, 9) == nil || BollingerBands(short, 5, 2) == nil {
		t.Error("insufficient data should return an empty non-nil slice")
	}
}

func TestBatch_DoesNotMutateInput(t *testing.T) {
	bars := waveBars(60)
	orig := append([]model.Bar(nil), bars...)

	SMA(bars, 5, model.PriceHigh)
	EMA(bars, 5, model.PriceLow)
	RSI(bars, 14)
	MACD(bars, 12, 26, 9)
	BollingerBands(bars, 20, 2)
	ATR(bars, 14)

	if !reflect.DeepEqual(bars, orig) {
		t.Error("indicator functions mutated their input")
	}
}

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(100 + i)
	}
	bars := closeBars(closes...)
	sma5 := SMA(bars, 5, model.PriceClose)
	sma20 := SMA(bars, 20, model.PriceClose)
	if sma5[len(sma5)-1].Value <= sma20[len(sma20)-1].Value {
		t.Error("SMA(5) should be above SMA(20) in an uptrend")
	}
}
