package model

import (
	"reflect"
	"testing"
	"time"
)

func TestNormalizeSymbols(t *testing.T) {
	got := NormalizeSymbols([]string{" aapl", "MSFT", "", "AAPL ", "msft", "  "})
	want := []string{"AAPL", "MSFT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSplitSymbols(t *testing.T) {
	if got := SplitSymbols(""); got != nil {
		t.Errorf("expected nil for empty list, got %v", got)
	}
	got := SplitSymbols("tsla, nvda,TSLA")
	want := []string{"NVDA", "TSLA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestChannelParams(t *testing.T) {
	got := ChannelParams([]string{"T", "A"}, []string{"AAPL", "MSFT"})
	want := "T.AAPL,A.AAPL,T.MSFT,A.MSFT"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := ChannelParams([]string{"T"}, nil); got != "" {
		t.Errorf("expected empty params, got %q", got)
	}
}

func TestSymbolsFromParams(t *testing.T) {
	got := SymbolsFromParams("T.AAPL,A.AAPL,T.msft")
	want := []string{"AAPL", "MSFT"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBarPrice(t *testing.T) {
	b := Bar{Open: 1, High: 4, Low: 0.5, Close: 2}
	tests := []struct {
		field PriceField
		want  float64
	}{
		{PriceOpen, 1},
		{PriceHigh, 4},
		{PriceLow, 0.5},
		{PriceClose, 2},
		{"", 2},
	}
	for _, tt := range tests {
		if got := b.Price(tt.field); got != tt.want {
			t.Errorf("Price(%q): got %v, want %v", tt.field, got, tt.want)
		}
	}
}

func TestParsePriceField(t *testing.T) {
	if f, err := ParsePriceField("HIGH"); err != nil || f != PriceHigh {
		t.Errorf("ParsePriceField(HIGH) = %q, %v", f, err)
	}
	if f, err := ParsePriceField(""); err != nil || f != PriceClose {
		t.Errorf("ParsePriceField(\"\") = %q, %v", f, err)
	}
	if _, err := ParsePriceField("vwap"); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-01-02", " 2025-01-02T00:00:00Z", "1735776000000"} {
		got, err := ParseTime(in)
		if err != nil || !got.Equal(want) {
			t.Errorf("ParseTime(%q)=%v, %v", in, got, err)
		}
	}
	if _, err := ParseTime("soon"); err == nil {
		t.Error("expected error")
	}
}
