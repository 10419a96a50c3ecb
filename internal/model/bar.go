package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Bar is one OHLCV sample. Timestamp is the bar start in epoch milliseconds.
// Sequences of bars are ordered by strictly increasing Timestamp.
type Bar struct {
	Timestamp int64   `json:"timestamp" db:"ts"`
	Open      float64 `json:"open" db:"open"`
	High      float64 `json:"high" db:"high"`
	Low       float64 `json:"low" db:"low"`
	Close     float64 `json:"close" db:"close"`
	Volume    float64 `json:"volume" db:"volume"`
}

// Time returns the bar start as a UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// Price returns the price selected by field.
func (b Bar) Price(field PriceField) float64 {
	switch field {
	case PriceOpen:
		return b.Open
	case PriceHigh:
		return b.High
	case PriceLow:
		return b.Low
	default:
		return b.Close
	}
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b Bar) JSON() []byte {
	out, _ := json.Marshal(b)
	return out
}

// PriceField selects which price of a bar an indicator reads.
type PriceField string

const (
	PriceClose PriceField = "close"
	PriceOpen  PriceField = "open"
	PriceHigh  PriceField = "high"
	PriceLow   PriceField = "low"
)

// ParsePriceField parses "close", "open", "high" or "low" (case-insensitive).
// An empty string selects close.
func ParsePriceField(s string) (PriceField, error) {
	switch f := PriceField(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return PriceClose, nil
	case PriceClose, PriceOpen, PriceHigh, PriceLow:
		return f, nil
	default:
		return "", fmt.Errorf("unknown price field %q", s)
	}
}

// Timespan is the bar width used when loading history.
type Timespan string

const (
	Minute Timespan = "minute"
	Hour   Timespan = "hour"
	Day    Timespan = "day"
	Week   Timespan = "week"
	Month  Timespan = "month"
)

// ParseTimespan validates a timespan string. An empty string selects Day.
func ParseTimespan(s string) (Timespan, error) {
	switch ts := Timespan(strings.ToLower(strings.TrimSpace(s))); ts {
	case "":
		return Day, nil
	case Minute, Hour, Day, Week, Month:
		return ts, nil
	default:
		return "", fmt.Errorf("unknown timespan %q", s)
	}
}

// Step returns the nominal duration of one bar.
func (t Timespan) Step() time.Duration {
	switch t {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	case Week:
		return 7 * 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
