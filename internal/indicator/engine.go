package indicator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// ErrInvalidSpec is returned for unknown indicator kinds or malformed parameters.
var ErrInvalidSpec = errors.New("indicator: invalid spec")

// Kind names an indicator family.
type Kind string

const (
	KindSMA  Kind = "SMA"
	KindEMA  Kind = "EMA"
	KindRSI  Kind = "RSI"
	KindMACD Kind = "MACD"
	KindBB   Kind = "BB"
	KindATR  Kind = "ATR"
)

// Spec is one parsed indicator request, e.g. "EMA:9:high" or "MACD:12,26,9".
type Spec struct {
	Kind       Kind
	Periods    []int
	Field      model.PriceField
	Multiplier float64 // Bollinger only
}

// Name returns the canonical series name (SMA_20, EMA_9_HIGH, MACD_12_26_9, BB_20_2).
func (s Spec) Name() string {
	parts := []string{string(s.Kind)}
	for _, p := range s.Periods {
		parts = append(parts, strconv.Itoa(p))
	}
	if s.Kind == KindBB {
		parts = append(parts, strconv.FormatFloat(s.Multiplier, 'f', -1, 64))
	}
	if s.Field != "" && s.Field != model.PriceClose {
		parts = append(parts, strings.ToUpper(string(s.Field)))
	}
	return strings.Join(parts, "_")
}

// ParseSpec parses KIND[:params[:field]]. Params are comma separated; RSI,
// ATR, MACD and BB fall back to their conventional defaults when omitted.
func ParseSpec(raw string) (Spec, error) {
	fields := strings.Split(strings.TrimSpace(raw), ":")
	if len(fields) == 0 || fields[0] == "" || len(fields) > 3 {
		return Spec{}, fmt.Errorf("%w: %q", ErrInvalidSpec, raw)
	}

	spec := Spec{Kind: Kind(strings.ToUpper(strings.TrimSpace(fields[0]))), Field: model.PriceClose}
	if spec.Kind == "BOLLINGER" {
		spec.Kind = KindBB
	}

	var params []string
	if len(fields) > 1 && strings.TrimSpace(fields[1]) != "" {
		params = strings.Split(fields[1], ",")
	}
	if len(fields) == 3 {
		f, err := model.ParsePriceField(fields[2])
		if err != nil || (spec.Kind != KindSMA && spec.Kind != KindEMA) {
			return Spec{}, fmt.Errorf("%w: %q: bad price field", ErrInvalidSpec, raw)
		}
		spec.Field = f
	}

	var err error
	switch spec.Kind {
	case KindSMA, KindEMA:
		if len(params) != 1 {
			return Spec{}, fmt.Errorf("%w: %q: want one period", ErrInvalidSpec, raw)
		}
		spec.Periods, err = parsePeriods(params)
	case KindRSI, KindATR:
		switch len(params) {
		case 0:
			spec.Periods = []int{DefaultRSIPeriod}
			if spec.Kind == KindATR {
				spec.Periods = []int{DefaultATRPeriod}
			}
		case 1:
			spec.Periods, err = parsePeriods(params)
		default:
			err = errors.New("want at most one period")
		}
	case KindMACD:
		switch len(params) {
		case 0:
			spec.Periods = []int{DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal}
		case 3:
			spec.Periods, err = parsePeriods(params)
		default:
			err = errors.New("want fast,slow,signal")
		}
	case KindBB:
		spec.Periods = []int{DefaultBandsPeriod}
		spec.Multiplier = DefaultBandsStdDevK
		if len(params) > 2 {
			err = errors.New("want period,k")
			break
		}
		if len(params) >= 1 {
			spec.Periods, err = parsePeriods(params[:1])
		}
		if err == nil && len(params) == 2 {
			spec.Multiplier, err = strconv.ParseFloat(strings.TrimSpace(params[1]), 64)
			if err == nil && spec.Multiplier <= 0 {
				err = errors.New("k must be positive")
			}
		}
	default:
		return Spec{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, fields[0])
	}
	if err != nil {
		return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidSpec, raw, err)
	}
	return spec, nil
}

// ParseSpecs parses a list such as "SMA:20,RSI:14,MACD:12,26,9". A comma
// followed by a number continues the previous spec's parameters; semicolons
// always separate specs.
func ParseSpecs(list string) ([]Spec, error) {
	var raws []string
	for _, group := range strings.Split(list, ";") {
		for _, tok := range strings.Split(group, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if len(raws) > 0 && startsNumeric(tok) {
				raws[len(raws)-1] += "," + tok
				continue
			}
			raws = append(raws, tok)
		}
	}

	specs := make([]Spec, 0, len(raws))
	for _, raw := range raws {
		s, err := ParseSpec(raw)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return specs, nil
}

func startsNumeric(tok string) bool {
	c := tok[0]
	return (c >= '0' && c <= '9') || c == '.'
}

func parsePeriods(params []string) ([]int, error) {
	out := make([]int, 0, len(params))
	for _, p := range params {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("period %d must be positive", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// Series is the computed output for one Spec. Exactly one of Points, MACD or
// Bands is populated.
type Series struct {
	Name   string            `json:"name"`
	Kind   Kind              `json:"kind"`
	Points []model.Point     `json:"points,omitempty"`
	MACD   []model.MACDPoint `json:"macd,omitempty"`
	Bands  []model.BandPoint `json:"bands,omitempty"`
}

// Len returns the number of points in whichever line is populated.
func (s Series) Len() int {
	return len(s.Points) + len(s.MACD) + len(s.Bands)
}

// Engine evaluates batches of specs over one bar series.
// Stateless apart from the optional duration observer; safe for concurrent use.
type Engine struct {
	observe func(kind Kind, d time.Duration)
}

// NewEngine creates an engine. observe may be nil.
func NewEngine(observe func(kind Kind, d time.Duration)) *Engine {
	return &Engine{observe: observe}
}

// Compute evaluates every spec over bars, in order.
func (e *Engine) Compute(bars []model.Bar, specs []Spec) []Series {
	out := make([]Series, 0, len(specs))
	for _, s := range specs {
		start := time.Now()
		out = append(out, e.computeOne(bars, s))
		if e.observe != nil {
			e.observe(s.Kind, time.Since(start))
		}
	}
	return out
}

func (e *Engine) computeOne(bars []model.Bar, s Spec) Series {
	series := Series{Name: s.Name(), Kind: s.Kind}
	switch s.Kind {
	case KindSMA:
		series.Points = SMA(bars, s.Periods[0], s.Field)
	case KindEMA:
		series.Points = EMA(bars, s.Periods[0], s.Field)
	case KindRSI:
		series.Points = RSI(bars, s.Periods[0])
	case KindATR:
		series.Points = ATR(bars, s.Periods[0])
	case KindMACD:
		series.MACD = MACD(bars, s.Periods[0], s.Periods[1], s.Periods[2])
	case KindBB:
		series.Bands = BollingerBands(bars, s.Periods[0], s.Multiplier)
	}
	return series
}
