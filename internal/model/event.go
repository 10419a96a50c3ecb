package model

import (
	"encoding/json"
	"strings"
)

// Upstream event types as sent by the stocks feed.
const (
	EventTrade     = "T"
	EventSecondAgg = "A"
	EventMinuteAgg = "AM"
	EventStatus    = "status"

	// EventConnected is emitted to a sink (not by the feed) when its stream opens.
	EventConnected = "connected"
)

// Event is one frame pushed to a downstream sink: {"type":...,"data":...}.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an Event whose Data is the JSON encoding of v.
func NewEvent(typ string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Data: data}, nil
}

// UpstreamEvent is the envelope common to every upstream feed element.
// Only the fields needed for routing are decoded; the raw element is kept.
type UpstreamEvent struct {
	Ev  string `json:"ev"`
	Sym string `json:"sym"`
}

// Symbol returns the canonical (uppercase) symbol, or "" for events that are
// not tied to a ticker (status, auth).
func (e UpstreamEvent) Symbol() string {
	return strings.ToUpper(strings.TrimSpace(e.Sym))
}

// Trade is a "T" element.
type Trade struct {
	Ev        string  `json:"ev"`
	Sym       string  `json:"sym"`
	Price     float64 `json:"p"`
	Size      float64 `json:"s"`
	Timestamp int64   `json:"t"`
}

// Aggregate is an "A" (per-second) or "AM" (per-minute) element.
type Aggregate struct {
	Ev     string  `json:"ev"`
	Sym    string  `json:"sym"`
	Volume float64 `json:"v"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Start  int64   `json:"s"`
	End    int64   `json:"e"`
}

// ControlMessage is the upstream control frame:
// {"action":"subscribe","params":"T.AAPL,A.AAPL"}.
type ControlMessage struct {
	Action string `json:"action"`
	Params string `json:"params,omitempty"`
}

// Control actions.
const (
	ActionAuth        = "auth"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// ChannelParams joins "<prefix>.<SYMBOL>" tokens for every symbol and prefix,
// e.g. prefixes [T A], symbols [AAPL MSFT] → "T.AAPL,A.AAPL,T.MSFT,A.MSFT".
func ChannelParams(prefixes, symbols []string) string {
	parts := make([]string, 0, len(prefixes)*len(symbols))
	for _, sym := range symbols {
		for _, p := range prefixes {
			parts = append(parts, p+"."+sym)
		}
	}
	return strings.Join(parts, ",")
}

// SymbolsFromParams is the inverse of ChannelParams: it extracts the distinct
// symbols referenced by a params string, in first-seen order.
func SymbolsFromParams(params string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range strings.Split(params, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if i := strings.IndexByte(tok, '.'); i >= 0 {
			tok = tok[i+1:]
		}
		tok = strings.ToUpper(tok)
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}
