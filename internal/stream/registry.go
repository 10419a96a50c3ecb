package stream

import (
	"sort"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// Registry tracks which sinks are interested in which symbols. A symbol's
// reference count is the number of distinct sinks holding it; a sink holds a
// symbol at most once no matter how often it subscribes.
//
// Registry is not safe for concurrent use. The Hub owns one from its actor
// goroutine.
type Registry struct {
	bySink   map[string]map[string]struct{}
	bySymbol map[string]map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bySink:   make(map[string]map[string]struct{}),
		bySymbol: make(map[string]map[string]struct{}),
	}
}

// Subscribe adds symbols to sinkID's interest set and returns, sorted, the
// symbols whose count went from 0 to 1.
func (r *Registry) Subscribe(sinkID string, symbols []string) []string {
	var added []string
	for _, sym := range model.NormalizeSymbols(symbols) {
		held := r.bySink[sinkID]
		if _, ok := held[sym]; ok {
			continue
		}
		if held == nil {
			held = make(map[string]struct{})
			r.bySink[sinkID] = held
		}
		held[sym] = struct{}{}

		sinks := r.bySymbol[sym]
		if sinks == nil {
			sinks = make(map[string]struct{})
			r.bySymbol[sym] = sinks
			added = append(added, sym)
		}
		sinks[sinkID] = struct{}{}
	}
	return added
}

// Unsubscribe removes symbols from sinkID's interest set and returns, sorted,
// the symbols nobody holds any more. Symbols the sink does not hold are ignored.
func (r *Registry) Unsubscribe(sinkID string, symbols []string) []string {
	held := r.bySink[sinkID]
	if held == nil {
		return nil
	}

	var released []string
	for _, sym := range model.NormalizeSymbols(symbols) {
		if _, ok := held[sym]; !ok {
			continue
		}
		delete(held, sym)

		sinks := r.bySymbol[sym]
		delete(sinks, sinkID)
		if len(sinks) == 0 {
			delete(r.bySymbol, sym)
			released = append(released, sym)
		}
	}
	if len(held) == 0 {
		delete(r.bySink, sinkID)
	}
	return released
}

// RemoveSink drops every symbol sinkID holds and forgets the sink.
func (r *Registry) RemoveSink(sinkID string) []string {
	return r.Unsubscribe(sinkID, r.SinkSymbols(sinkID))
}

// Active returns the sorted symbols with at least one interested sink.
func (r *Registry) Active() []string {
	return sortedKeys(r.bySymbol)
}

// ActiveCount returns how many symbols have at least one interested sink.
func (r *Registry) ActiveCount() int {
	return len(r.bySymbol)
}

// Count returns how many sinks hold sym.
func (r *Registry) Count(sym string) int {
	return len(r.bySymbol[model.NormalizeSymbol(sym)])
}

// SinkSymbols returns the sorted symbols sinkID holds.
func (r *Registry) SinkSymbols(sinkID string) []string {
	return sortedKeys(r.bySink[sinkID])
}

// Interested returns the sorted IDs of sinks holding sym.
func (r *Registry) Interested(sym string) []string {
	return sortedKeys(r.bySymbol[model.NormalizeSymbol(sym)])
}

// Holds reports whether sinkID holds sym.
func (r *Registry) Holds(sinkID, sym string) bool {
	_, ok := r.bySink[sinkID][sym]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
