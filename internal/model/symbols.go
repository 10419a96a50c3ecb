package model

import (
	"sort"
	"strings"
)

// NormalizeSymbol trims and uppercases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeSymbols trims, uppercases, drops empties, dedupes and sorts.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// SplitSymbols parses a comma-separated ticker list such as "aapl, msft,AAPL".
func SplitSymbols(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	return NormalizeSymbols(strings.Split(list, ","))
}
