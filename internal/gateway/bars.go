package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/vortexpixelz/datax-research-terminal/internal/indicator"
	"github.com/vortexpixelz/datax-research-terminal/internal/logger"
	"github.com/vortexpixelz/datax-research-terminal/internal/marketdata/history"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r, http.MethodGet) {
		return
	}
	q, err := ParseBarQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bars, ok := s.loadBars(w, r, q)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, bars)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r, http.MethodGet) {
		return
	}
	q, err := ParseBarQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := r.URL.Query().Get("specs")
	if raw == "" {
		raw = strings.Join(s.opts.Indicators, ";")
	}
	specs, err := indicator.ParseSpecs(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bars, ok := s.loadBars(w, r, q)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, indicatorsResponse{
		Symbol:   q.Symbol,
		Timespan: q.Timespan,
		Bars:     len(bars),
		Series:   s.opts.Engine.Compute(bars, specs),
	})
}

func (s *Server) loadBars(w http.ResponseWriter, r *http.Request, q model.BarQuery) ([]model.Bar, bool) {
	bars, err := s.opts.Bars.Bars(r.Context(), q)
	switch {
	case err == nil:
		return bars, true
	case errors.Is(err, history.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, history.ErrNoData):
		writeError(w, http.StatusNotFound, "no bars for "+q.Symbol)
	default:
		logger.FromContext(r.Context(), s.log).Error("bar load failed", "symbol", q.Symbol, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch historical data")
	}
	return nil, false
}

// ParseBarQuery reads symbol, timespan, from and to. symbol, from and to are
// required; from and to are YYYY-MM-DD dates or epoch milliseconds.
func ParseBarQuery(r *http.Request) (model.BarQuery, error) {
	v := r.URL.Query()
	symbol := model.NormalizeSymbol(v.Get("symbol"))
	if symbol == "" || v.Get("from") == "" || v.Get("to") == "" {
		return model.BarQuery{}, errors.New("missing required parameters: symbol, from, to")
	}
	ts, err := model.ParseTimespan(v.Get("timespan"))
	if err != nil {
		return model.BarQuery{}, err
	}
	from, err := model.ParseTime(v.Get("from"))
	if err != nil {
		return model.BarQuery{}, fmt.Errorf("from: %w", err)
	}
	to, err := model.ParseTime(v.Get("to"))
	if err != nil {
		return model.BarQuery{}, fmt.Errorf("to: %w", err)
	}
	if to.Before(from) {
		return model.BarQuery{}, errors.New("to is before from")
	}
	return model.BarQuery{Symbol: symbol, Timespan: ts, From: from, To: to}, nil
}
