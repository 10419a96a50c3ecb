package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/logger"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

const removeTimeout = 5 * time.Second

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.preflight(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		s.handleControl(w, r)
		return
	}

	ctx := r.Context()
	log := logger.FromContext(ctx, s.log)

	tickers := model.SplitSymbols(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		tickers = s.opts.Watchlist
	}

	sink := stream.NewSSESink(logger.NewRequestID(), s.opts.SinkBuffer, s.opts.Heartbeat)
	hello, err := model.NewEvent(model.EventConnected, connectedData{
		SinkID:  sink.ID(),
		Symbols: model.NormalizeSymbols(tickers),
		Market:  marketStatus(s.now()),
	})
	if err == nil {
		// Queued before registration so it is always the first frame.
		_ = sink.Send(hello)
	}

	if err := s.opts.Hub.AddSink(ctx, sink); err != nil {
		log.Warn("stream rejected", "error", err)
		writeError(w, http.StatusServiceUnavailable, "stream hub unavailable")
		return
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		if err := s.opts.Hub.RemoveSink(rmCtx, sink.ID()); err != nil && !errors.Is(err, stream.ErrHubStopped) {
			log.Warn("sink removal failed", "sink", sink.ID(), "error", err)
		}
	}()

	if len(tickers) > 0 {
		if _, err := s.opts.Hub.Subscribe(ctx, sink.ID(), tickers); err != nil {
			log.Warn("initial subscribe failed", "sink", sink.ID(), "error", err)
			writeError(w, http.StatusServiceUnavailable, "stream hub unavailable")
			return
		}
	}

	log.Info("stream opened", "sink", sink.ID(), "tickers", tickers)
	if err := sink.Serve(ctx, w); err != nil {
		log.Debug("stream write failed", "sink", sink.ID(), "error", err)
	}
	log.Info("stream closed", "sink", sink.ID())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SinkID == "" {
		writeError(w, http.StatusBadRequest, "sinkId is required")
		return
	}

	var (
		held []string
		err  error
	)
	switch req.Action {
	case model.ActionSubscribe:
		held, err = s.opts.Hub.Subscribe(r.Context(), req.SinkID, req.Tickers)
	case model.ActionUnsubscribe:
		held, err = s.opts.Hub.Unsubscribe(r.Context(), req.SinkID, req.Tickers)
	default:
		writeError(w, http.StatusBadRequest, "action must be subscribe or unsubscribe")
		return
	}

	switch {
	case errors.Is(err, stream.ErrUnknownSink):
		writeError(w, http.StatusNotFound, "unknown sink")
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "stream hub unavailable")
	default:
		if held == nil {
			held = []string{}
		}
		writeJSON(w, http.StatusOK, controlResponse{SinkID: req.SinkID, Symbols: held})
	}
}
