package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vortexpixelz/datax-research-terminal/internal/metrics"
	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

var (
	// ErrUnknownSink is returned for operations on a sink the hub does not hold.
	ErrUnknownSink = errors.New("stream: unknown sink")
	// ErrDuplicateSink is returned by AddSink when the ID is already registered.
	ErrDuplicateSink = errors.New("stream: duplicate sink id")
	// ErrHubStopped is returned once Run has exited.
	ErrHubStopped = errors.New("stream: hub stopped")
)

// Sink receives fanned-out events. Send must not block.
type Sink interface {
	ID() string
	Send(ev model.Event) error
}

// ConnState is the upstream connection lifecycle.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// HubConfig tunes the hub.
type HubConfig struct {
	// Prefixes are the event channels requested per symbol, e.g. T and A.
	Prefixes []string
	// ReconnectDelay is the fixed wait between upstream connection attempts.
	ReconnectDelay time.Duration
	// NarrowBroadcast delivers symbol events only to sinks holding the symbol.
	// Off by default: every sink receives every event.
	NarrowBroadcast bool
	// OutboundBuffer is the control message queue length per connection.
	OutboundBuffer int
}

// DefaultHubConfig returns trades and second aggregates, a 5s reconnect delay
// and broadcast to all sinks.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Prefixes:       []string{model.EventTrade, model.EventSecondAgg},
		ReconnectDelay: 5 * time.Second,
		OutboundBuffer: 256,
	}
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Sinks      int       `json:"sinks"`
	Symbols    []string  `json:"symbols"`
	Upstream   string    `json:"upstream"`
	Reconnects int64     `json:"reconnects"`
	LastEvent  time.Time `json:"last_event"`
}

type linkEvent struct {
	state ConnState
	up    *upstream
	err   error
}

// Hub multiplexes one upstream feed connection across many sinks.
//
// All mutable state is owned by the Run goroutine; public methods send a
// closure to it and wait for it to be applied. Upstream writes are queued to
// the connection's writer and never block the actor.
type Hub struct {
	feed Feed
	cfg  HubConfig
	m    *metrics.Metrics
	log  *slog.Logger

	ops     chan func()
	frames  chan []Routed
	links   chan linkEvent
	dial    chan struct{}
	stopped chan struct{}

	// Owned by the Run goroutine.
	reg        *Registry
	sinks      map[string]Sink
	latest     map[string]model.Event // "<ev>.<SYM>" → last event
	cached     map[string]bool        // event types kept in latest
	up         *upstream
	state      ConnState
	dialing    bool
	reconnects int64
	lastEvent  time.Time
}

// NewHub creates a hub over feed. A nil m gets a private, unregistered set.
func NewHub(feed Feed, cfg HubConfig, m *metrics.Metrics, log *slog.Logger) *Hub {
	def := DefaultHubConfig()
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = def.Prefixes
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = def.OutboundBuffer
	}
	if m == nil {
		m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if log == nil {
		log = slog.Default()
	}

	cached := make(map[string]bool, len(cfg.Prefixes))
	for _, p := range cfg.Prefixes {
		cached[p] = true
	}

	return &Hub{
		feed:    feed,
		cfg:     cfg,
		m:       m,
		log:     log.With("component", "stream_hub"),
		ops:     make(chan func()),
		frames:  make(chan []Routed, 256),
		links:   make(chan linkEvent),
		dial:    make(chan struct{}),
		stopped: make(chan struct{}),
		reg:     NewRegistry(),
		sinks:   make(map[string]Sink),
		latest:  make(map[string]model.Event),
		cached:  cached,
	}
}

// Run drives the hub until ctx is cancelled. The upstream connection is
// dialed when the first sink is added and redialed after every drop.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	go h.connectLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			if h.up != nil {
				h.up.close()
			}
			h.log.Info("hub stopped", "sinks", len(h.sinks))
			return
		case op := <-h.ops:
			op()
		case batch := <-h.frames:
			h.broadcast(batch)
		case ev := <-h.links:
			h.onLink(ev)
		}
	}
}

// do runs op on the actor goroutine and waits for it.
func (h *Hub) do(ctx context.Context, op func()) error {
	done := make(chan struct{})
	wrapped := func() {
		op()
		close(done)
	}
	select {
	case h.ops <- wrapped:
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// AddSink registers a sink with an empty interest set.
func (h *Hub) AddSink(ctx context.Context, sink Sink) error {
	var opErr error
	err := h.do(ctx, func() {
		id := sink.ID()
		if _, dup := h.sinks[id]; dup {
			opErr = ErrDuplicateSink
			return
		}
		h.sinks[id] = sink
		h.m.Sinks.Set(float64(len(h.sinks)))
		h.log.Info("sink added", "sink", id, "sinks", len(h.sinks))

		if !h.dialing {
			h.dialing = true
			close(h.dial)
		}
	})
	if err != nil {
		return err
	}
	return opErr
}

// Subscribe adds symbols to a sink's interest set, subscribes upstream to any
// symbol no other sink held, and replays the latest cached events for symbols
// new to this sink. It returns the sink's full symbol set.
func (h *Hub) Subscribe(ctx context.Context, sinkID string, symbols []string) ([]string, error) {
	var held []string
	var opErr error
	err := h.do(ctx, func() {
		sink, ok := h.sinks[sinkID]
		if !ok {
			opErr = ErrUnknownSink
			return
		}

		var fresh []string
		for _, sym := range model.NormalizeSymbols(symbols) {
			if !h.reg.Holds(sinkID, sym) {
				fresh = append(fresh, sym)
			}
		}

		added := h.reg.Subscribe(sinkID, fresh)
		h.sendControl(model.ActionSubscribe, added)
		h.replay(sink, fresh)
		h.m.ActiveSymbols.Set(float64(h.reg.ActiveCount()))
		held = h.reg.SinkSymbols(sinkID)
	})
	if err != nil {
		return nil, err
	}
	return held, opErr
}

// Unsubscribe removes symbols from a sink's interest set and unsubscribes
// upstream from any symbol no sink holds any more. It returns the sink's
// remaining symbol set.
func (h *Hub) Unsubscribe(ctx context.Context, sinkID string, symbols []string) ([]string, error) {
	var held []string
	var opErr error
	err := h.do(ctx, func() {
		if _, ok := h.sinks[sinkID]; !ok {
			opErr = ErrUnknownSink
			return
		}
		h.release(h.reg.Unsubscribe(sinkID, symbols))
		held = h.reg.SinkSymbols(sinkID)
	})
	if err != nil {
		return nil, err
	}
	return held, opErr
}

// RemoveSink forgets a sink and releases everything it held.
func (h *Hub) RemoveSink(ctx context.Context, sinkID string) error {
	var opErr error
	err := h.do(ctx, func() {
		if _, ok := h.sinks[sinkID]; !ok {
			opErr = ErrUnknownSink
			return
		}
		h.release(h.reg.RemoveSink(sinkID))
		delete(h.sinks, sinkID)
		h.m.Sinks.Set(float64(len(h.sinks)))
		h.log.Info("sink removed", "sink", sinkID, "sinks", len(h.sinks))
	})
	if err != nil {
		return err
	}
	return opErr
}

// Stats returns a snapshot of the hub state.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := h.do(ctx, func() {
		s = Stats{
			Sinks:      len(h.sinks),
			Symbols:    h.reg.Active(),
			Upstream:   h.state.String(),
			Reconnects: h.reconnects,
			LastEvent:  h.lastEvent,
		}
	})
	return s, err
}

func (h *Hub) release(released []string) {
	h.sendControl(model.ActionUnsubscribe, released)
	for _, sym := range released {
		for _, p := range h.cfg.Prefixes {
			delete(h.latest, p+"."+sym)
		}
	}
	h.m.ActiveSymbols.Set(float64(h.reg.ActiveCount()))
}

// sendControl queues one control message for every symbol in the batch. While
// disconnected nothing is sent; the next connect flushes Active().
func (h *Hub) sendControl(action string, symbols []string) {
	if len(symbols) == 0 || h.up == nil || h.state != StateConnected {
		return
	}
	msg := model.ControlMessage{Action: action, Params: model.ChannelParams(h.cfg.Prefixes, symbols)}
	if !h.up.enqueue(msg) {
		// The upstream view is now unknown; a fresh connection resubscribes everything.
		h.log.Warn("upstream queue full, forcing reconnect", "action", action, "symbols", len(symbols))
		h.up.close()
		return
	}
	h.m.ControlMessages.WithLabelValues(action).Inc()
	h.log.Debug("upstream control queued", "action", action, "params", msg.Params)
}

func (h *Hub) onLink(ev linkEvent) {
	switch ev.state {
	case StateConnecting:
		h.setState(StateConnecting)
	case StateConnected:
		h.up = ev.up
		h.setState(StateConnected)
		active := h.reg.Active()
		h.log.Info("upstream connected", "symbols", len(active))
		h.sendControl(model.ActionSubscribe, active)
	case StateDisconnected:
		if ev.up != nil && h.up == ev.up {
			h.up = nil
		}
		h.reconnects++
		h.setState(StateDisconnected)
		h.log.Warn("upstream disconnected", "error", ev.err, "retry_in", h.cfg.ReconnectDelay)
	}
}

func (h *Hub) setState(s ConnState) {
	h.state = s
	h.m.UpstreamState.Set(float64(s))
}

func (h *Hub) broadcast(batch []Routed) {
	h.lastEvent = time.Now()
	for _, r := range batch {
		if r.Symbol != "" && h.cached[r.Event.Type] && h.reg.Count(r.Symbol) > 0 {
			h.latest[r.Event.Type+"."+r.Symbol] = r.Event
		}
		h.m.EventsBroadcast.Inc()

		if h.cfg.NarrowBroadcast && r.Symbol != "" {
			for _, id := range h.reg.Interested(r.Symbol) {
				if sink, ok := h.sinks[id]; ok {
					h.push(sink, r.Event)
				}
			}
			continue
		}
		for _, sink := range h.sinks {
			h.push(sink, r.Event)
		}
	}
}

func (h *Hub) replay(sink Sink, symbols []string) {
	for _, sym := range symbols {
		for _, p := range h.cfg.Prefixes {
			if ev, ok := h.latest[p+"."+sym]; ok {
				h.push(sink, ev)
			}
		}
	}
}

// push delivers without blocking; failures are counted and skipped.
func (h *Hub) push(sink Sink, ev model.Event) {
	if err := sink.Send(ev); err != nil {
		reason := "busy"
		if errors.Is(err, ErrSinkClosed) {
			reason = "closed"
		}
		h.m.SinkDrops.WithLabelValues(reason).Inc()
	}
}

// connectLoop owns dialing. It waits for the first sink, then keeps one
// connection alive until ctx is cancelled, waiting a fixed delay between
// attempts.
func (h *Hub) connectLoop(ctx context.Context) {
	select {
	case <-h.dial:
	case <-ctx.Done():
		return
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(h.cfg.ReconnectDelay), ctx)
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			h.m.UpstreamReconnects.Inc()
		}
		h.post(ctx, linkEvent{state: StateConnecting})

		conn, err := h.feed.Dial(ctx)
		if err != nil {
			h.log.Warn("upstream dial failed", "attempt", attempt, "error", err)
			h.post(ctx, linkEvent{state: StateDisconnected, err: err})
		} else {
			up := newUpstream(conn, h.cfg.OutboundBuffer)
			h.post(ctx, linkEvent{state: StateConnected, up: up})
			go up.writeLoop(h.log)
			err = h.readLoop(ctx, up)
			up.close()
			h.post(ctx, linkEvent{state: StateDisconnected, up: up, err: err})
		}

		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// readLoop decodes frames until the connection fails or ctx is cancelled.
func (h *Hub) readLoop(ctx context.Context, up *upstream) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			up.close()
		case <-stop:
		}
	}()

	for {
		raw, err := up.conn.ReadMessage()
		if err != nil {
			return err
		}
		batch, err := DecodeFrame(raw)
		if err != nil {
			h.m.MalformedFrames.Inc()
			h.log.Warn("dropping upstream frame", "error", err, "bytes", len(raw))
			continue
		}
		if len(batch) == 0 {
			continue
		}
		select {
		case h.frames <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) post(ctx context.Context, ev linkEvent) {
	select {
	case h.links <- ev:
	case <-ctx.Done():
	}
}
