package sim

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

var errClosed = errors.New("sim: connection closed")

// Feed is an in-process stand-in for the stocks WebSocket. Each connection
// emits one frame per interval holding a trade and a second aggregate for
// every subscribed symbol. It implements stream.Feed.
type Feed struct {
	interval time.Duration
}

// NewFeed creates a feed ticking every interval (1s when zero).
func NewFeed(interval time.Duration) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{interval: interval}
}

var _ stream.Feed = (*Feed)(nil)

// Dial opens a simulated connection.
func (f *Feed) Dial(ctx context.Context) (stream.FeedConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &conn{
		ticker: time.NewTicker(f.interval),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		prices: make(map[string]float64),
		done:   make(chan struct{}),
	}, nil
}

type conn struct {
	ticker *time.Ticker
	rng    *rand.Rand // used only by ReadMessage

	mu     sync.Mutex
	prices map[string]float64 // subscribed symbols → last price

	done chan struct{}
	once sync.Once
}

// Send applies subscribe and unsubscribe control messages.
func (c *conn) Send(msg model.ControlMessage) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sym := range model.SymbolsFromParams(msg.Params) {
		switch msg.Action {
		case model.ActionSubscribe:
			if _, ok := c.prices[sym]; !ok {
				c.prices[sym] = BasePrice(sym)
			}
		case model.ActionUnsubscribe:
			delete(c.prices, sym)
		}
	}
	return nil
}

// ReadMessage blocks until the next tick and returns a frame of events. Ticks
// with nothing subscribed are skipped.
func (c *conn) ReadMessage() ([]byte, error) {
	for {
		select {
		case <-c.done:
			return nil, errClosed
		case now := <-c.ticker.C:
			if frame := c.frame(now); frame != nil {
				return frame, nil
			}
		}
	}
}

func (c *conn) frame(now time.Time) []byte {
	c.mu.Lock()
	syms := make([]string, 0, len(c.prices))
	for sym := range c.prices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	ms := now.UnixMilli()
	events := make([]any, 0, 2*len(syms))
	for _, sym := range syms {
		open := c.prices[sym]
		last := math.Round(open*math.Exp(0.001*c.rng.NormFloat64())*100) / 100
		c.prices[sym] = last

		size := float64(1 + c.rng.Intn(500))
		events = append(events,
			model.Trade{Ev: model.EventTrade, Sym: sym, Price: last, Size: size, Timestamp: ms},
			model.Aggregate{
				Ev: model.EventSecondAgg, Sym: sym, Volume: size,
				Open: open, High: math.Max(open, last), Low: math.Min(open, last), Close: last,
				Start: ms - 1000, End: ms,
			})
	}
	c.mu.Unlock()

	if len(events) == 0 {
		return nil
	}
	raw, err := json.Marshal(events)
	if err != nil {
		return nil
	}
	return raw
}

func (c *conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.ticker.Stop()
	})
	return nil
}
