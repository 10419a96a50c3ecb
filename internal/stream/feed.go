package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// Feed dials the upstream market data feed. Implementations complete any
// authentication handshake before returning the connection.
type Feed interface {
	Dial(ctx context.Context) (FeedConn, error)
}

// FeedConn is one live upstream connection. ReadMessage and Send are each
// called from a single goroutine; Close may be called from any goroutine and
// must unblock a pending ReadMessage.
type FeedConn interface {
	ReadMessage() ([]byte, error)
	Send(msg model.ControlMessage) error
	Close() error
}

// ErrMalformedFrame is returned by DecodeFrame for frames that are not a JSON
// object or array of objects.
var ErrMalformedFrame = errors.New("stream: malformed upstream frame")

// Routed is one decoded upstream element with its routing symbol ("" for
// status and other symbol-less events).
type Routed struct {
	Symbol string
	Event  model.Event
}

// DecodeFrame splits an upstream frame into events. The feed sends a JSON
// array of elements, each tagged by "ev"; a bare object is accepted as a
// one-element frame. Elements without an "ev" tag are skipped.
func DecodeFrame(raw []byte) ([]Routed, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
	}

	var elems []json.RawMessage
	if raw[0] == '{' {
		elems = []json.RawMessage{append(json.RawMessage(nil), raw...)}
	} else if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	out := make([]Routed, 0, len(elems))
	for _, el := range elems {
		var head model.UpstreamEvent
		if err := json.Unmarshal(el, &head); err != nil || head.Ev == "" {
			continue
		}
		out = append(out, Routed{
			Symbol: head.Symbol(),
			Event:  model.Event{Type: head.Ev, Data: el},
		})
	}
	return out, nil
}

// upstream is the hub's handle on one FeedConn. Control messages are queued
// on out and written by writeLoop so the actor never blocks on the network.
type upstream struct {
	conn FeedConn
	out  chan model.ControlMessage
	done chan struct{}
	once sync.Once
}

func newUpstream(conn FeedConn, buffer int) *upstream {
	return &upstream{
		conn: conn,
		out:  make(chan model.ControlMessage, buffer),
		done: make(chan struct{}),
	}
}

// enqueue is non-blocking. It reports false when the queue is full or the
// connection is already closed.
func (u *upstream) enqueue(msg model.ControlMessage) bool {
	select {
	case <-u.done:
		return false
	default:
	}
	select {
	case u.out <- msg:
		return true
	default:
		return false
	}
}

func (u *upstream) writeLoop(log *slog.Logger) {
	for {
		select {
		case <-u.done:
			return
		case msg := <-u.out:
			if err := u.conn.Send(msg); err != nil {
				log.Warn("upstream write failed", "action", msg.Action, "error", err)
				u.close()
				return
			}
		}
	}
}

func (u *upstream) close() {
	u.once.Do(func() {
		close(u.done)
		u.conn.Close()
	})
}
