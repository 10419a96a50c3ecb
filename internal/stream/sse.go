package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

var (
	// ErrSinkClosed is returned by Send after the sink's stream has ended.
	ErrSinkClosed = errors.New("stream: sink closed")
	// ErrSinkBusy is returned by Send when the sink's queue is full.
	ErrSinkBusy = errors.New("stream: sink queue full")
)

const (
	// DefaultHeartbeat is the SSE keep-alive interval.
	DefaultHeartbeat = 30 * time.Second
	// DefaultSinkBuffer is the per-sink event queue length.
	DefaultSinkBuffer = 256
)

// SSESink is a Server-Sent Events client. Events are queued by Send and
// written by Serve, which owns the ResponseWriter.
type SSESink struct {
	id        string
	send      chan model.Event
	done      chan struct{}
	once      sync.Once
	heartbeat time.Duration
}

// NewSSESink creates a sink. Zero buffer or heartbeat take the defaults.
func NewSSESink(id string, buffer int, heartbeat time.Duration) *SSESink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &SSESink{
		id:        id,
		send:      make(chan model.Event, buffer),
		done:      make(chan struct{}),
		heartbeat: heartbeat,
	}
}

func (s *SSESink) ID() string { return s.id }

// Send queues ev without blocking.
func (s *SSESink) Send(ev model.Event) error {
	select {
	case <-s.done:
		return ErrSinkClosed
	default:
	}
	select {
	case s.send <- ev:
		return nil
	default:
		return ErrSinkBusy
	}
}

// Close ends the stream. Safe to call more than once.
func (s *SSESink) Close() {
	s.once.Do(func() { close(s.done) })
}

// Done is closed once the sink stops accepting events.
func (s *SSESink) Done() <-chan struct{} { return s.done }

// Serve writes SSE headers, then queued events as "data: <json>" frames and a
// comment heartbeat on every tick, until ctx is cancelled, the sink is closed
// or a write fails. The sink is closed on return.
func (s *SSESink) Serve(ctx context.Context, w http.ResponseWriter) error {
	defer s.Close()

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case ev := <-s.send:
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return err
			}
			flush()
		}
	}
}

func writeEvent(w io.Writer, ev model.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	_, err = w.Write(buf)
	return err
}
