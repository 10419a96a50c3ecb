// Package polygon adapts Polygon.io to the terminal: a WebSocket stocks feed
// for the ticker fan-out and a REST aggregates source for historical bars.
package polygon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
	"github.com/vortexpixelz/datax-research-terminal/internal/stream"
)

// DefaultStocksURL is the realtime stocks cluster.
const DefaultStocksURL = "wss://socket.polygon.io/stocks"

const (
	authTimeout  = 10 * time.Second
	pingInterval = 45 * time.Second
	readTimeout  = 90 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrAuthFailed is returned by Dial when the feed rejects the API key.
var ErrAuthFailed = errors.New("polygon: authentication failed")

// Feed dials the Polygon stocks WebSocket. It implements stream.Feed.
type Feed struct {
	apiKey string
	url    string
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewFeed creates a feed. An empty url uses DefaultStocksURL.
func NewFeed(apiKey, url string, log *slog.Logger) *Feed {
	if url == "" {
		url = DefaultStocksURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		apiKey: apiKey,
		url:    url,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			EnableCompression: true,
		},
		log: log.With("component", "polygon_feed"),
	}
}

var _ stream.Feed = (*Feed)(nil)

// statusMsg is a {"ev":"status"} element.
type statusMsg struct {
	Ev      string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Dial connects, authenticates and waits for auth_success.
func (f *Feed) Dial(ctx context.Context) (stream.FeedConn, error) {
	ws, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("polygon dial: %w", err)
	}

	if err := f.authenticate(ws); err != nil {
		ws.Close()
		return nil, err
	}
	f.log.Info("feed authenticated", "url", f.url)

	c := &conn{ws: ws, done: make(chan struct{})}
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	})
	go c.pingLoop()
	return c, nil
}

func (f *Feed) authenticate(ws *websocket.Conn) error {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := ws.WriteJSON(model.ControlMessage{Action: model.ActionAuth, Params: f.apiKey}); err != nil {
		return fmt.Errorf("polygon auth write: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(authTimeout))
	for {
		var msgs []statusMsg
		if err := ws.ReadJSON(&msgs); err != nil {
			return fmt.Errorf("polygon auth read: %w", err)
		}
		for _, m := range msgs {
			if m.Ev != model.EventStatus {
				continue
			}
			switch m.Status {
			case "auth_success":
				return nil
			case "auth_failed":
				return fmt.Errorf("%w: %s", ErrAuthFailed, m.Message)
			}
		}
	}
}

// conn wraps one authenticated socket as a stream.FeedConn.
type conn struct {
	ws   *websocket.Conn
	done chan struct{}
	once sync.Once
}

func (c *conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	return data, nil
}

func (c *conn) Send(msg model.ControlMessage) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.ws.Close()
	})
	return err
}

func (c *conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
