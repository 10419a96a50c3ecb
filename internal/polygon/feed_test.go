package polygon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vortexpixelz/datax-research-terminal/internal/model"
)

// fakePolygon mimics the stocks socket: it greets, checks the key, then
// echoes each control message back as a status element and pushes one trade.
func fakePolygon(t *testing.T, key string, got chan<- model.ControlMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		ws.WriteJSON([]map[string]string{{"ev": "status", "status": "connected", "message": "Connected Successfully"}})

		var auth model.ControlMessage
		if err := ws.ReadJSON(&auth); err != nil {
			return
		}
		if auth.Action != model.ActionAuth || auth.Params != key {
			ws.WriteJSON([]map[string]string{{"ev": "status", "status": "auth_failed", "message": "authentication failed"}})
			return
		}
		ws.WriteJSON([]map[string]string{{"ev": "status", "status": "auth_success", "message": "authenticated"}})

		for {
			var msg model.ControlMessage
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			got <- msg
			ws.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"T","sym":"AAPL","p":190.1,"s":5,"t":1700000000000}]`))
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeed_DialAuthAndRoundTrip(t *testing.T) {
	got := make(chan model.ControlMessage, 4)
	srv := fakePolygon(t, "secret", got)
	defer srv.Close()

	feed := NewFeed("secret", wsURL(srv), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := feed.Dial(ctx)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	sub := model.ControlMessage{Action: model.ActionSubscribe, Params: "T.AAPL,A.AAPL"}
	if err := conn.Send(sub); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case msg := <-got:
		if msg != sub {
			t.Errorf("server got %+v, want %+v", msg, sub)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the subscribe")
	}

	raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(raw), `"sym":"AAPL"`) {
		t.Errorf("unexpected frame %s", raw)
	}

	if err := conn.Close(); err != nil {
		t.Logf("close: %v", err)
	}
	if _, err := conn.ReadMessage(); err == nil {
		t.Error("ReadMessage after Close should fail")
	}
}

func TestFeed_AuthFailed(t *testing.T) {
	srv := fakePolygon(t, "secret", make(chan model.ControlMessage, 1))
	defer srv.Close()

	_, err := NewFeed("wrong", wsURL(srv), nil).Dial(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("err=%v, want ErrAuthFailed", err)
	}
}
