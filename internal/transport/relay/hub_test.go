package relay

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHub(log.New(io.Discard, "", 0))
	go h.Run(ctx)
	ts := httptest.NewServer(h.Handler(ctx))
	t.Cleanup(ts.Close)
	return h, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitPeers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Peers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("peers=%d want %d", h.Peers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readText(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("kind=%d", kind)
	}
	return string(msg)
}

func TestHub_EchoesToAllPeersIncludingSender(t *testing.T) {
	h, url := startHub(t)
	a := dial(t, url)
	b := dial(t, url)
	waitPeers(t, h, 2)

	if err := a.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readText(t, a); got != "ping" {
		t.Fatalf("sender got %q", got)
	}
	if got := readText(t, b); got != "ping" {
		t.Fatalf("peer got %q", got)
	}
}

func TestHub_LonePeerGetsPlainEcho(t *testing.T) {
	h, url := startHub(t)
	a := dial(t, url)
	waitPeers(t, h, 1)

	for _, msg := range []string{"one", "two"} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := readText(t, a); got != msg {
			t.Fatalf("got %q, want %q", got, msg)
		}
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	h, url := startHub(t)
	a := dial(t, url)
	waitPeers(t, h, 1)
	_ = a.Close()
	waitPeers(t, h, 0)
}
