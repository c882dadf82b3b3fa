// Package relay is a websocket hub that echoes every peer message to all
// connected peers, the sender included. A single connected peer gets a plain
// echo of its own messages.
package relay

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const peerQueue = 32

type frame struct {
	kind int
	data []byte
}

type peer struct {
	id  string
	out chan frame
}

type Hub struct {
	log *log.Logger

	upgrader websocket.Upgrader

	register   chan *peer
	unregister chan *peer
	broadcast  chan frame

	mu    sync.Mutex
	peers int
}

func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "[relay] ", log.LstdFlags)
	}
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan frame, 64),
	}
}

// Peers reports the number of connected peers.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers
}

// Run fans broadcasts out until ctx is done. Peers whose queue is full are
// dropped rather than blocking everyone else.
func (h *Hub) Run(ctx context.Context) {
	peers := map[*peer]struct{}{}
	setCount := func() {
		h.mu.Lock()
		h.peers = len(peers)
		h.mu.Unlock()
	}
	drop := func(p *peer) {
		if _, ok := peers[p]; !ok {
			return
		}
		delete(peers, p)
		close(p.out)
		setCount()
	}
	for {
		select {
		case <-ctx.Done():
			for p := range peers {
				drop(p)
			}
			return
		case p := <-h.register:
			peers[p] = struct{}{}
			setCount()
			h.log.Printf("peer %s connected (%d total)", p.id, len(peers))
		case p := <-h.unregister:
			drop(p)
		case f := <-h.broadcast:
			for p := range peers {
				select {
				case p.out <- f:
				default:
					h.log.Printf("peer %s too slow, dropping", p.id)
					drop(p)
				}
			}
		}
	}
}

func (h *Hub) Handler(ctx context.Context) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		p := &peer{id: uuid.NewString(), out: make(chan frame, peerQueue)}
		select {
		case h.register <- p:
		case <-ctx.Done():
			return
		}

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for f := range p.out {
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(f.kind, f.data); err != nil {
					return
				}
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"), time.Now().Add(time.Second))
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			select {
			case h.broadcast <- frame{kind: kind, data: msg}:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		select {
		case h.unregister <- p:
		case <-ctx.Done():
		}
		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
		}
		h.log.Printf("peer %s disconnected", p.id)
	}
}
