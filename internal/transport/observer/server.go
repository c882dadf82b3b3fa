package observer

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"spacebots.io/internal/observerproto"
	"spacebots.io/internal/protocol"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
)

type Config struct {
	Grid   *grid.Shared
	Agents *agent.Registry
	RunID  string

	Steps        int
	StepInterval time.Duration
	// Frame interval used when the subscriber does not ask for one.
	DefaultInterval time.Duration

	Logger *log.Logger
}

type Server struct {
	cfg Config
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = 200 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		cfg: cfg,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Bootstrap() observerproto.BootstrapResponse {
	names := grid.Palette()
	palette := make([]observerproto.PaletteEntry, len(names))
	for i, name := range names {
		palette[i] = observerproto.PaletteEntry{Name: name, Color: grid.TileType(i).Color()}
	}
	agents := s.cfg.Agents.All()
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID()
	}
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           s.cfg.RunID,
		WorldParams: observerproto.WorldParams{
			Width:          s.cfg.Grid.Width(),
			Height:         s.cfg.Grid.Height(),
			Seed:           s.cfg.Grid.Seed(),
			Steps:          s.cfg.Steps,
			StepIntervalMs: int(s.cfg.StepInterval / time.Millisecond),
		},
		Palette:  palette,
		AgentIDs: ids,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(s.Bootstrap())
	}
}

// State pairs a grid copy with agent stats read in the same critical
// section, so positions and collected energy agree with the tiles.
func (s *Server) State(seq uint64) (observerproto.StateMsg, error) {
	list := s.cfg.Agents.All()
	var (
		snap  *grid.Map
		stats = make([]agent.Stats, 0, len(list))
	)
	if err := s.cfg.Grid.Read(func(m *grid.Map) {
		snap = m.Clone()
		for _, a := range list {
			stats = append(stats, a.Stats())
		}
	}); err != nil {
		return observerproto.StateMsg{}, err
	}
	agents := make([]protocol.AgentV1, 0, len(stats))
	for _, st := range stats {
		agents = append(agents, protocol.EncodeAgent(st, nil))
	}
	return observerproto.StateMsg{
		Type:            observerproto.TypeState,
		ProtocolVersion: observerproto.Version,
		Seq:             seq,
		Grid:            protocol.EncodeMap(snap),
		Agents:          agents,
	}, nil
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		intervals := make(chan time.Duration, 1)
		intervals <- s.interval(sub)

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- s.writeLoop(ctx, conn, intervals)
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := parseSubscribe(msg)
			if !ok {
				continue
			}
			select {
			case intervals <- s.interval(sub):
			default:
				// Drop updates under load; the client may resend.
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, intervals <-chan time.Duration) error {
	ticker := time.NewTicker(<-intervals)
	defer ticker.Stop()

	var seq uint64
	send := func() error {
		state, err := s.State(seq)
		if err != nil {
			s.log.Printf("observer: build state: %v", err)
			b, _ := json.Marshal(protocol.NewError(protocol.ErrInternal, err.Error()))
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			_ = conn.WriteMessage(websocket.TextMessage, b)
			return err
		}
		seq++
		b, err := json.Marshal(state)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, b)
	}

	if err := send(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-intervals:
			ticker.Reset(d)
		case <-ticker.C:
			if err := send(); err != nil {
				return err
			}
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func (s *Server) interval(sub observerproto.SubscribeMsg) time.Duration {
	d := time.Duration(sub.IntervalMs) * time.Millisecond
	if d <= 0 {
		return s.cfg.DefaultInterval
	}
	if d < 20*time.Millisecond {
		d = 20 * time.Millisecond
	}
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
