// Command watch follows a running server through the observer stream and
// logs one line per STATE frame.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"spacebots.io/internal/observerproto"
	"spacebots.io/internal/protocol"
	"spacebots.io/internal/sim/grid"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/observer/ws", "observer ws url")
		interval = flag.Int("interval_ms", 500, "requested frame interval")
		frames   = flag.Int("frames", 0, "stop after this many frames (0 = until interrupted)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		IntervalMs:      *interval,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	seen := 0
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeState:
			var st observerproto.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			line, err := describe(st)
			if err != nil {
				logger.Printf("bad frame: %v", err)
				continue
			}
			logger.Print(line)
			seen++
			if *frames > 0 && seen >= *frames {
				return
			}
		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

// describe renders a frame as "seq=N discovered=D/T energy=E R1(x,y):r ...".
func describe(st observerproto.StateMsg) (string, error) {
	m, err := protocol.DecodeMap(st.Grid, nil)
	if err != nil {
		return "", err
	}
	discovered := 0
	for _, t := range m.Tiles() {
		if t.Discovered {
			discovered++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d discovered=%d/%d energy=%d", st.Seq, discovered, m.Width()*m.Height(), m.Counts()[grid.Energy])
	for _, a := range st.Agents {
		fmt.Fprintf(&b, " %s(%d,%d):%d", a.ID, a.Pos[0], a.Pos[1], a.Resources)
	}
	return b.String(), nil
}
