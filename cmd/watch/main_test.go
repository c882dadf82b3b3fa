package main

import (
	"testing"

	"spacebots.io/internal/observerproto"
	"spacebots.io/internal/protocol"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
)

func TestDescribe(t *testing.T) {
	m, err := grid.New(grid.Config{Width: 5, Height: 4, Seed: 3})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	m.Discover(0, 0)
	m.Discover(1, 0)
	st := observerproto.StateMsg{
		Type: observerproto.TypeState,
		Seq:  9,
		Grid: protocol.EncodeMap(m),
		Agents: []protocol.AgentV1{
			protocol.EncodeAgent(agent.Stats{ID: "R1", Pos: agent.Pos{X: 1, Y: 0}, Resources: 2}, nil),
		},
	}
	got, err := describe(st)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	want := "seq=9 discovered=2/20 energy="
	if len(got) < len(want) || got[:len(want)] != want {
		t.Fatalf("got %q", got)
	}
	if got[len(got)-len(" R1(1,0):2"):] != " R1(1,0):2" {
		t.Fatalf("agent suffix missing: %q", got)
	}

	st.Grid.Width = 0
	if _, err := describe(st); err == nil {
		t.Fatalf("expected error for corrupt grid")
	}
}
