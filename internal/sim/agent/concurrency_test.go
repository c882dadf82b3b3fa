package agent

import (
	"math/rand/v2"
	"sync"
	"testing"

	"spacebots.io/internal/sim/grid"
)

func TestMove_ConcurrentCollectExactlyOnce(t *testing.T) {
	const n = 32
	g := sharedFrom(t, 3, 1, map[Pos]grid.TileType{{X: 1, Y: 0}: grid.Energy})
	reg := NewRegistry()
	for i := 0; i < n; i++ {
		if _, err := reg.Spawn(idFor(i), 0, 0, g); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, a := range reg.All() {
		wg.Add(1)
		go func(a *Agent) {
			defer wg.Done()
			<-start
			if _, err := a.MoveRight(); err != nil {
				t.Errorf("MoveRight: %v", err)
			}
		}(a)
	}
	close(start)
	wg.Wait()

	winners := 0
	for _, st := range reg.Stats() {
		switch st.Resources {
		case 0:
		case 1:
			winners++
		default:
			t.Fatalf("agent %s collected %d", st.ID, st.Resources)
		}
		if st.Pos != (Pos{X: 1, Y: 0}) {
			t.Fatalf("agent %s at %+v", st.ID, st.Pos)
		}
	}
	if winners != 1 {
		t.Fatalf("winners: got %d want 1", winners)
	}
	if tile := mustTile(t, g, 1, 0); tile.Type != grid.Empty {
		t.Fatalf("tile still %s", tile.Type)
	}
}

func TestMove_ConcurrentRandomWalkConservesEnergy(t *testing.T) {
	m, err := grid.New(grid.Config{Width: 12, Height: 12, Seed: 99})
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	energyBefore := m.Counts()[grid.Energy]
	g := grid.NewShared(m)

	reg := NewRegistry()
	for i := 0; i < 8; i++ {
		if _, err := reg.Spawn(idFor(i), i, i, g); err != nil {
			t.Fatalf("Spawn: %v", err)
		}
	}

	var wg sync.WaitGroup
	for i, a := range reg.All() {
		wg.Add(1)
		go func(a *Agent, seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed))
			for step := 0; step < 500; step++ {
				if _, err := a.Move(Directions[rng.IntN(len(Directions))]); err != nil {
					t.Errorf("Move: %v", err)
					return
				}
			}
		}(a, uint64(i+1))
	}
	wg.Wait()

	snap, err := g.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	collected := 0
	for _, st := range reg.Stats() {
		collected += st.Resources
		if !g.InBounds(st.Pos.X, st.Pos.Y) {
			t.Fatalf("agent %s escaped to %+v", st.ID, st.Pos)
		}
	}
	if got := energyBefore - snap.Counts()[grid.Energy]; got != collected {
		t.Fatalf("energy removed from grid %d != collected %d", got, collected)
	}
}

func idFor(i int) string {
	return "R" + string(rune('A'+i%26)) + string(rune('a'+i/26))
}
