package grid

import (
	"errors"
	"sync"
	"testing"
)

func TestShared_PanicPoisonsLock(t *testing.T) {
	m, err := New(Config{Width: 3, Height: 3, Seed: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := NewShared(m)

	func() {
		defer func() { _ = recover() }()
		_ = g.Write(func(m *Map) {
			m.SetType(0, 0, Rock)
			panic("writer died")
		})
	}()

	if !g.Poisoned() {
		t.Fatalf("expected poisoned grid")
	}
	if _, _, err := g.TileAt(0, 0); !errors.Is(err, ErrPoisoned) {
		t.Fatalf("TileAt: got %v, want ErrPoisoned", err)
	}
	if err := g.Discover(1, 1); !errors.Is(err, ErrPoisoned) {
		t.Fatalf("Discover: got %v, want ErrPoisoned", err)
	}
	if _, err := g.Snapshot(); !errors.Is(err, ErrPoisoned) {
		t.Fatalf("Snapshot: got %v, want ErrPoisoned", err)
	}
}

func TestShared_ConcurrentDiscover(t *testing.T) {
	m, err := New(Config{Width: 16, Height: 16, Seed: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := NewShared(m)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				if err := g.Discover((i+w)%16, i/16); err != nil {
					t.Errorf("Discover: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	snap, err := g.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	for i, tile := range snap.Tiles() {
		if !tile.Discovered || tile.LastVisited == 0 {
			t.Fatalf("tile %d not discovered: %+v", i, tile)
		}
	}
}

func TestShared_SnapshotIsDetached(t *testing.T) {
	m, err := New(Config{Width: 2, Height: 2, Seed: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g := NewShared(m)
	snap, err := g.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap.Discover(0, 0)
	tile, _, err := g.TileAt(0, 0)
	if err != nil {
		t.Fatalf("TileAt: %v", err)
	}
	if tile.Discovered {
		t.Fatalf("snapshot write leaked into the shared grid")
	}
}
