package grid

import (
	"errors"
	"sync"
)

// ErrPoisoned is returned by every Shared accessor after a panic escaped
// while the lock was held. The tiles may be half-written; the run must stop.
var ErrPoisoned = errors.New("grid lock poisoned")

// Store is implemented by the shared Grid and by agent replicas.
// Callbacks must not retain m beyond the call.
type Store interface {
	Width() int
	Height() int
	Read(fn func(m *Map)) error
	Write(fn func(m *Map)) error
}

var (
	_ Store = (*Shared)(nil)
	_ Store = (*Replica)(nil)
)

// Shared is the authoritative Grid. All tile access goes through its lock.
type Shared struct {
	mu       sync.Mutex
	m        *Map
	poisoned bool
}

// NewShared takes ownership of m.
func NewShared(m *Map) *Shared {
	return &Shared{m: m}
}

// Dimensions and seed never change after construction and need no lock.
func (g *Shared) Width() int   { return g.m.width }
func (g *Shared) Height() int  { return g.m.height }
func (g *Shared) Seed() uint64 { return g.m.seed }

func (g *Shared) InBounds(x, y int) bool { return g.m.InBounds(x, y) }

func (g *Shared) Read(fn func(m *Map)) error  { return g.locked(fn) }
func (g *Shared) Write(fn func(m *Map)) error { return g.locked(fn) }

func (g *Shared) locked(fn func(m *Map)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.poisoned {
		return ErrPoisoned
	}
	done := false
	defer func() {
		if !done {
			g.poisoned = true
		}
	}()
	fn(g.m)
	done = true
	return nil
}

func (g *Shared) TileAt(x, y int) (Tile, bool, error) {
	var (
		t  Tile
		ok bool
	)
	err := g.Read(func(m *Map) { t, ok = m.TileAt(x, y) })
	return t, ok, err
}

func (g *Shared) Discover(x, y int) error {
	return g.Write(func(m *Map) { m.Discover(x, y) })
}

// Snapshot copies the whole grid under the lock.
func (g *Shared) Snapshot() (*Map, error) {
	var c *Map
	err := g.Read(func(m *Map) { c = m.Clone() })
	return c, err
}

func (g *Shared) Poisoned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.poisoned
}
