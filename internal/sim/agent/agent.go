package agent

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"spacebots.io/internal/sim/grid"
)

var (
	ErrEmptyID     = errors.New("agent id is empty")
	ErrOutOfBounds = errors.New("agent position out of bounds")
	ErrDuplicateID = errors.New("duplicate agent id")
)

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Outcome describes one resolved move attempt.
type Outcome struct {
	AgentID string
	Dir     Direction
	From    Pos
	To      Pos // equals From when the move was reverted
	Target  Pos

	Moved     bool
	Collected bool

	Merged bool
	Merge  grid.MergeStats
}

type Stats struct {
	ID        string `json:"id"`
	Pos       Pos    `json:"pos"`
	Resources int    `json:"resources"`
	Moves     int    `json:"moves"`
	Blocked   int    `json:"blocked"`
	Merges    int    `json:"merges"`
}

// Agent is a robot exploring the shared grid. Move* and Replica must only
// be called from the single goroutine driving the agent; the stat
// accessors are safe from anywhere.
type Agent struct {
	id      string
	grid    *grid.Shared
	replica *grid.Replica

	// Guards the fields below. Always taken after the grid lock, never before.
	mu        sync.RWMutex
	pos       Pos
	resources int
	moves     int
	blocked   int
	merges    int
}

// New places an agent at (x, y). Its replica is a snapshot of g taken now,
// and the start tile is discovered on both.
func New(id string, x, y int, g *grid.Shared) (*Agent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyID
	}
	if !g.InBounds(x, y) {
		return nil, fmt.Errorf("%w: %s at (%d,%d) on %dx%d", ErrOutOfBounds, id, x, y, g.Width(), g.Height())
	}
	snap, err := g.Snapshot()
	if err != nil {
		return nil, err
	}
	a := &Agent{
		id:      id,
		grid:    g,
		replica: grid.NewReplica(snap),
		pos:     Pos{X: x, Y: y},
	}

	var seen grid.TileType
	if err := g.Write(func(m *grid.Map) {
		m.Discover(x, y)
		t, _ := m.TileAt(x, y)
		seen = t.Type
	}); err != nil {
		return nil, err
	}
	a.replica.Observe(x, y, seen)
	return a, nil
}

func (a *Agent) ID() string { return a.id }

func (a *Agent) Position() Pos {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

func (a *Agent) Resources() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resources
}

func (a *Agent) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Stats{
		ID:        a.id,
		Pos:       a.pos,
		Resources: a.resources,
		Moves:     a.moves,
		Blocked:   a.blocked,
		Merges:    a.merges,
	}
}

// Replica is owned by the driving goroutine; read it only from there or
// after the run has finished.
func (a *Agent) Replica() *grid.Replica { return a.replica }

func (a *Agent) MoveUp() (Outcome, error)    { return a.Move(Up) }
func (a *Agent) MoveDown() (Outcome, error)  { return a.Move(Down) }
func (a *Agent) MoveLeft() (Outcome, error)  { return a.Move(Left) }
func (a *Agent) MoveRight() (Outcome, error) { return a.Move(Right) }

// Move tries one step in d. The only error is grid.ErrPoisoned; blocked
// and out-of-bounds moves simply leave the agent where it is.
func (a *Agent) Move(d Direction) (Outcome, error) {
	from := a.Position()
	dx, dy := d.Delta()
	out, err := a.attemptMove(from.X+dx, from.Y+dy)
	out.Dir = d
	return out, err
}

func (a *Agent) attemptMove(tx, ty int) (Outcome, error) {
	out := Outcome{AgentID: a.id, Target: Pos{X: tx, Y: ty}}

	var (
		inBounds bool
		seen     grid.TileType
	)
	err := a.grid.Write(func(m *grid.Map) {
		t, ok := m.TileAt(tx, ty)
		if !ok {
			return
		}
		inBounds = true

		a.mu.Lock()
		out.From = a.pos
		if t.Traversable {
			a.pos = Pos{X: tx, Y: ty}
			a.moves++
			out.Moved = true
			if t.Type == grid.Energy {
				// First agent into the critical section takes it.
				m.SetType(tx, ty, grid.Empty)
				a.resources++
				out.Collected = true
			}
		} else {
			a.blocked++
		}
		out.To = a.pos
		a.mu.Unlock()

		// Walls are revealed even when they stop us.
		m.Discover(tx, ty)
		t, _ = m.TileAt(tx, ty)
		seen = t.Type
	})
	if err != nil {
		return out, err
	}

	if inBounds {
		a.replica.Observe(tx, ty, seen)
	} else {
		a.mu.Lock()
		a.blocked++
		out.From, out.To = a.pos, a.pos
		a.mu.Unlock()
	}

	if t, ok := a.replica.TileAt(out.To.X, out.To.Y); ok && t.Type == grid.ScientificStation {
		st, err := a.Merge()
		if err != nil {
			return out, err
		}
		out.Merged = true
		out.Merge = st
	}
	return out, nil
}

// Merge pulls newer grid tiles into the replica. The grid lock is held only
// while the snapshot is copied.
func (a *Agent) Merge() (grid.MergeStats, error) {
	snap, err := a.grid.Snapshot()
	if err != nil {
		return grid.MergeStats{}, err
	}
	st, err := a.replica.MergeFrom(snap)
	if err != nil {
		return st, err
	}
	a.mu.Lock()
	a.merges++
	a.mu.Unlock()
	return st, nil
}
