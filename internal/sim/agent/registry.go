package agent

import (
	"fmt"
	"strings"
	"sync"

	"spacebots.io/internal/sim/grid"
)

// Registry indexes agents by id. Agents point at the grid; the grid never
// points back.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Agent
	order []*Agent
}

func NewRegistry() *Registry {
	return &Registry{byID: map[string]*Agent{}}
}

func (r *Registry) Add(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[a.id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.id)
	}
	r.byID[a.id] = a
	r.order = append(r.order, a)
	return nil
}

// Spawn creates an agent on g and registers it. The id is reserved before
// the start tile is touched, so a rejected duplicate never mutates g.
// Lock order: registry, then grid.
func (r *Registry) Spawn(id string, x, y int, g *grid.Shared) (*Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[strings.TrimSpace(id)]; dup {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	a, err := New(id, x, y, g)
	if err != nil {
		return nil, err
	}
	r.byID[a.id] = a
	r.order = append(r.order, a)
	return a, nil
}

func (r *Registry) Get(id string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	return a, ok
}

// All returns agents in registration order.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Registry) Stats() []Stats {
	agents := r.All()
	out := make([]Stats, 0, len(agents))
	for _, a := range agents {
		out = append(out, a.Stats())
	}
	return out
}
