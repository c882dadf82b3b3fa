package grid

// Replica is an agent's private copy of the world. It is owned by exactly
// one goroutine and is never locked.
type Replica struct {
	m *Map
}

// NewReplica wraps m; the caller gives up any other reference to it.
func NewReplica(m *Map) *Replica {
	return &Replica{m: m}
}

func (r *Replica) Width() int  { return r.m.width }
func (r *Replica) Height() int { return r.m.height }

func (r *Replica) Read(fn func(m *Map)) error  { fn(r.m); return nil }
func (r *Replica) Write(fn func(m *Map)) error { fn(r.m); return nil }

func (r *Replica) TileAt(x, y int) (Tile, bool) { return r.m.TileAt(x, y) }
func (r *Replica) Discover(x, y int)            { r.m.Discover(x, y) }

// Observe records what the agent saw at (x, y) and discovers it.
func (r *Replica) Observe(x, y int, t TileType) {
	if r.m.SetType(x, y, t) {
		r.m.Discover(x, y)
	}
}

// Map exposes the underlying storage, for export by the owner.
func (r *Replica) Map() *Map { return r.m }
