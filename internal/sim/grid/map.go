package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrInvalidDimensions = errors.New("grid dimensions must be positive")

// Map is plain tile storage shared by the Grid and by agent replicas.
// It has no synchronization of its own.
type Map struct {
	width  int
	height int
	seed   uint64

	// x-major: index = x*height + y
	tiles []Tile
	clock Clock
}

func newMap(width, height int, seed uint64, clock Clock) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d", ErrInvalidDimensions, width, height)
	}
	if clock == nil {
		clock = DefaultClock
	}
	return &Map{
		width:  width,
		height: height,
		seed:   seed,
		tiles:  make([]Tile, width*height),
		clock:  clock,
	}, nil
}

// FromTiles rebuilds a Map from x-major tiles, e.g. after decoding.
// Traversable is recomputed from Type.
func FromTiles(width, height int, seed uint64, tiles []Tile, clock Clock) (*Map, error) {
	m, err := newMap(width, height, seed, clock)
	if err != nil {
		return nil, err
	}
	if len(tiles) != len(m.tiles) {
		return nil, fmt.Errorf("tile count %d does not match %dx%d", len(tiles), width, height)
	}
	for i, t := range tiles {
		if !t.Type.Valid() {
			return nil, fmt.Errorf("tile %d: invalid type %d", i, t.Type)
		}
		t.Traversable = t.Type.Traversable()
		m.tiles[i] = t
	}
	return m, nil
}

func (m *Map) Width() int   { return m.width }
func (m *Map) Height() int  { return m.height }
func (m *Map) Seed() uint64 { return m.seed }

func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && x < m.width && y >= 0 && y < m.height
}

func (m *Map) index(x, y int) int { return x*m.height + y }

func (m *Map) TileAt(x, y int) (Tile, bool) {
	if !m.InBounds(x, y) {
		return Tile{}, false
	}
	return m.tiles[m.index(x, y)], true
}

// Discover marks (x, y) as seen and stamps it. Out of bounds is a no-op.
func (m *Map) Discover(x, y int) {
	if !m.InBounds(x, y) {
		return
	}
	m.tiles[m.index(x, y)].visit(m.clock.Now())
}

// SetType changes a tile's type and its derived fields.
func (m *Map) SetType(x, y int, t TileType) bool {
	if !m.InBounds(x, y) || !t.Valid() {
		return false
	}
	m.tiles[m.index(x, y)].setType(t)
	return true
}

// Tiles returns a copy of all tiles in x-major order.
func (m *Map) Tiles() []Tile {
	out := make([]Tile, len(m.tiles))
	copy(out, m.tiles)
	return out
}

func (m *Map) Clone() *Map {
	c := *m
	c.tiles = m.Tiles()
	return &c
}

// Counts returns the number of tiles of each type, indexed by TileType.
func (m *Map) Counts() [4]int {
	var out [4]int
	for _, t := range m.tiles {
		out[t.Type]++
	}
	return out
}

// Digest hashes dimensions and every tile field.
func (m *Map) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], uint32(m.width))
	h.Write(tmp[:4])
	binary.LittleEndian.PutUint32(tmp[:4], uint32(m.height))
	h.Write(tmp[:4])
	for _, t := range m.tiles {
		var flags byte
		if t.Traversable {
			flags |= 1
		}
		if t.Discovered {
			flags |= 2
		}
		h.Write([]byte{byte(t.Type), flags})
		binary.LittleEndian.PutUint64(tmp[:], uint64(t.LastVisited))
		h.Write(tmp[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
