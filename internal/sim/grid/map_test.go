package grid

import "testing"

func TestDiscover_OutOfBoundsIsNoop(t *testing.T) {
	m, err := New(Config{Width: 6, Height: 3, Seed: 9})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := m.Digest()
	for _, p := range [][2]int{{-1, -1}, {6, 3}, {0, 3}, {6, 0}, {-1, 0}} {
		m.Discover(p[0], p[1])
	}
	if m.Digest() != before {
		t.Fatalf("out-of-bounds discover changed the map")
	}
}

func TestDiscover_StampsNeverDecrease(t *testing.T) {
	clock := &fixedClock{v: 100}
	m, err := newMap(2, 2, 1, clock)
	if err != nil {
		t.Fatalf("newMap: %v", err)
	}
	m.Discover(1, 1)
	tile, _ := m.TileAt(1, 1)
	if !tile.Discovered || tile.LastVisited != 100 {
		t.Fatalf("after discover: %+v", tile)
	}
	clock.v = 50
	m.Discover(1, 1)
	tile, _ = m.TileAt(1, 1)
	if tile.LastVisited != 100 {
		t.Fatalf("last visited went backwards: %d", tile.LastVisited)
	}
}

func TestMilliClock_StrictlyIncreasing(t *testing.T) {
	c := NewMilliClock()
	prev := c.Now()
	for i := 0; i < 10000; i++ {
		n := c.Now()
		if n <= prev {
			t.Fatalf("clock went from %d to %d", prev, n)
		}
		prev = n
	}
}

func TestSetType_RecomputesTraversable(t *testing.T) {
	m, err := newMap(1, 1, 1, nil)
	if err != nil {
		t.Fatalf("newMap: %v", err)
	}
	m.SetType(0, 0, Rock)
	if tile, _ := m.TileAt(0, 0); tile.Traversable {
		t.Fatalf("rock must not be traversable")
	}
	m.SetType(0, 0, Energy)
	if tile, _ := m.TileAt(0, 0); !tile.Traversable {
		t.Fatalf("energy must be traversable")
	}
	if m.SetType(1, 0, Empty) {
		t.Fatalf("out-of-bounds SetType reported success")
	}
}

func TestFromTiles(t *testing.T) {
	src, err := New(Config{Width: 5, Height: 4, Seed: 11})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	src.Discover(2, 3)
	back, err := FromTiles(5, 4, src.Seed(), src.Tiles(), nil)
	if err != nil {
		t.Fatalf("FromTiles: %v", err)
	}
	if back.Digest() != src.Digest() {
		t.Fatalf("FromTiles did not reproduce the map")
	}
	if _, err := FromTiles(5, 4, 1, src.Tiles()[:3], nil); err == nil {
		t.Fatalf("expected tile count error")
	}
}

func TestParseTileType(t *testing.T) {
	for _, tt := range []TileType{Empty, Rock, Energy, ScientificStation} {
		got, err := ParseTileType(tt.String())
		if err != nil || got != tt {
			t.Fatalf("ParseTileType(%s) = %v, %v", tt, got, err)
		}
	}
	if _, err := ParseTileType("LAVA"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

type fixedClock struct{ v int64 }

func (c *fixedClock) Now() int64 { return c.v }
