package grid

import "fmt"

type TileType uint8

const (
	Empty TileType = iota
	Rock
	Energy
	ScientificStation
)

var tileTypeNames = [...]string{
	Empty:             "EMPTY",
	Rock:              "ROCK",
	Energy:            "ENERGY",
	ScientificStation: "SCIENTIFIC_STATION",
}

func (t TileType) String() string {
	if int(t) < len(tileTypeNames) {
		return tileTypeNames[t]
	}
	return fmt.Sprintf("TileType(%d)", uint8(t))
}

func (t TileType) Valid() bool { return int(t) < len(tileTypeNames) }

// Traversable reports whether an agent may stand on a tile of this type.
func (t TileType) Traversable() bool { return t != Rock }

// ParseTileType is the inverse of String.
func ParseTileType(s string) (TileType, error) {
	for i, name := range tileTypeNames {
		if name == s {
			return TileType(i), nil
		}
	}
	return Empty, fmt.Errorf("unknown tile type %q", s)
}

// Color is the RGB display color observers use for a tile type.
func (t TileType) Color() [3]float32 {
	switch t {
	case Rock:
		return [3]float32{0.5, 0.3, 0.1} // brown
	case Energy:
		return [3]float32{0.0, 1.0, 0.0} // green
	case ScientificStation:
		return [3]float32{0.5, 0.1, 0.5} // purple
	default:
		return [3]float32{0.0, 0.0, 0.0} // black
	}
}

// Palette lists every tile type name indexed by its numeric value.
func Palette() []string {
	out := make([]string, len(tileTypeNames))
	copy(out, tileTypeNames[:])
	return out
}

// Tile is one grid cell. Traversable always mirrors Type; use setType to change it.
type Tile struct {
	Type        TileType
	Traversable bool
	Discovered  bool
	LastVisited int64 // unix millis, 0 = never visited
}

func newTile(t TileType) Tile {
	return Tile{Type: t, Traversable: t.Traversable()}
}

func (t *Tile) setType(tt TileType) {
	t.Type = tt
	t.Traversable = tt.Traversable()
}

func (t *Tile) visit(now int64) {
	t.Discovered = true
	if now > t.LastVisited {
		t.LastVisited = now
	}
}
