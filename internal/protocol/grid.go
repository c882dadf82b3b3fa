package protocol

import (
	"encoding/json"
	"fmt"

	"spacebots.io/internal/sim/encoding"
	"spacebots.io/internal/sim/grid"
)

// GridV1 is the wire form of a Grid or a Replica. Tiles are flattened
// x-major (index = x*height + y).
type GridV1 struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seed   uint64 `json:"seed"`

	// RLE of tile type ids, see Palette.
	Types string `json:"types"`
	// RLE of 0/1 discovery flags.
	Discovered string `json:"discovered"`
	// Only visited tiles are listed.
	Visits []VisitV1 `json:"visits"`
}

type VisitV1 struct {
	Index       int   `json:"i"`
	LastVisited int64 `json:"t"`
}

func EncodeMap(m *grid.Map) GridV1 {
	tiles := m.Tiles()
	types := make([]uint8, len(tiles))
	disc := make([]uint8, len(tiles))
	visits := []VisitV1{}
	for i, t := range tiles {
		types[i] = uint8(t.Type)
		if t.Discovered {
			disc[i] = 1
		}
		if t.LastVisited != 0 {
			visits = append(visits, VisitV1{Index: i, LastVisited: t.LastVisited})
		}
	}
	return GridV1{
		Type:            TypeGrid,
		ProtocolVersion: Version,
		Width:           m.Width(),
		Height:          m.Height(),
		Seed:            m.Seed(),
		Types:           encoding.EncodeRLE(types),
		Discovered:      encoding.EncodeRLE(disc),
		Visits:          visits,
	}
}

// MaxTiles caps width*height accepted from a document.
const MaxTiles = 1 << 24

// DecodeMap rebuilds a map; nil clock means grid.DefaultClock.
func DecodeMap(g GridV1, clock grid.Clock) (*grid.Map, error) {
	if g.Width <= 0 || g.Height <= 0 || g.Width > MaxTiles/g.Height {
		return nil, fmt.Errorf("grid: %w: width=%d height=%d", grid.ErrInvalidDimensions, g.Width, g.Height)
	}
	n := g.Width * g.Height
	types, err := encoding.DecodeRLE(g.Types, n)
	if err != nil {
		return nil, fmt.Errorf("grid types: %w", err)
	}
	disc, err := encoding.DecodeRLE(g.Discovered, n)
	if err != nil {
		return nil, fmt.Errorf("grid discovered: %w", err)
	}
	tiles := make([]grid.Tile, n)
	for i := range tiles {
		tiles[i].Type = grid.TileType(types[i])
		tiles[i].Discovered = disc[i] != 0
	}
	for _, v := range g.Visits {
		if v.Index < 0 || v.Index >= n {
			return nil, fmt.Errorf("grid visit index %d out of range", v.Index)
		}
		tiles[v.Index].LastVisited = v.LastVisited
	}
	return grid.FromTiles(g.Width, g.Height, g.Seed, tiles, clock)
}

func MarshalGrid(m *grid.Map) ([]byte, error) {
	return json.Marshal(EncodeMap(m))
}

func UnmarshalGrid(b []byte) (*grid.Map, error) {
	var g GridV1
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, err
	}
	if g.Type != TypeGrid {
		return nil, fmt.Errorf("expected %s message, got %q", TypeGrid, g.Type)
	}
	return DecodeMap(g, nil)
}
