package agent

import (
	"testing"

	"spacebots.io/internal/sim/grid"
)

// sharedFrom builds a width x height grid of Empty tiles with the given overrides.
func sharedFrom(t *testing.T, width, height int, types map[Pos]grid.TileType) *grid.Shared {
	t.Helper()
	tiles := make([]grid.Tile, width*height)
	for p, tt := range types {
		tiles[p.X*height+p.Y].Type = tt
	}
	m, err := grid.FromTiles(width, height, 1, tiles, nil)
	if err != nil {
		t.Fatalf("FromTiles: %v", err)
	}
	return grid.NewShared(m)
}

func mustTile(t *testing.T, g *grid.Shared, x, y int) grid.Tile {
	t.Helper()
	tile, ok, err := g.TileAt(x, y)
	if err != nil || !ok {
		t.Fatalf("TileAt(%d,%d): ok=%v err=%v", x, y, ok, err)
	}
	return tile
}
