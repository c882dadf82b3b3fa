package grid

import (
	"bytes"
	"errors"
	"log"
	"math"
	"strings"
	"testing"
)

func TestNew_SameSeedSameTiles(t *testing.T) {
	a, err := New(Config{Width: 32, Height: 17, Seed: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New(Config{Width: 32, Height: 17, Seed: 42})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest mismatch: %s vs %s", a.Digest(), b.Digest())
	}
	c, err := New(Config{Width: 32, Height: 17, Seed: 43})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Digest() == c.Digest() {
		t.Fatalf("different seeds produced identical grids")
	}
}

func TestNew_MatchesInjectedGenerator(t *testing.T) {
	m, err := New(Config{Width: 9, Height: 4, Seed: 7})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	g, err := Generate(9, 4, NewRand(7))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if m.Digest() != g.Digest() {
		t.Fatalf("New and Generate disagree for the same seed")
	}

	// x outer, y inner: the first Height draws land on column x=0.
	rng := NewRand(7)
	for y := 0; y < 4; y++ {
		want := tileForRoll(rng.IntN(100))
		got, _ := m.TileAt(0, y)
		if got.Type != want {
			t.Fatalf("tile (0,%d): got %s want %s", y, got.Type, want)
		}
	}
}

func TestNew_Distribution(t *testing.T) {
	m, err := New(Config{Width: 100, Height: 100, Seed: 1337})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	counts := m.Counts()
	want := [4]float64{0.40, 0.20, 0.35, 0.05}
	total := float64(m.Width() * m.Height())
	for tt, c := range counts {
		got := float64(c) / total
		if math.Abs(got-want[tt]) > 0.03 {
			t.Fatalf("%s share %.3f, want %.2f±0.03", TileType(tt), got, want[tt])
		}
	}
}

func TestNew_TraversableMatchesType(t *testing.T) {
	m, err := New(Config{Width: 20, Height: 20, Seed: 5})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i, tile := range m.Tiles() {
		if tile.Traversable != (tile.Type != Rock) {
			t.Fatalf("tile %d: type=%s traversable=%v", i, tile.Type, tile.Traversable)
		}
		if tile.Discovered || tile.LastVisited != 0 {
			t.Fatalf("tile %d: fresh tile already visited", i)
		}
	}
}

func TestNew_InvalidDimensions(t *testing.T) {
	for _, dims := range [][2]int{{0, 10}, {10, 0}, {-1, 5}, {5, -3}} {
		_, err := New(Config{Width: dims[0], Height: dims[1], Seed: 1})
		if !errors.Is(err, ErrInvalidDimensions) {
			t.Fatalf("New(%d,%d): got %v, want ErrInvalidDimensions", dims[0], dims[1], err)
		}
	}
}

func TestNew_ZeroSeedIsReported(t *testing.T) {
	var buf bytes.Buffer
	m, err := New(Config{Width: 4, Height: 4, Logger: log.New(&buf, "", 0)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if m.Seed() == 0 {
		t.Fatalf("expected a substituted seed")
	}
	if !strings.Contains(buf.String(), "no seed provided") {
		t.Fatalf("expected substitution to be logged, got %q", buf.String())
	}
}
