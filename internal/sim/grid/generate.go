package grid

import (
	crand "crypto/rand"
	"encoding/binary"
	"io"
	"log"
	"math/rand/v2"
)

type Config struct {
	Width  int
	Height int
	// Seed 0 means "pick one": reproducibility is lost for that run.
	Seed uint64

	Logger *log.Logger
	Clock  Clock
}

// New generates a Map from cfg.
func New(cfg Config) (*Map, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = randomSeed()
		logger.Printf("no seed provided, the map will be random (seed=%d)", seed)
	}
	m, err := newMap(cfg.Width, cfg.Height, seed, cfg.Clock)
	if err != nil {
		return nil, err
	}
	m.fill(NewRand(seed))
	return m, nil
}

// Generate fills a fresh width x height map from rng. The seed recorded on
// the map is 0 since rng's origin is unknown here.
func Generate(width, height int, rng *rand.Rand) (*Map, error) {
	m, err := newMap(width, height, 0, nil)
	if err != nil {
		return nil, err
	}
	m.fill(rng)
	return m, nil
}

// NewRand returns the generator New uses for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// fill draws one value in [0,100) per tile, x outer and y inner.
// Changing the order changes every generated world.
func (m *Map) fill(rng *rand.Rand) {
	for x := 0; x < m.width; x++ {
		for y := 0; y < m.height; y++ {
			m.tiles[m.index(x, y)] = newTile(tileForRoll(rng.IntN(100)))
		}
	}
}

// Empty 40%, Rock 20%, Energy 35%, ScientificStation 5%.
func tileForRoll(roll int) TileType {
	switch {
	case roll < 40:
		return Empty
	case roll < 60:
		return Rock
	case roll < 95:
		return Energy
	default:
		return ScientificStation
	}
}

func randomSeed() uint64 {
	var b [8]byte
	for {
		if _, err := crand.Read(b[:]); err != nil {
			return rand.Uint64() | 1
		}
		if s := binary.LittleEndian.Uint64(b[:]); s != 0 {
			return s
		}
	}
}
