package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"spacebots.io/internal/protocol"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Step    int    `json:"step"`
	// Unix milliseconds at capture.
	TakenAt int64 `json:"taken_at"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Grid   protocol.GridV1    `json:"grid"`
	Agents []protocol.AgentV1 `json:"agents"`
}

// Capture snapshots the shared grid and every agent. Replicas are included,
// so call it only once the agents are idle.
func Capture(runID string, step int, g *grid.Shared, reg *agent.Registry) (SnapshotV1, error) {
	m, err := g.Snapshot()
	if err != nil {
		return SnapshotV1{}, err
	}
	snap := SnapshotV1{
		Header: Header{Version: Version, RunID: runID, Step: step, TakenAt: time.Now().UnixMilli()},
		Grid:   protocol.EncodeMap(m),
	}
	for _, a := range reg.All() {
		snap.Agents = append(snap.Agents, protocol.EncodeAgent(a.Stats(), a.Replica().Map()))
	}
	return snap, nil
}

// Restore decodes the grid and each agent's stats and replica.
func (s SnapshotV1) Restore() (*grid.Map, []agent.Stats, []*grid.Map, error) {
	m, err := protocol.DecodeMap(s.Grid, nil)
	if err != nil {
		return nil, nil, nil, err
	}
	stats := make([]agent.Stats, 0, len(s.Agents))
	replicas := make([]*grid.Map, 0, len(s.Agents))
	for _, a := range s.Agents {
		st, r, err := protocol.DecodeAgent(a)
		if err != nil {
			return nil, nil, nil, err
		}
		if !m.InBounds(st.Pos.X, st.Pos.Y) {
			return nil, nil, nil, fmt.Errorf("%w: %s at (%d,%d)", agent.ErrOutOfBounds, st.ID, st.Pos.X, st.Pos.Y)
		}
		stats = append(stats, st)
		replicas = append(replicas, r)
	}
	return m, stats, replicas, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is repeated inside the gob payload.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}
