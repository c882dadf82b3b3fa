package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	persistlog "spacebots.io/internal/persistence/log"
	"spacebots.io/internal/persistence/snapshot"
	"spacebots.io/internal/protocol"
	"spacebots.io/internal/sim/grid"
)

func main() {
	var (
		snapPath = flag.String("snapshot", "", "path to .snap.zst")
		agentID  = flag.String("agent", "", "dump this agent's replica instead of the shared grid")
		asJSON   = flag.Bool("json", false, "dump the selected map as JSON")
		asASCII  = flag.Bool("ascii", false, "dump the selected map as an ASCII chart")
		verify   = flag.Bool("verify_steps", false, "check the run's step log against the snapshot")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	m, _, _, err := snap.Restore()
	if err != nil {
		fmt.Fprintln(os.Stderr, "restore snapshot:", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, snap, m)

	if *verify {
		// <data>/runs/<run>/snapshots/<step>.snap.zst
		runDir := filepath.Dir(filepath.Dir(*snapPath))
		checked, err := verifySteps(runDir, snap)
		if err != nil {
			fmt.Fprintln(os.Stderr, "verify steps:", err)
			os.Exit(1)
		}
		fmt.Printf("steps ok: checked=%d records\n", checked)
	}

	if !*asJSON && !*asASCII {
		return
	}
	doc := snap.Grid
	if id := strings.TrimSpace(*agentID); id != "" {
		a, ok := findAgent(snap, id)
		if !ok || a.Replica == nil {
			fmt.Fprintf(os.Stderr, "agent %s has no replica in snapshot\n", id)
			os.Exit(1)
		}
		doc = *a.Replica
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(doc)
	}
	if *asASCII {
		dm, err := protocol.DecodeMap(doc, nil)
		if err != nil {
			fmt.Fprintln(os.Stderr, "decode map:", err)
			os.Exit(1)
		}
		writeASCII(os.Stdout, dm, snap)
	}
}

func findAgent(snap snapshot.SnapshotV1, id string) (protocol.AgentV1, bool) {
	for _, a := range snap.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return protocol.AgentV1{}, false
}

func printSummary(w io.Writer, snap snapshot.SnapshotV1, m *grid.Map) {
	c := m.Counts()
	discovered := 0
	for _, t := range m.Tiles() {
		if t.Discovered {
			discovered++
		}
	}
	fmt.Fprintf(w, "snapshot v%d run=%s step=%d seed=%d grid=%dx%d agents=%d\n",
		snap.Header.Version, snap.Header.RunID, snap.Header.Step, m.Seed(), m.Width(), m.Height(), len(snap.Agents))
	fmt.Fprintf(w, "tiles: empty=%d rock=%d energy=%d station=%d discovered=%d digest=%s\n",
		c[grid.Empty], c[grid.Rock], c[grid.Energy], c[grid.ScientificStation], discovered, m.Digest())
	for _, a := range snap.Agents {
		fmt.Fprintf(w, "  %s: position=(%d,%d) resources=%d moves=%d blocked=%d merges=%d\n",
			a.ID, a.Pos[0], a.Pos[1], a.Resources, a.Moves, a.Blocked, a.Merges)
	}
}

var glyphs = [...]byte{grid.Empty: '.', grid.Rock: '#', grid.Energy: '*', grid.ScientificStation: 'S'}

// writeASCII prints one row per y. Undiscovered tiles are '?', agents are
// the first letter of their id.
func writeASCII(w io.Writer, m *grid.Map, snap snapshot.SnapshotV1) {
	at := map[[2]int]byte{}
	for _, a := range snap.Agents {
		if a.ID != "" {
			at[a.Pos] = a.ID[0]
		}
	}
	row := make([]byte, m.Width())
	for y := 0; y < m.Height(); y++ {
		for x := 0; x < m.Width(); x++ {
			t, _ := m.TileAt(x, y)
			switch {
			case at[[2]int{x, y}] != 0:
				row[x] = at[[2]int{x, y}]
			case !t.Discovered:
				row[x] = '?'
			default:
				row[x] = glyphs[t.Type]
			}
		}
		fmt.Fprintf(w, "%s\n", row)
	}
}

// verifySteps checks that every agent's step records are contiguous from 0
// and end where the snapshot says the agent is.
func verifySteps(runDir string, snap snapshot.SnapshotV1) (int, error) {
	files, err := persistlog.StepFiles(runDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no step files under %s", runDir)
	}
	last := map[string]persistlog.StepRecord{}
	checked := 0
	for _, path := range files {
		recs, err := persistlog.ReadSteps(path)
		if err != nil {
			return checked, err
		}
		for _, r := range recs {
			if r.RunID != snap.Header.RunID {
				return checked, fmt.Errorf("run id mismatch: snapshot=%s record=%s", snap.Header.RunID, r.RunID)
			}
			prev, seen := last[r.AgentID]
			want := 0
			if seen {
				want = prev.Step + 1
			}
			if r.Step != want {
				return checked, fmt.Errorf("agent %s: step %d, want %d", r.AgentID, r.Step, want)
			}
			last[r.AgentID] = r
			checked++
		}
	}
	for _, a := range snap.Agents {
		r, ok := last[a.ID]
		if !ok {
			if a.Moves+a.Blocked == 0 {
				continue
			}
			return checked, fmt.Errorf("agent %s: no step records", a.ID)
		}
		if r.To.X != a.Pos[0] || r.To.Y != a.Pos[1] || r.Resources != a.Resources {
			return checked, fmt.Errorf("agent %s: log ends at (%d,%d) res=%d, snapshot has %v res=%d",
				a.ID, r.To.X, r.To.Y, r.Resources, a.Pos, a.Resources)
		}
	}
	return checked, nil
}
