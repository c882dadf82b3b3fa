package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"spacebots.io/internal/persistence/snapshot"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/simulation"
	"spacebots.io/internal/sim/tuning"
)

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex_RecordsRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	idx.RecordRun(RunInfo{RunID: "run-1", Seed: 42, Width: 10, Height: 8, Steps: 3, Agents: 2, Tuning: tuning.Defaults()})
	rec := idx.ForRun("run-1")
	for step := 0; step < 3; step++ {
		for _, id := range []string{"R1", "R2"} {
			e := simulation.StepEntry{
				Step: step, AgentID: id, Dir: "RIGHT",
				From: agent.Pos{X: step, Y: 0}, To: agent.Pos{X: step + 1, Y: 0},
				Moved: true, Collected: step == 1, Resources: 1,
			}
			if err := rec.RecordStep(e); err != nil {
				t.Fatalf("RecordStep: %v", err)
			}
		}
	}
	idx.RecordAgentResult("run-1", agent.Stats{ID: "R1", Pos: agent.Pos{X: 3, Y: 0}, Resources: 1, Moves: 3})
	idx.FinishRun("run-1", "ok")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openDB(t, path)

	var (
		status   string
		seed     string
		finished sql.NullString
	)
	if err := db.QueryRow(`SELECT status,seed,finished_at FROM runs WHERE run_id='run-1'`).Scan(&status, &seed, &finished); err != nil {
		t.Fatalf("Scan run: %v", err)
	}
	if status != "ok" || seed != "42" || !finished.Valid {
		t.Fatalf("run row: status=%q seed=%s finished=%v", status, seed, finished)
	}

	var steps, collected int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(collected) FROM steps WHERE run_id='run-1'`).Scan(&steps, &collected); err != nil {
		t.Fatalf("Scan steps: %v", err)
	}
	if steps != 6 || collected != 2 {
		t.Fatalf("steps=%d collected=%d", steps, collected)
	}

	var x, moves int
	if err := db.QueryRow(`SELECT x,moves FROM agent_results WHERE run_id='run-1' AND agent_id='R1'`).Scan(&x, &moves); err != nil {
		t.Fatalf("Scan result: %v", err)
	}
	if x != 3 || moves != 3 {
		t.Fatalf("result: x=%d moves=%d", x, moves)
	}
}

func TestSQLiteIndex_RecordSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, RunID: "run-2", Step: 7}}
	idx.RecordSnapshot("/abs/run-2/7.snap.zst", snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openDB(t, path)
	var (
		runID string
		step  int
	)
	if err := db.QueryRow(`SELECT run_id,step FROM snapshots WHERE path='/abs/run-2/7.snap.zst'`).Scan(&runID, &step); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if runID != "run-2" || step != 7 {
		t.Fatalf("row: run=%q step=%d", runID, step)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqStep}

	_ = s.ForRun("r").RecordStep(simulation.StepEntry{})
	s.RecordRun(RunInfo{RunID: "r"})
	s.RecordAgentResult("r", agent.Stats{ID: "R1"})
	s.RecordSnapshot("/tmp/x.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropStepTotal != 1 || st.DropRunTotal != 1 || st.DropResultTotal != 1 || st.DropSnapshotTotal != 1 {
		t.Fatalf("drop stats: %+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	idx.FinishRun("late", "ok")
	if err := idx.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSQLiteIndex_SeedKeepsFullRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	const seed uint64 = 9223372036854788153 // above math.MaxInt64
	idx.RecordRun(RunInfo{RunID: "run-big", Seed: seed, Width: 2, Height: 2, Agents: 1})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db := openDB(t, path)
	var raw string
	if err := db.QueryRow(`SELECT seed FROM runs WHERE run_id='run-big'`).Scan(&raw); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	got, err := ParseSeed(raw)
	if err != nil {
		t.Fatalf("ParseSeed(%q): %v", raw, err)
	}
	if got != seed {
		t.Fatalf("seed=%d want %d (raw %q)", got, seed, raw)
	}
}
