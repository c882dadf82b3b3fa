package main

import (
	"database/sql"
	"path/filepath"
	"testing"

	"spacebots.io/internal/persistence/indexdb"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/simulation"
)

func TestQueries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	idx.RecordRun(indexdb.RunInfo{RunID: "run-a", Seed: 1<<63 + 7, Width: 4, Height: 4, Steps: 2, Agents: 2})
	rec := idx.ForRun("run-a")
	for step := 0; step < 2; step++ {
		for _, id := range []string{"R1", "R2"} {
			_ = rec.RecordStep(simulation.StepEntry{Step: step, AgentID: id, Dir: "DOWN", To: agent.Pos{Y: step + 1}, Moved: true})
		}
	}
	idx.RecordAgentResult("run-a", agent.Stats{ID: "R2", Pos: agent.Pos{Y: 2}, Moves: 2})
	idx.RecordAgentResult("run-a", agent.Stats{ID: "R1", Pos: agent.Pos{Y: 2}, Moves: 2})
	idx.FinishRun("run-a", "ok")
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	id, err := latestRun(db)
	if err != nil || id != "run-a" {
		t.Fatalf("latestRun: %q %v", id, err)
	}
	runs, err := queryRuns(db, 10)
	if err != nil || len(runs) != 1 || runs[0].(runRow).Status != "ok" {
		t.Fatalf("runs: %+v %v", runs, err)
	}
	if got := runs[0].(runRow).Seed; got != 1<<63+7 {
		t.Fatalf("seed=%d, want it to round trip as uint64", got)
	}
	results, err := queryResults(db, "run-a")
	if err != nil || len(results) != 2 || results[0].(resultRow).AgentID != "R1" {
		t.Fatalf("results: %+v %v", results, err)
	}
	steps, err := querySteps(db, "run-a", "R2", 10)
	if err != nil || len(steps) != 2 {
		t.Fatalf("steps: %+v %v", steps, err)
	}
	if s := steps[1].(stepRow); s.Step != 1 || s.ToY != 2 || !s.Moved {
		t.Fatalf("step row: %+v", s)
	}
}
