package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"spacebots.io/internal/persistence/indexdb"
	persistlog "spacebots.io/internal/persistence/log"
	"spacebots.io/internal/persistence/snapshot"
	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
	"spacebots.io/internal/sim/simulation"
	"spacebots.io/internal/sim/tuning"
)

type runConfig struct {
	DataDir   string
	DisableDB bool
	Tuning    tuning.Tuning
}

// runtime is everything a run needs, built before any agent moves so the
// HTTP surfaces can attach to the same grid and registry.
type runtime struct {
	cfg   runConfig
	log   *log.Logger
	runID string

	grid   *grid.Shared
	agents *agent.Registry
	sim    *simulation.Simulation

	steps *persistlog.StepLogger
	idx   *indexdb.SQLiteIndex
}

type runResult struct {
	RunID        string
	Status       string
	SnapshotPath string
	Summary      simulation.Summary
}

func newRuntime(cfg runConfig, logger *log.Logger) (*runtime, error) {
	tune := cfg.Tuning
	if err := tune.Validate(); err != nil {
		return nil, err
	}

	m, err := grid.New(grid.Config{Width: tune.Width, Height: tune.Height, Seed: tune.Seed, Logger: logger})
	if err != nil {
		return nil, err
	}
	g := grid.NewShared(m)
	reg := agent.NewRegistry()
	for _, sp := range tune.Agents {
		if _, err := reg.Spawn(sp.ID, sp.X, sp.Y, g); err != nil {
			return nil, fmt.Errorf("spawn %s: %w", sp.ID, err)
		}
	}

	rt := &runtime{cfg: cfg, log: logger, runID: uuid.NewString(), grid: g, agents: reg}
	runDir := rt.runDir()
	rt.steps = persistlog.NewStepLogger(runDir, rt.runID)
	recorders := []simulation.Recorder{rt.steps}

	if !cfg.DisableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "runs.sqlite"))
		if err != nil {
			_ = rt.steps.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		rt.idx = idx
		recorders = append(recorders, idx.ForRun(rt.runID))
	}

	// Agents choose directions from the map seed so a seeded run replays exactly.
	sim, err := simulation.New(simulation.Config{
		Grid:         g,
		Agents:       reg,
		Steps:        tune.Steps,
		StepInterval: tune.StepInterval(),
		Seed:         m.Seed(),
		Recorders:    recorders,
		Logger:       logger,
	})
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.sim = sim
	return rt, nil
}

func (rt *runtime) runDir() string {
	return filepath.Join(rt.cfg.DataDir, "runs", rt.runID)
}

func (rt *runtime) close() {
	if rt.steps != nil {
		if err := rt.steps.Close(); err != nil {
			rt.log.Printf("close step log: %v", err)
		}
	}
	if rt.idx != nil {
		if err := rt.idx.Close(); err != nil {
			rt.log.Printf("close index: %v", err)
		}
	}
}

// run drives the simulation to completion (or cancellation) and persists
// the outcome. A poisoned grid is returned as an error wrapping
// grid.ErrPoisoned; cancellation is not an error.
func (rt *runtime) run(ctx context.Context) (runResult, error) {
	tune := rt.cfg.Tuning
	res := runResult{RunID: rt.runID}

	rt.idx.RecordRun(indexdb.RunInfo{
		RunID:  rt.runID,
		Seed:   rt.grid.Seed(),
		Width:  tune.Width,
		Height: tune.Height,
		Steps:  tune.Steps,
		Agents: rt.agents.Len(),
		Tuning: tune,
	})
	rt.log.Printf("run %s: %dx%d seed=%d agents=%d steps=%d", rt.runID, tune.Width, tune.Height, rt.grid.Seed(), rt.agents.Len(), tune.Steps)

	runErr := rt.sim.Run(ctx)
	switch {
	case runErr == nil:
		res.Status = "ok"
	case errors.Is(runErr, grid.ErrPoisoned):
		res.Status = "poisoned"
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		res.Status = "canceled"
		runErr = nil
	default:
		res.Status = "failed"
	}

	for _, st := range rt.agents.Stats() {
		rt.idx.RecordAgentResult(rt.runID, st)
	}

	if res.Status != "poisoned" {
		res.Summary = rt.sim.Summary()
		snap, err := snapshot.Capture(rt.runID, rt.sim.StepsCompleted(), rt.grid, rt.agents)
		if err != nil {
			rt.log.Printf("capture snapshot: %v", err)
		} else {
			path := filepath.Join(rt.runDir(), "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Step))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				rt.log.Printf("snapshot write: %v", err)
			} else {
				res.SnapshotPath = path
				rt.idx.RecordSnapshot(path, snap)
			}
		}
	}

	rt.idx.FinishRun(rt.runID, res.Status)
	rt.log.Printf("run %s finished: %s", rt.runID, res.Status)
	return res, runErr
}
