package simulation

//go:generate go tool mockgen -destination=./mocks/recorder_mock.go -package=mocks . Recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
)

// Recorder receives one entry per agent step. Implementations are called
// concurrently from every agent goroutine.
type Recorder interface {
	RecordStep(entry StepEntry) error
}

type StepEntry struct {
	Step      int       `json:"step"`
	AgentID   string    `json:"agent_id"`
	Dir       string    `json:"dir"`
	From      agent.Pos `json:"from"`
	To        agent.Pos `json:"to"`
	Moved     bool      `json:"moved"`
	Collected bool      `json:"collected,omitempty"`
	Merged    bool      `json:"merged,omitempty"`
	Replaced  int       `json:"replaced,omitempty"`
	Resources int       `json:"resources"`
}

type Config struct {
	Grid   *grid.Shared
	Agents *agent.Registry

	Steps        int
	StepInterval time.Duration
	// Seed drives direction choice; agent i uses Seed+i. 0 picks fresh randomness.
	Seed uint64

	Recorders []Recorder
	Logger    *log.Logger
}

type Simulation struct {
	cfg Config
	log *log.Logger

	// completed is the highest step count any agent has finished.
	completed atomic.Int64
}

func New(cfg Config) (*Simulation, error) {
	if cfg.Grid == nil {
		return nil, errors.New("simulation: nil grid")
	}
	if cfg.Agents == nil || cfg.Agents.Len() == 0 {
		return nil, errors.New("simulation: no agents")
	}
	if cfg.Steps < 0 {
		return nil, fmt.Errorf("simulation: negative steps %d", cfg.Steps)
	}
	if cfg.StepInterval < 0 {
		cfg.StepInterval = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Simulation{cfg: cfg, log: logger}, nil
}

func (s *Simulation) Grid() *grid.Shared       { return s.cfg.Grid }
func (s *Simulation) Agents() *agent.Registry { return s.cfg.Agents }

// StepsCompleted is the number of steps the furthest agent has finished.
// It equals cfg.Steps after a clean run and is lower after cancellation.
func (s *Simulation) StepsCompleted() int { return int(s.completed.Load()) }

func (s *Simulation) markCompleted(n int) {
	for {
		cur := s.completed.Load()
		if int64(n) <= cur || s.completed.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Run drives every agent on its own goroutine for cfg.Steps steps. It
// returns early on context cancellation or a poisoned grid.
func (s *Simulation) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for i, a := range s.cfg.Agents.All() {
		rng := s.randFor(i)
		eg.Go(func() error {
			return s.runAgent(ctx, a, rng)
		})
	}
	err := eg.Wait()
	if errors.Is(err, grid.ErrPoisoned) {
		s.log.Printf("grid lock poisoned, simulation aborted")
	}
	return err
}

func (s *Simulation) randFor(i int) *rand.Rand {
	if s.cfg.Seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return grid.NewRand(s.cfg.Seed + uint64(i))
}

func (s *Simulation) runAgent(ctx context.Context, a *agent.Agent, rng *rand.Rand) error {
	var timer *time.Timer
	if s.cfg.StepInterval > 0 {
		timer = time.NewTimer(s.cfg.StepInterval)
		defer timer.Stop()
	}

	for step := 0; step < s.cfg.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		dir := agent.Directions[rng.IntN(len(agent.Directions))]
		out, err := a.Move(dir)
		if err != nil {
			return fmt.Errorf("agent %s step %d: %w", a.ID(), step, err)
		}
		s.record(step, out, a.Resources())
		s.markCompleted(step + 1)

		if timer != nil {
			timer.Reset(s.cfg.StepInterval)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

func (s *Simulation) record(step int, out agent.Outcome, resources int) {
	if len(s.cfg.Recorders) == 0 {
		return
	}
	entry := StepEntry{
		Step:      step,
		AgentID:   out.AgentID,
		Dir:       out.Dir.String(),
		From:      out.From,
		To:        out.To,
		Moved:     out.Moved,
		Collected: out.Collected,
		Merged:    out.Merged,
		Replaced:  out.Merge.Replaced,
		Resources: resources,
	}
	for _, r := range s.cfg.Recorders {
		if err := r.RecordStep(entry); err != nil {
			s.log.Printf("record step: agent=%s step=%d: %v", entry.AgentID, step, err)
		}
	}
}

// Summary is the final per-agent result of a run.
type Summary struct {
	Seed      uint64        `json:"seed"`
	Width     int           `json:"width"`
	Height    int           `json:"height"`
	Agents    []agent.Stats `json:"agents"`
	Resources int           `json:"resources"`
}

func (s *Simulation) Summary() Summary {
	sum := Summary{
		Seed:   s.cfg.Grid.Seed(),
		Width:  s.cfg.Grid.Width(),
		Height: s.cfg.Grid.Height(),
		Agents: s.cfg.Agents.Stats(),
	}
	for _, st := range sum.Agents {
		sum.Resources += st.Resources
	}
	return sum
}
