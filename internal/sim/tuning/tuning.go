package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

type Tuning struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Seed   uint64 `yaml:"seed"` // 0 picks a random seed

	Steps              int `yaml:"steps"`
	StepIntervalMs     int `yaml:"step_interval_ms"`
	ObserverIntervalMs int `yaml:"observer_interval_ms"`

	Agents []AgentSpawn `yaml:"agents"`
}

type AgentSpawn struct {
	ID string `yaml:"id"`
	X  int    `yaml:"x"`
	Y  int    `yaml:"y"`
}

// Defaults is the two-rover run the server falls back to without a file.
func Defaults() Tuning {
	return Tuning{
		Width:              10,
		Height:             10,
		Steps:              10,
		StepIntervalMs:     100,
		ObserverIntervalMs: 200,
		Agents: []AgentSpawn{
			{ID: "R1", X: 0, Y: 0},
			{ID: "R2", X: 0, Y: 0},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	// An explicit agents list replaces the default roster instead of merging into it.
	t.Agents = nil
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if len(t.Agents) == 0 {
		t.Agents = Defaults().Agents
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalid, t.Width, t.Height)
	}
	if t.Steps < 0 {
		return fmt.Errorf("%w: steps=%d", ErrInvalid, t.Steps)
	}
	if t.StepIntervalMs < 0 || t.ObserverIntervalMs < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalid)
	}
	if len(t.Agents) == 0 {
		return fmt.Errorf("%w: no agents", ErrInvalid)
	}
	seen := map[string]bool{}
	for _, a := range t.Agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return fmt.Errorf("%w: agent with empty id", ErrInvalid)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate agent %s", ErrInvalid, id)
		}
		seen[id] = true
		if a.X < 0 || a.Y < 0 || a.X >= t.Width || a.Y >= t.Height {
			return fmt.Errorf("%w: agent %s at (%d,%d) outside %dx%d", ErrInvalid, id, a.X, a.Y, t.Width, t.Height)
		}
	}
	return nil
}

func (t Tuning) StepInterval() time.Duration {
	return time.Duration(t.StepIntervalMs) * time.Millisecond
}

func (t Tuning) ObserverInterval() time.Duration {
	return time.Duration(t.ObserverIntervalMs) * time.Millisecond
}
