package protocol

import (
	"encoding/json"
	"fmt"

	"spacebots.io/internal/sim/agent"
	"spacebots.io/internal/sim/grid"
)

// AgentV1 is an agent's public state plus, optionally, its replica.
type AgentV1 struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	ID        string `json:"id"`
	Pos       [2]int `json:"pos"`
	Resources int    `json:"resources"`
	Moves     int    `json:"moves"`
	Blocked   int    `json:"blocked"`
	Merges    int    `json:"merges"`

	Replica *GridV1 `json:"replica,omitempty"`
}

// EncodeAgent serializes st; replica may be nil.
func EncodeAgent(st agent.Stats, replica *grid.Map) AgentV1 {
	out := AgentV1{
		Type:            TypeAgent,
		ProtocolVersion: Version,
		ID:              st.ID,
		Pos:             [2]int{st.Pos.X, st.Pos.Y},
		Resources:       st.Resources,
		Moves:           st.Moves,
		Blocked:         st.Blocked,
		Merges:          st.Merges,
	}
	if replica != nil {
		g := EncodeMap(replica)
		out.Replica = &g
	}
	return out
}

// DecodeAgent returns the stats and the replica (nil when absent).
func DecodeAgent(a AgentV1) (agent.Stats, *grid.Map, error) {
	st := agent.Stats{
		ID:        a.ID,
		Pos:       agent.Pos{X: a.Pos[0], Y: a.Pos[1]},
		Resources: a.Resources,
		Moves:     a.Moves,
		Blocked:   a.Blocked,
		Merges:    a.Merges,
	}
	if a.ID == "" {
		return st, nil, agent.ErrEmptyID
	}
	if a.Replica == nil {
		return st, nil, nil
	}
	m, err := DecodeMap(*a.Replica, nil)
	if err != nil {
		return st, nil, fmt.Errorf("agent %s replica: %w", a.ID, err)
	}
	if !m.InBounds(st.Pos.X, st.Pos.Y) {
		return st, nil, fmt.Errorf("%w: %s at %v", agent.ErrOutOfBounds, a.ID, a.Pos)
	}
	return st, m, nil
}

// MarshalAgent includes the replica, so it may only be called from the
// goroutine driving a or after the run has finished.
func MarshalAgent(a *agent.Agent) ([]byte, error) {
	return json.Marshal(EncodeAgent(a.Stats(), a.Replica().Map()))
}
