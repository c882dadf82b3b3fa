package observerproto

import "spacebots.io/internal/protocol"

// Version is the observer protocol version (separate from the document protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeState     = "STATE"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the frame rate.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	IntervalMs      int    `json:"interval_ms,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string         `json:"protocol_version"`
	RunID           string         `json:"run_id"`
	WorldParams     WorldParams    `json:"world_params"`
	Palette         []PaletteEntry `json:"palette"`
	AgentIDs        []string       `json:"agent_ids"`
}

type WorldParams struct {
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Seed           uint64 `json:"seed"`
	Steps          int    `json:"steps"`
	StepIntervalMs int    `json:"step_interval_ms"`
}

// PaletteEntry maps a tile type id (its index in the palette) to a name
// and an RGB color in [0,1].
type PaletteEntry struct {
	Name  string     `json:"name"`
	Color [3]float32 `json:"color"`
}

// Server -> Client. Sent every interval. Agents carry no replica.
type StateMsg struct {
	Type            string             `json:"type"`
	ProtocolVersion string             `json:"protocol_version"`
	Seq             uint64             `json:"seq"`
	Grid            protocol.GridV1    `json:"grid"`
	Agents          []protocol.AgentV1 `json:"agents"`
}
