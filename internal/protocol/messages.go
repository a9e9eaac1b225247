package protocol

import "aquaflow.game/internal/sim/flow"

// HELLO (client -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	ClientName        string   `json:"client_name"`
	// Frames asks for the droplet stream; a client that only wants board updates
	// leaves it false.
	Frames bool `json:"frames,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SelectedVersion string         `json:"selected_version,omitempty"`
	SessionID       string         `json:"session_id"`
	RunID           string         `json:"run_id"`
	Params          SessionParams  `json:"params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type SessionParams struct {
	GridSize        int   `json:"grid_size"`
	DepotSize       int   `json:"depot_size"`
	TickMs          int   `json:"tick_ms"`
	ResourceTickMs  int   `json:"resource_tick_ms"`
	DropletSpeed    int   `json:"droplet_speed"`
	SpawnIntervalMs int   `json:"spawn_interval_ms"`
	Seed            int64 `json:"seed"`
}

type CatalogDigests struct {
	ItemsDigest  string `json:"items_digest"`
	TuningDigest string `json:"tuning_digest,omitempty"`
}

// BOARD (server -> client): full structural state, sent on connect and after every
// accepted mutation.
type BoardMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Main            [][]flow.Tile    `json:"main"`
	Depot           [][]flow.Tile    `json:"depot"`
	Draft           []DraftOffer     `json:"draft"`
	Costs           map[string]int64 `json:"costs"`
}

type DraftOffer struct {
	Slot  int    `json:"slot"`
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Level int    `json:"level"`
	Cost  int64  `json:"cost"`
}

// FRAME (server -> client): per-tick droplet and resource state.
type FrameMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Tick            uint64         `json:"tick"`
	Paused          bool           `json:"paused"`
	Money           int64          `json:"money"`
	Water           float64        `json:"water"`
	Capacity        float64        `json:"capacity"`
	Income          int64          `json:"income"`
	Droplets        []flow.Droplet `json:"droplets"`
}

// CMD (client -> server)
type CmdMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref,omitempty"`
	Cmd             string `json:"cmd"`
	Board           string `json:"board,omitempty"` // MAIN (default) or DEPOT
	X               int    `json:"x"`
	Y               int    `json:"y"`
	ToX             *int   `json:"to_x,omitempty"`
	ToY             *int   `json:"to_y,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Slot            *int   `json:"slot,omitempty"`
}

// Command names carried in CmdMsg.Cmd.
const (
	CmdPlace        = "PLACE"
	CmdMove         = "MOVE"
	CmdRotate       = "ROTATE"
	CmdDelete       = "DELETE"
	CmdUnlock       = "UNLOCK"
	CmdUpgrade      = "UPGRADE"
	CmdRefreshDraft = "REFRESH_DRAFT"
	CmdPause        = "PAUSE"
	CmdResume       = "RESUME"
	CmdReset        = "RESET"
)

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Cost            int64  `json:"cost,omitempty"`
	Refund          int64  `json:"refund,omitempty"`
	Merged          bool   `json:"merged,omitempty"`
	ServerTick      uint64 `json:"server_tick"`
}
