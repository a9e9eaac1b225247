package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/sim/flow"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// validateValue round-trips v through JSON and checks it against s.
func validateValue(t *testing.T, s *jsonschema.Schema, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	validateRaw(t, s, string(b))
}

func validateRaw(t *testing.T, s *jsonschema.Schema, raw string) {
	t.Helper()
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(doc); err != nil {
		t.Fatalf("validate: %v\n%s", err, raw)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validateRaw(t, compile(t, "hello.schema.json"), `{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "client_name":"viewer",
	  "frames":true
	}`)

	validateRaw(t, compile(t, "cmd.schema.json"), `{
	  "type":"CMD",
	  "protocol_version":"1.0",
	  "ref":"c1",
	  "cmd":"MOVE",
	  "board":"MAIN",
	  "x":1,"y":1,"to_x":2,"to_y":1
	}`)

	var doc any
	_ = json.Unmarshal([]byte(`{"type":"CMD","protocol_version":"1.0","cmd":"MOVE","x":1,"y":1}`), &doc)
	if err := compile(t, "cmd.schema.json").Validate(doc); err == nil {
		t.Fatalf("MOVE without a target should fail validation")
	}
}

func TestSchemas_ValidateEncodedMessages(t *testing.T) {
	src := flow.Pos{X: 1, Y: 0}
	g, err := flow.NewGrid(flow.GridConfig{Size: 3, LockedFromRow: 2, Source: &src})
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	res, err := g.Place(flow.Pos{X: 1, Y: 1}, flow.KindPipeElbow, 1)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	depot, _ := flow.NewGrid(flow.GridConfig{Size: 2})

	validateValue(t, compile(t, "welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "c1",
		RunID:           "r1",
		Params:          protocol.SessionParams{GridSize: 3, DepotSize: 2, TickMs: 33, ResourceTickMs: 1000, DropletSpeed: 2, SpawnIntervalMs: 5000},
		Catalogs:        protocol.CatalogDigests{ItemsDigest: "deadbeef"},
	})

	validateValue(t, compile(t, "board.schema.json"), protocol.BoardMsg{
		Type:            protocol.TypeBoard,
		ProtocolVersion: protocol.Version,
		Main:            res.Grid.Rows(),
		Depot:           depot.Rows(),
		Draft:           []protocol.DraftOffer{{Slot: 0, ID: "o1", Kind: "HOUSE", Level: 1, Cost: 10}},
		Costs:           map[string]int64{"HOUSE": 10},
	})

	validateValue(t, compile(t, "frame.schema.json"), protocol.FrameMsg{
		Type:            protocol.TypeFrame,
		ProtocolVersion: protocol.Version,
		Tick:            7,
		Money:           30,
		Water:           99,
		Capacity:        100,
		Droplets: []flow.Droplet{
			{ID: 1, Pos: src, Progress: 52, From: flow.North, To: flow.South},
			{ID: 2, Pos: src, Progress: 100, From: flow.NoDir, To: flow.NoDir},
		},
	})

	validateValue(t, compile(t, "ack.schema.json"), protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          "c1",
		Code:            protocol.ErrNoFunds,
		ServerTick:      3,
	})
}

func TestDecodeBase(t *testing.T) {
	m, err := protocol.DecodeBase([]byte(`{"type":"CMD","protocol_version":"1.0","cmd":"PAUSE"}`))
	if err != nil || m.Type != protocol.TypeCmd || m.ProtocolVersion != protocol.Version {
		t.Fatalf("DecodeBase = %+v, %v", m, err)
	}
}
