package protocol_test

import (
	"encoding/json"
	"testing"

	"driftmoor.ai/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	s, err := protocol.LoadSchemas()
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}

	ok := func(name, raw string) {
		t.Helper()
		if err := s.Validate(name, []byte(raw)); err != nil {
			t.Fatalf("%s: expected valid, got %v", name, err)
		}
	}
	bad := func(name, raw string) {
		t.Helper()
		if err := s.Validate(name, []byte(raw)); err == nil {
			t.Fatalf("%s: expected invalid: %s", name, raw)
		}
	}

	ok(protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","name":"ayla","capabilities":{"max_queue":8}}`)
	bad(protocol.SchemaHello, `{"type":"HELLO","protocol_version":"1.0","name":""}`)

	ok(protocol.SchemaIntent, `{"type":"INTENT","protocol_version":"1.0","ref":"r1","intent":"move_to","dest":{"x":4,"y":2}}`)
	ok(protocol.SchemaIntent, `{"type":"INTENT","protocol_version":"1.0","intent":"quest_action","quest_id":"q_miner","stage":0}`)
	bad(protocol.SchemaIntent, `{"type":"INTENT","protocol_version":"1.0","intent":"move_to"}`)
	bad(protocol.SchemaIntent, `{"type":"INTENT","protocol_version":"1.0","intent":"teleport"}`)
	bad(protocol.SchemaIntent, `{"type":"INTENT","protocol_version":"1.0","intent":"shop_buy","shop_id":"general","item":"bread"}`)

	ok(protocol.SchemaDecision, `{"request_id":"01J","decisions":[{"agent_id":"A1","kind":"gather","node_id":"oreVein1"},{"agent_id":"A2","kind":"idle"}]}`)
	bad(protocol.SchemaDecision, `{"decisions":[{"agent_id":"A1","kind":"attack"}]}`)
	bad(protocol.SchemaDecision, `{"decisions":[{"agent_id":"A1","kind":"dance"}]}`)

	ok(protocol.SchemaReflection, `{"summary":"Mined iron near the quarry; goblins are aggressive."}`)
	bad(protocol.SchemaReflection, `{"summary":""}`)
}

func TestSchemas_EventBatchMatchesStructs(t *testing.T) {
	s, err := protocol.LoadSchemas()
	if err != nil {
		t.Fatalf("load schemas: %v", err)
	}
	hp := 7
	batch := protocol.EventBatchMsg{
		Type:            protocol.TypeEventBatch,
		ProtocolVersion: protocol.Version,
		Tick:            12,
		Events: []protocol.Event{
			{Tick: 12, Type: protocol.EventEntityDiff, Area: "town", EntityID: "P1", Diff: &protocol.EntityDelta{ID: "P1", HP: &hp}},
			{Tick: 12, Type: protocol.EventIntentRejected, To: "P1", Code: protocol.ErrBusy, Ref: "r9"},
			{Tick: 12, Type: protocol.EventNodeUpdate, Node: &protocol.NodeState{ID: "oreVein1", Remaining: 4, Capacity: 5}},
		},
	}
	b, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.Validate(protocol.SchemaEventBatch, b); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
