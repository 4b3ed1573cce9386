package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateEventShapes(t *testing.T) {
	sim := newCallSim()

	for i := 0; i < 1000; i++ {
		env := generateEvent(sim)

		kind, ok := env["type"].(int)
		if !ok {
			t.Fatalf("type field missing or wrong type: %v", env["type"])
		}
		switch kind {
		case 1, 2, 8, 16, 32, 64:
		default:
			t.Fatalf("Unexpected event kind %d", kind)
		}

		if env["timestamp"] == nil {
			t.Error("timestamp missing")
		}
		if env["session_id"] != sim.session {
			t.Errorf("Expected session %d, got %v", sim.session, env["session_id"])
		}
		if kind != 1 && env["handle_id"] != sim.handle {
			t.Errorf("Expected handle %d on kind %d, got %v", sim.handle, kind, env["handle_id"])
		}

		event, ok := env["event"].(map[string]any)
		if !ok {
			t.Fatalf("event body missing on kind %d", kind)
		}

		switch kind {
		case 2:
			if event["plugin"] != "janus.plugin.sip" {
				t.Errorf("Expected sip plugin on handle event, got %v", event["plugin"])
			}
		case 8:
			jsep, ok := event["jsep"].(map[string]any)
			if !ok {
				t.Fatal("jsep body missing")
			}
			if jsep["sdp"] == nil || jsep["type"] == nil {
				t.Error("jsep missing sdp or type")
			}
		case 64:
			data, ok := event["data"].(map[string]any)
			if !ok {
				t.Fatal("plugin data missing")
			}
			if data["call_id"] != sim.callID {
				t.Errorf("Expected call id %s, got %v", sim.callID, data["call_id"])
			}
			raw, _ := data["sip"].(string)
			if !strings.Contains(raw, "Call-ID: "+sim.callID) {
				t.Errorf("Raw SIP missing Call-ID header: %q", raw)
			}
		}
	}
}

func TestGenerateMediaEventIsClassifiable(t *testing.T) {
	// Every media event must carry either a receiving flag or a base field,
	// otherwise the collector drops it as unrecognized.
	for i := 0; i < 1000; i++ {
		event := generateMediaEvent()
		_, hasReceiving := event["receiving"]
		_, hasBase := event["base"]
		if !hasReceiving && !hasBase {
			t.Fatalf("Media event has neither receiving nor base: %v", event)
		}
	}
}

func TestGenerateEventEncodes(t *testing.T) {
	sim := newCallSim()
	batch := make([]map[string]any, 0, 20)
	for i := 0; i < 20; i++ {
		batch = append(batch, generateEvent(sim))
	}

	data, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("Failed to encode batch: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode batch: %v", err)
	}
	if len(decoded) != 20 {
		t.Errorf("Expected 20 events, got %d", len(decoded))
	}
}
