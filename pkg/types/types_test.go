package types

import (
	"encoding/json"
	"testing"
)

func TestConnectionStateTerminal(t *testing.T) {
	if StateConnected.Terminal() || StateAuthenticated.Terminal() {
		t.Error("Live states must not be terminal")
	}
	if !StateDisconnected.Terminal() || !StateInactive.Terminal() {
		t.Error("Disconnected and inactive must be terminal")
	}
}

func TestValidStatus(t *testing.T) {
	for _, status := range []PresenceStatus{StatusOnline, StatusAway, StatusBusy, StatusOffline} {
		if !ValidStatus(status) {
			t.Errorf("Expected %q to be valid", status)
		}
	}
	if ValidStatus("sleeping") || ValidStatus("") {
		t.Error("Unknown statuses must be rejected")
	}
}

func TestErrorFrame(t *testing.T) {
	frame := ErrorFrame("something went wrong")

	if frame.Type != FrameError || frame.Message != "something went wrong" {
		t.Errorf("Unexpected frame: %+v", frame)
	}
	if frame.Timestamp.IsZero() {
		t.Error("Error frame must carry a timestamp")
	}
}

func TestSystemFrame(t *testing.T) {
	frame := SystemFrame("user_joined", "alice joined the room")

	if frame.Type != FrameSystem || frame.Message != "alice joined the room" {
		t.Errorf("Unexpected frame: %+v", frame)
	}
	if frame.Data["event"] != "user_joined" {
		t.Errorf("Event not carried in data: %v", frame.Data)
	}
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(&Frame{Type: FramePing})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(decoded) != 1 {
		t.Errorf("Expected only the type field on the wire, got %v", decoded)
	}
}
