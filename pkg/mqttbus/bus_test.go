package mqttbus

import (
	"encoding/json"
	"testing"
)

func TestInboundMessageUnmarshal(t *testing.T) {
	raw := `{"device":"speaker","action":"volume","value":"50","request_id":"abc-123"}`
	var msg InboundMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Device != "speaker" || msg.Action != "volume" || msg.Value != "50" || msg.RequestID != "abc-123" {
		t.Errorf("unexpected decode: %+v", msg)
	}
}

func TestStatusPayloadMarshal(t *testing.T) {
	p := StatusPayload{Device: "ai", Name: "Dawn", State: "listening"}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"device":"ai","name":"Dawn","state":"listening"}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestActionTopicStripsLeadingSlash(t *testing.T) {
	b := &Bus{}
	if got := b.ActionTopic("/dawn/device/lamp/power"); got != "dawn/device/lamp/power" {
		t.Errorf("expected leading slash stripped, got %q", got)
	}
	if got := b.ActionTopic("dawn/device/lamp/power"); got != "dawn/device/lamp/power" {
		t.Errorf("expected unchanged topic, got %q", got)
	}
}

func TestOwnTopic(t *testing.T) {
	b := &Bus{topicPrefix: "dawn"}
	if got := b.OwnTopic(); got != "dawn/cmd" {
		t.Errorf("expected dawn/cmd, got %q", got)
	}
}
