package protocol_test

import (
	"encoding/json"
	"testing"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/protocol"
)

func TestErrorMessageForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare string", `"upstream refused"`, "upstream refused"},
		{"object form", `{"message":"rate limited"}`, "rate limited"},
		{"empty", ``, ""},
		{"unrecognized shape", `{"code":42}`, `{"code":42}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &protocol.ServerMessage{Error: json.RawMessage(tc.raw)}
			if got := m.ErrorMessage(); got != tc.want {
				t.Errorf("ErrorMessage() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestErrorPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	m := &protocol.ServerMessage{
		Type:  protocol.TypeError,
		Error: protocol.ErrorPayload("agent not found"),
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back protocol.ServerMessage
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := back.ErrorMessage(); got != "agent not found" {
		t.Errorf("round-tripped error = %q", got)
	}
}

func TestClientMessageOmitsEmptyFields(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(protocol.ClientMessage{Type: protocol.TypeCommitAudio})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `{"type":"commit_audio"}` {
		t.Errorf("payload = %s, want bare type envelope", raw)
	}
}
