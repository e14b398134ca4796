package relay_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/agent"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/history"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/relay"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream"
	umock "github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream/mock"
	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/protocol"
)

const testClientID = "test-client"

// startRelay spins up a relay over httptest and returns a connected
// websocket client for testClientID.
func startRelay(t *testing.T, dialer *umock.Dialer, opts ...relay.Option) *websocket.Conn {
	t.Helper()

	reg, err := agent.NewRegistry(agent.Builtin(), "")
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}

	mux := http.NewServeMux()
	relay.New(dialer, reg, opts...).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, wsURL(srv.URL)+"/ws/"+testClientID, nil)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func writeMsg(t *testing.T, ws *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		t.Fatalf("write %s message: %v", msg.Type, err)
	}
}

func readMsg(t *testing.T, ws *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg protocol.ServerMessage
	if err := wsjson.Read(ctx, ws, &msg); err != nil {
		t.Fatalf("read server message: %v", err)
	}
	return msg
}

// connectAgent performs the bind handshake and returns the
// confirmation message.
func connectAgent(t *testing.T, ws *websocket.Conn, agentID string) protocol.ServerMessage {
	t.Helper()
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeConnectAgent, AgentID: agentID})
	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeConnected {
		t.Fatalf("handshake reply type = %q, want %q", msg.Type, protocol.TypeConnected)
	}
	return msg
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestConnectAgent_BindsAndConfirms(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)

	msg := connectAgent(t, ws, "technical_expert")
	if msg.AgentID != "technical_expert" {
		t.Errorf("agent_id = %q, want technical_expert", msg.AgentID)
	}
	if msg.AgentName == "" {
		t.Error("agent_name missing from bind confirmation")
	}

	configs := dialer.Configs()
	if len(configs) != 1 {
		t.Fatalf("upstream connects = %d, want 1", len(configs))
	}
	if configs[0].Voice != "echo" {
		t.Errorf("upstream voice = %q, want echo", configs[0].Voice)
	}
	if !strings.Contains(configs[0].Instructions, "Always respond in English") {
		t.Error("upstream instructions missing language preamble")
	}
}

func TestConnectAgent_UnknownIDFallsBackToDefault(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)

	msg := connectAgent(t, ws, "does_not_exist")
	if msg.AgentID != agent.DefaultAgentID {
		t.Errorf("agent_id = %q, want default %q", msg.AgentID, agent.DefaultAgentID)
	}
}

func TestAudioCommit_ForwardsAndGates(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)
	connectAgent(t, ws, "general_assistant")
	conn := dialer.Conns()[0]

	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: "Y2h1bms="})
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeCommitAudio})

	waitFor(t, "commit to reach upstream", func() bool { return conn.Commits() == 1 })
	if got := conn.Appended(); len(got) != 1 || got[0] != "Y2h1bms=" {
		t.Errorf("appended chunks = %v, want [Y2h1bms=]", got)
	}
	if conn.Responses() != 1 {
		t.Errorf("response requests = %d, want 1", conn.Responses())
	}

	// A second commit with no new audio must be skipped.
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeCommitAudio})
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeCancel})
	waitFor(t, "cancel to reach upstream", func() bool { return conn.Cancels() == 1 })
	if conn.Commits() != 1 {
		t.Errorf("commits after empty commit = %d, want 1", conn.Commits())
	}
}

func TestSwitchAgent_RebindsAndResetsBuffer(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)
	connectAgent(t, ws, "general_assistant")
	first := dialer.Conns()[0]

	// Buffer some audio, then switch before committing.
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: "YQ=="})
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeSwitchAgent, AgentID: "creative_writer"})

	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeAgentSwitched {
		t.Fatalf("switch reply type = %q, want %q", msg.Type, protocol.TypeAgentSwitched)
	}
	if msg.AgentID != "creative_writer" {
		t.Errorf("agent_id = %q, want creative_writer", msg.AgentID)
	}

	if !first.Closed() {
		t.Error("previous upstream connection not closed after switch")
	}
	conns := dialer.Conns()
	if len(conns) != 2 {
		t.Fatalf("upstream connects = %d, want 2", len(conns))
	}
	if voice := dialer.Configs()[1].Voice; voice != "ballad" {
		t.Errorf("second upstream voice = %q, want ballad", voice)
	}

	// The switch cleared the buffered-audio flag: committing now is a no-op.
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeCommitAudio})
	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeCancel})
	second := conns[1]
	waitFor(t, "cancel to reach upstream", func() bool { return second.Cancels() == 1 })
	if second.Commits() != 0 {
		t.Errorf("commits after switch = %d, want 0", second.Commits())
	}
}

func TestText_ForwardsAndLogs(t *testing.T) {
	dialer := &umock.Dialer{}
	store := history.NewMemStore()
	ws := startRelay(t, dialer, relay.WithHistory(store))
	connectAgent(t, ws, "general_assistant")
	conn := dialer.Conns()[0]

	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeText, Text: "hello there"})

	waitFor(t, "text to reach upstream", func() bool { return len(conn.Texts()) == 1 })
	if conn.Texts()[0] != "hello there" {
		t.Errorf("forwarded text = %q, want %q", conn.Texts()[0], "hello there")
	}
	if conn.Responses() != 1 {
		t.Errorf("response requests = %d, want 1", conn.Responses())
	}

	waitFor(t, "history entry", func() bool {
		entries, _ := store.Recent(context.Background(), testClientID, 0)
		return len(entries) == 1
	})
	entries, _ := store.Recent(context.Background(), testClientID, 0)
	if entries[0].Role != history.RoleUser || entries[0].Text != "hello there" {
		t.Errorf("logged entry = %+v, want user %q", entries[0], "hello there")
	}
}

func TestUpstreamEvents_TranslatedToProtocol(t *testing.T) {
	dialer := &umock.Dialer{}
	store := history.NewMemStore()
	ws := startRelay(t, dialer, relay.WithHistory(store))
	connectAgent(t, ws, "general_assistant")
	conn := dialer.Conns()[0]

	conn.EmitEvent(upstream.Event{Type: upstream.EventAudioDelta, Delta: "cGNt"})
	conn.EmitEvent(upstream.Event{Type: upstream.EventTranscriptDelta, Delta: "Hello "})
	conn.EmitEvent(upstream.Event{Type: upstream.EventTranscriptDelta, Delta: "world"})
	conn.EmitEvent(upstream.Event{Type: upstream.EventUserTranscript, Transcript: "hi agent"})
	conn.EmitEvent(upstream.Event{Type: upstream.EventResponseDone})

	wantTypes := []string{
		protocol.TypeAudioDelta,
		protocol.TypeTranscriptDelta,
		protocol.TypeTranscriptDelta,
		protocol.TypeUserTranscript,
		protocol.TypeResponseDone,
	}
	for i, want := range wantTypes {
		msg := readMsg(t, ws)
		if msg.Type != want {
			t.Fatalf("message %d type = %q, want %q", i, msg.Type, want)
		}
		switch want {
		case protocol.TypeAudioDelta:
			if msg.Delta != "cGNt" {
				t.Errorf("audio delta = %q, want cGNt", msg.Delta)
			}
		case protocol.TypeUserTranscript:
			if msg.Transcript != "hi agent" {
				t.Errorf("user transcript = %q, want %q", msg.Transcript, "hi agent")
			}
		}
	}

	// response_done flushes the accumulated assistant transcript as one entry.
	waitFor(t, "history entries", func() bool {
		entries, _ := store.Recent(context.Background(), testClientID, 0)
		return len(entries) == 2
	})
	entries, _ := store.Recent(context.Background(), testClientID, 0)
	if entries[0].Role != history.RoleUser || entries[0].Text != "hi agent" {
		t.Errorf("first entry = %+v, want user transcript", entries[0])
	}
	if entries[1].Role != history.RoleAssistant || entries[1].Text != "Hello world" {
		t.Errorf("second entry = %+v, want assembled assistant transcript", entries[1])
	}
}

func TestUpstreamError_SurfacedNotFatal(t *testing.T) {
	dialer := &umock.Dialer{}
	store := history.NewMemStore()
	ws := startRelay(t, dialer, relay.WithHistory(store))
	connectAgent(t, ws, "general_assistant")
	conn := dialer.Conns()[0]

	conn.EmitEvent(upstream.Event{Type: upstream.EventError, Message: "rate limited"})

	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeError {
		t.Fatalf("message type = %q, want error", msg.Type)
	}
	if got := msg.ErrorMessage(); got != "rate limited" {
		t.Errorf("error message = %q, want %q", got, "rate limited")
	}

	// Connection stays usable after the surfaced error.
	conn.EmitEvent(upstream.Event{Type: upstream.EventAudioDelta, Delta: "cGNt"})
	if next := readMsg(t, ws); next.Type != protocol.TypeAudioDelta {
		t.Errorf("follow-up type = %q, want audio_delta", next.Type)
	}

	waitFor(t, "error history entry", func() bool {
		entries, _ := store.Recent(context.Background(), testClientID, 0)
		return len(entries) == 1 && entries[0].Role == history.RoleError
	})
}

func TestMalformedMessage_ErrorAndContinue(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}

	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
	if msg.ErrorMessage() == "" {
		t.Error("error message empty")
	}

	// The session survives malformed input.
	connectAgent(t, ws, "general_assistant")
}

func TestUnknownType_Rejected(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)

	writeMsg(t, ws, protocol.ClientMessage{Type: "bogus"})
	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
	if !strings.Contains(msg.ErrorMessage(), "bogus") {
		t.Errorf("error message %q does not name the offending type", msg.ErrorMessage())
	}
}

func TestAudioBeforeBind_Rejected(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)

	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeAudio, Audio: "cGNt"})
	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
	if !strings.Contains(msg.ErrorMessage(), "no agent") {
		t.Errorf("error message = %q, want a no-agent notice", msg.ErrorMessage())
	}
}

func TestConnectError_Surfaced(t *testing.T) {
	dialer := &umock.Dialer{ConnectError: context.DeadlineExceeded}
	ws := startRelay(t, dialer)

	writeMsg(t, ws, protocol.ClientMessage{Type: protocol.TypeConnectAgent, AgentID: "general_assistant"})
	msg := readMsg(t, ws)
	if msg.Type != protocol.TypeError {
		t.Fatalf("reply type = %q, want error", msg.Type)
	}
}

func TestClientClose_ShutsDownUpstream(t *testing.T) {
	dialer := &umock.Dialer{}
	ws := startRelay(t, dialer)
	connectAgent(t, ws, "general_assistant")
	conn := dialer.Conns()[0]

	ws.Close(websocket.StatusNormalClosure, "")

	waitFor(t, "upstream teardown", func() bool { return conn.Closed() })
}
