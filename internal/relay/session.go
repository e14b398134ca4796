package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/agent"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/history"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/observe"
	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/upstream"
	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/protocol"
)

// historyWriteTimeout bounds log writes issued during teardown, when
// the request context is already cancelled.
const historyWriteTimeout = 2 * time.Second

// clientSession is the per-client bridge between one websocket and one
// upstream realtime connection. The read loop owns all state except
// the websocket write path, which the upstream forwarder shares; writes
// are serialized through writeMu.
type clientSession struct {
	srv      *Server
	clientID string
	ws       *websocket.Conn

	writeMu sync.Mutex

	// Owned by the read loop.
	up          upstream.Conn
	agentDef    agent.Definition
	dirty       bool
	forwardDone chan struct{}
}

func newClientSession(srv *Server, clientID string, ws *websocket.Conn) *clientSession {
	return &clientSession{srv: srv, clientID: clientID, ws: ws}
}

// run processes client messages until the websocket closes or ctx is
// cancelled. It always tears down the upstream connection before
// returning.
func (cs *clientSession) run(ctx context.Context) {
	m := cs.srv.metrics
	m.ActiveClients.Add(ctx, 1)
	defer m.ActiveClients.Add(context.Background(), -1)

	defer cs.closeUpstream(ctx)
	defer cs.ws.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := cs.ws.Read(ctx)
		if err != nil {
			// Transport gone. A normal close is not an error worth logging.
			if websocket.CloseStatus(err) < 0 && ctx.Err() == nil {
				slog.Warn("relay: client read failed", "client_id", cs.clientID, "err", err)
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			cs.sendError(ctx, "invalid message: not a JSON object")
			m.RecordSessionError(ctx, "client")
			continue
		}

		m.RecordClientMessage(ctx, msg.Type)
		cs.dispatch(ctx, msg)
	}
}

func (cs *clientSession) dispatch(ctx context.Context, msg protocol.ClientMessage) {
	switch msg.Type {
	case protocol.TypeConnectAgent:
		cs.bindAgent(ctx, msg.AgentID, protocol.TypeConnected)
	case protocol.TypeSwitchAgent:
		cs.bindAgent(ctx, msg.AgentID, protocol.TypeAgentSwitched)
	case protocol.TypeAudio:
		cs.handleAudio(ctx, msg.Audio)
	case protocol.TypeCommitAudio:
		cs.handleCommit(ctx)
	case protocol.TypeCancel:
		cs.handleCancel(ctx)
	case protocol.TypeText:
		cs.handleText(ctx, msg.Text)
	default:
		cs.sendError(ctx, fmt.Sprintf("unknown message type %q", msg.Type))
		cs.srv.metrics.RecordSessionError(ctx, "client")
	}
}

// bindAgent (re)establishes the upstream connection for the requested
// agent and confirms with the given message type. An existing upstream
// connection is torn down only after the new one dialed successfully,
// so a failed switch leaves the previous binding intact.
func (cs *clientSession) bindAgent(ctx context.Context, agentID, confirmType string) {
	start := time.Now()
	def := cs.srv.agents.Get(agentID)

	conn, err := cs.srv.dialer.Connect(ctx, upstream.SessionConfig{
		Voice:        def.Voice,
		Instructions: def.SessionInstructions(),
	})
	if err != nil {
		slog.Error("relay: upstream connect failed",
			"client_id", cs.clientID, "agent_id", def.ID, "err", err)
		cs.sendError(ctx, "failed to connect to agent "+def.ID)
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}

	cs.closeUpstream(ctx)

	cs.up = conn
	cs.agentDef = def
	cs.dirty = false
	cs.forwardDone = make(chan struct{})
	go cs.forward(ctx, conn, def, cs.forwardDone)

	cs.srv.metrics.ActiveUpstreams.Add(ctx, 1)
	cs.srv.metrics.BindDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("agent_id", def.ID)))

	slog.Info("relay: agent bound",
		"client_id", cs.clientID, "agent_id", def.ID, "agent_name", def.Name)

	cs.send(ctx, protocol.ServerMessage{
		Type:      confirmType,
		AgentID:   def.ID,
		AgentName: def.Name,
	})
}

// closeUpstream closes the current upstream connection, if any, and
// waits for its forwarder to drain.
func (cs *clientSession) closeUpstream(ctx context.Context) {
	if cs.up == nil {
		return
	}
	if err := cs.up.Close(); err != nil {
		slog.Warn("relay: upstream close error", "client_id", cs.clientID, "err", err)
	}
	<-cs.forwardDone
	cs.up = nil
	cs.forwardDone = nil
	cs.srv.metrics.ActiveUpstreams.Add(context.Background(), -1)
}

func (cs *clientSession) handleAudio(ctx context.Context, chunk string) {
	if cs.up == nil {
		cs.sendError(ctx, "no agent connected")
		return
	}
	if chunk == "" {
		return
	}
	if err := cs.up.AppendAudio(chunk); err != nil {
		slog.Warn("relay: audio forward failed", "client_id", cs.clientID, "err", err)
		cs.sendError(ctx, "failed to forward audio")
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}
	cs.dirty = true
	cs.srv.metrics.AudioChunksForwarded.Add(ctx, 1)
}

// handleCommit finalizes the buffered turn and requests a response.
// A commit with no audio since the last commit or bind is skipped; the
// upstream engine rejects commits on an empty buffer.
func (cs *clientSession) handleCommit(ctx context.Context) {
	if cs.up == nil {
		cs.sendError(ctx, "no agent connected")
		return
	}
	if !cs.dirty {
		slog.Debug("relay: commit skipped, no buffered audio", "client_id", cs.clientID)
		return
	}
	if err := cs.up.Commit(); err != nil {
		cs.sendError(ctx, "failed to commit audio")
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}
	if err := cs.up.CreateResponse(); err != nil {
		cs.sendError(ctx, "failed to request response")
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}
	cs.dirty = false
}

func (cs *clientSession) handleCancel(ctx context.Context) {
	if cs.up == nil {
		return
	}
	if err := cs.up.CancelResponse(); err != nil {
		slog.Warn("relay: cancel failed", "client_id", cs.clientID, "err", err)
	}
}

func (cs *clientSession) handleText(ctx context.Context, text string) {
	if cs.up == nil {
		cs.sendError(ctx, "no agent connected")
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	if err := cs.up.SendUserText(text); err != nil {
		cs.sendError(ctx, "failed to send text")
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}
	if err := cs.up.CreateResponse(); err != nil {
		cs.sendError(ctx, "failed to request response")
		cs.srv.metrics.RecordSessionError(ctx, "relay")
		return
	}
	cs.appendHistory(ctx, history.Entry{
		Role:      history.RoleUser,
		Text:      text,
		AgentID:   cs.agentDef.ID,
		AgentName: cs.agentDef.Name,
	})
}

// forward translates upstream events into protocol messages until the
// upstream event channel closes. Assistant transcript deltas are
// accumulated and written to the conversation log as one entry when
// the response completes.
func (cs *clientSession) forward(ctx context.Context, conn upstream.Conn, def agent.Definition, done chan<- struct{}) {
	defer close(done)

	var assistant strings.Builder
	flushAssistant := func() {
		if assistant.Len() == 0 {
			return
		}
		cs.appendHistory(ctx, history.Entry{
			Role:      history.RoleAssistant,
			Text:      assistant.String(),
			AgentID:   def.ID,
			AgentName: def.Name,
		})
		assistant.Reset()
	}
	defer flushAssistant()

	for evt := range conn.Events() {
		cs.srv.metrics.RecordUpstreamEvent(ctx, string(evt.Type))

		switch evt.Type {
		case upstream.EventAudioDelta:
			cs.send(ctx, protocol.ServerMessage{
				Type:  protocol.TypeAudioDelta,
				Delta: evt.Delta,
			})
		case upstream.EventTranscriptDelta:
			assistant.WriteString(evt.Delta)
			cs.send(ctx, protocol.ServerMessage{
				Type:  protocol.TypeTranscriptDelta,
				Delta: evt.Delta,
			})
		case upstream.EventUserTranscript:
			cs.send(ctx, protocol.ServerMessage{
				Type:       protocol.TypeUserTranscript,
				Transcript: evt.Transcript,
			})
			cs.appendHistory(ctx, history.Entry{
				Role:      history.RoleUser,
				Text:      evt.Transcript,
				AgentID:   def.ID,
				AgentName: def.Name,
			})
		case upstream.EventResponseDone:
			flushAssistant()
			cs.send(ctx, protocol.ServerMessage{Type: protocol.TypeResponseDone})
		case upstream.EventError:
			slog.Warn("relay: upstream error",
				"client_id", cs.clientID, "agent_id", def.ID, "message", evt.Message)
			cs.sendError(ctx, evt.Message)
			cs.srv.metrics.RecordSessionError(ctx, "upstream")
			cs.appendHistory(ctx, history.Entry{
				Role:      history.RoleError,
				Text:      evt.Message,
				AgentID:   def.ID,
				AgentName: def.Name,
			})
		}
	}

	if err := conn.Err(); err != nil && ctx.Err() == nil {
		slog.Warn("relay: upstream connection lost",
			"client_id", cs.clientID, "agent_id", def.ID, "err", err)
		cs.sendError(ctx, "upstream connection lost")
		cs.srv.metrics.RecordSessionError(ctx, "upstream")
	}
}

func (cs *clientSession) send(ctx context.Context, msg protocol.ServerMessage) {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()
	if err := wsjson.Write(ctx, cs.ws, msg); err != nil {
		if ctx.Err() == nil {
			slog.Debug("relay: client write failed",
				"client_id", cs.clientID, "type", msg.Type, "err", err)
		}
	}
}

func (cs *clientSession) sendError(ctx context.Context, message string) {
	cs.send(ctx, protocol.ServerMessage{
		Type:  protocol.TypeError,
		Error: protocol.ErrorPayload(message),
	})
}

func (cs *clientSession) appendHistory(ctx context.Context, e history.Entry) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), historyWriteTimeout)
		defer cancel()
	}
	if err := cs.srv.history.Append(ctx, cs.clientID, e); err != nil {
		slog.Warn("relay: history append failed",
			"client_id", cs.clientID, "role", e.Role, "err", err)
	}
}
