// Package session implements the client side of the voice session
// protocol: dialing the relay, binding and switching agents, streaming
// capture chunks out, and routing inbound audio and transcript events
// into a playback queue and a conversation transcript.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/audio"
	"github.com/akshaymakw8/Realtime-Voice-Agent/pkg/protocol"
)

// writeTimeout bounds a single outbound message write.
const writeTimeout = 5 * time.Second

// Status is the connection state of a [Client].
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Transcript entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Entry is one finalized line of the conversation transcript.
type Entry struct {
	Role      string
	Text      string
	AgentName string
	CreatedAt time.Time
}

// EventKind discriminates client lifecycle and transcript events.
type EventKind string

const (
	// EventConnected reports a confirmed agent bind.
	EventConnected EventKind = "connected"
	// EventAgentSwitched reports a confirmed in-place rebind.
	EventAgentSwitched EventKind = "agent_switched"
	// EventAssistantDelta carries one streamed assistant text fragment.
	EventAssistantDelta EventKind = "assistant_delta"
	// EventAssistantDone carries the full assistant turn after response
	// completion.
	EventAssistantDone EventKind = "assistant_done"
	// EventUserTranscript carries the finalized recognition of the
	// user's spoken turn.
	EventUserTranscript EventKind = "user_transcript"
	// EventError carries a non-fatal error surfaced by the relay or the
	// local decode path.
	EventError EventKind = "error"
	// EventDisconnected reports a transport drop.
	EventDisconnected EventKind = "disconnected"
)

// Event is delivered on [Client.Events] for consumers that render the
// conversation.
type Event struct {
	Kind      EventKind
	AgentID   string
	AgentName string
	Text      string
}

var (
	// ErrNotConnected is returned by operations that need a live
	// transport connection.
	ErrNotConnected = errors.New("session: not connected")

	// ErrNothingBuffered is returned by Commit when no capture frame
	// arrived since the last commit or agent bind.
	ErrNothingBuffered = errors.New("session: no audio buffered since last commit")

	// ErrNoCapture is returned by Talk when the client was built
	// without a capture pipeline.
	ErrNoCapture = errors.New("session: no capture pipeline configured")

	// ErrClosed is returned by all operations after Close.
	ErrClosed = errors.New("session: client closed")
)

// TransportError wraps a websocket-level failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Option configures a [Client].
type Option func(*Client)

// WithCapture attaches a microphone capture pipeline. Without it the
// client is text-and-playback only.
func WithCapture(c *audio.Capture) Option {
	return func(cl *Client) { cl.capture = c }
}

// Client is the session state machine. All exported methods are safe
// for concurrent use.
type Client struct {
	url     string
	player  *audio.Player
	capture *audio.Capture

	events chan Event

	writeMu sync.Mutex

	mu         sync.Mutex
	ws         *websocket.Conn
	status     Status
	agentID    string
	agentName  string
	speaking   bool
	dirty      bool
	closed     bool
	transcript []Entry
	pending    strings.Builder
	readCancel context.CancelFunc
}

// New creates a client that will dial the relay at url and route
// inbound audio into player. The capture pipeline, when configured, is
// bound once here; the chunk callback checks connection state at call
// time, so a capture started before Connect simply drops frames until
// the session is live.
func New(url string, player *audio.Player, opts ...Option) *Client {
	c := &Client{
		url:    url,
		player: player,
		events: make(chan Event, 64),
		status: StatusDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.capture != nil {
		c.capture.Bind(c.onChunk)
	}
	return c
}

// Events returns the stream of lifecycle and transcript events. The
// channel is closed by [Client.Close].
func (c *Client) Events() <-chan Event { return c.events }

// Connect establishes the session and binds agentID. When the
// transport is already open it sends a direct bind request without
// reopening. The bind is confirmed asynchronously via EventConnected.
func (c *Client) Connect(ctx context.Context, agentID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.ws != nil {
		c.mu.Unlock()
		return c.send(protocol.ClientMessage{Type: protocol.TypeConnectAgent, AgentID: agentID})
	}
	c.status = StatusConnecting
	c.mu.Unlock()

	ws, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		c.mu.Lock()
		c.status = StatusDisconnected
		c.mu.Unlock()
		return &TransportError{Op: "dial", Err: err}
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.ws = ws
	c.status = StatusConnected
	c.readCancel = cancel
	c.mu.Unlock()
	go c.readLoop(readCtx, ws)

	return c.send(protocol.ClientMessage{Type: protocol.TypeConnectAgent, AgentID: agentID})
}

// SwitchAgent rebinds the session to another agent on the live
// connection. Confirmation arrives as EventAgentSwitched.
func (c *Client) SwitchAgent(agentID string) error {
	return c.send(protocol.ClientMessage{Type: protocol.TypeSwitchAgent, AgentID: agentID})
}

// Talk starts microphone capture. Encoded chunks stream to the relay
// until [Client.StopTalking].
func (c *Client) Talk() error {
	if c.capture == nil {
		return ErrNoCapture
	}
	return c.capture.Start()
}

// StopTalking stops microphone capture. Safe when capture is not
// running.
func (c *Client) StopTalking() {
	if c.capture != nil {
		c.capture.Stop()
	}
}

// Commit finalizes the buffered audio turn and asks the agent to
// respond. Returns ErrNothingBuffered when no chunk was streamed since
// the last commit or bind.
func (c *Client) Commit() error {
	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !c.dirty {
		c.mu.Unlock()
		return ErrNothingBuffered
	}
	c.dirty = false
	c.mu.Unlock()
	return c.send(protocol.ClientMessage{Type: protocol.TypeCommitAudio})
}

// Cancel aborts the in-flight response. Local audio state is
// authoritative: the playback queue is flushed and the speaking flag
// cleared immediately, without waiting for the relay. A cancel while
// no response is streaming is a no-op.
func (c *Client) Cancel() error {
	c.mu.Lock()
	if c.status != StatusConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !c.speaking {
		c.mu.Unlock()
		return nil
	}
	c.speaking = false
	c.mu.Unlock()

	c.player.Flush()
	return c.send(protocol.ClientMessage{Type: protocol.TypeCancel})
}

// SendText sends an out-of-band text turn.
func (c *Client) SendText(text string) error {
	return c.send(protocol.ClientMessage{Type: protocol.TypeText, Text: text})
}

// Status returns the connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Agent returns the currently bound agent's id and name. Both are
// empty before the first bind confirmation.
func (c *Client) Agent() (id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentID, c.agentName
}

// Speaking reports whether a response is currently streaming.
func (c *Client) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Transcript returns a copy of the finalized conversation entries in
// order.
func (c *Client) Transcript() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Entry(nil), c.transcript...)
}

// Close tears the session down: capture stops, the transport closes,
// the playback queue flushes, and the events channel closes.
// Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	ws := c.ws
	cancel := c.readCancel
	c.ws = nil
	c.readCancel = nil
	c.status = StatusDisconnected
	c.mu.Unlock()

	if c.capture != nil {
		c.capture.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "")
	}
	c.player.Flush()
	close(c.events)
	return nil
}

// onChunk is the capture callback. It streams the encoded chunk when a
// session is live and otherwise drops it; the capture pipeline may run
// across connects and disconnects.
func (c *Client) onChunk(chunk string) {
	c.mu.Lock()
	live := c.status == StatusConnected && c.ws != nil
	if live {
		c.dirty = true
	}
	c.mu.Unlock()
	if !live {
		return
	}
	if err := c.send(protocol.ClientMessage{Type: protocol.TypeAudio, Audio: chunk}); err != nil {
		slog.Warn("session: audio chunk dropped", "err", err)
	}
}

func (c *Client) send(msg protocol.ClientMessage) error {
	c.mu.Lock()
	ws := c.ws
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ws == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, ws, msg); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// readLoop processes relay messages until the transport drops or ctx
// is cancelled. A drop flushes the playback queue so no stale response
// audio survives, then resets the state machine to disconnected.
func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		var msg protocol.ServerMessage
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			c.handleDisconnect(ctx, err)
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleDisconnect(ctx context.Context, err error) {
	c.player.Flush()

	c.mu.Lock()
	wasLive := c.ws != nil && !c.closed
	c.ws = nil
	c.status = StatusDisconnected
	c.speaking = false
	c.dirty = false
	c.mu.Unlock()

	if !wasLive || ctx.Err() != nil {
		return
	}
	slog.Warn("session: connection lost", "err", err)
	c.emit(Event{Kind: EventDisconnected})
}

func (c *Client) handleMessage(msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeConnected, protocol.TypeAgentSwitched:
		c.mu.Lock()
		c.agentID = msg.AgentID
		c.agentName = msg.AgentName
		c.dirty = false
		c.mu.Unlock()
		kind := EventConnected
		if msg.Type == protocol.TypeAgentSwitched {
			kind = EventAgentSwitched
		}
		c.emit(Event{Kind: kind, AgentID: msg.AgentID, AgentName: msg.AgentName})

	case protocol.TypeAudioDelta:
		pcm, err := audio.FromText(msg.Delta)
		if err != nil {
			c.addEntry(RoleError, "malformed audio chunk: "+err.Error())
			return
		}
		c.setSpeaking(true)
		if err := c.player.Enqueue(pcm); err != nil {
			c.addEntry(RoleError, "audio chunk dropped: "+err.Error())
		}

	case protocol.TypeTranscriptDelta:
		c.setSpeaking(true)
		c.mu.Lock()
		c.pending.WriteString(msg.Delta)
		name := c.agentName
		c.mu.Unlock()
		c.emit(Event{Kind: EventAssistantDelta, AgentName: name, Text: msg.Delta})

	case protocol.TypeUserTranscript:
		c.addEntry(RoleUser, msg.Transcript)
		c.emit(Event{Kind: EventUserTranscript, Text: msg.Transcript})

	case protocol.TypeResponseDone:
		c.mu.Lock()
		text := c.pending.String()
		c.pending.Reset()
		c.speaking = false
		name := c.agentName
		if text != "" {
			c.transcript = append(c.transcript, Entry{
				Role:      RoleAssistant,
				Text:      text,
				AgentName: name,
				CreatedAt: time.Now(),
			})
		}
		c.mu.Unlock()
		c.emit(Event{Kind: EventAssistantDone, AgentName: name, Text: text})

	case protocol.TypeError:
		c.addEntry(RoleError, msg.ErrorMessage())
	}
}

func (c *Client) setSpeaking(v bool) {
	c.mu.Lock()
	c.speaking = v
	c.mu.Unlock()
}

// addEntry appends a finalized transcript entry. Error entries are
// also surfaced on the event stream.
func (c *Client) addEntry(role, text string) {
	c.mu.Lock()
	name := c.agentName
	c.transcript = append(c.transcript, Entry{
		Role:      role,
		Text:      text,
		AgentName: name,
		CreatedAt: time.Now(),
	})
	c.mu.Unlock()

	if role == RoleError {
		c.emit(Event{Kind: EventError, AgentName: name, Text: text})
	}
}

// emit delivers an event without blocking the read loop; a consumer
// that stopped draining loses events rather than stalling audio. The
// lock orders emit against Close so nothing sends on a closed channel.
func (c *Client) emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- evt:
	default:
		slog.Debug("session: event dropped, consumer not draining", "kind", evt.Kind)
	}
}
