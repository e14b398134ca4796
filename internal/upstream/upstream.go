// Package upstream connects the relay to OpenAI's Realtime API.
//
// It dials a bidirectional WebSocket per agent session and exchanges
// JSON events according to the Realtime protocol. Audio crosses the
// boundary as base64-encoded PCM16 chunks, passed through verbatim in
// both directions; server turn detection is disabled because the relay
// gates turns itself with explicit commits.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	transcriptionModel = "gpt-4o-transcribe"
)

// EventType classifies events a Session surfaces to the relay.
type EventType string

const (
	// EventAudioDelta carries a base64 PCM16 chunk of synthesized speech.
	EventAudioDelta EventType = "audio_delta"
	// EventTranscriptDelta carries a text fragment of the spoken response.
	EventTranscriptDelta EventType = "transcript_delta"
	// EventUserTranscript carries the finalized transcription of a user turn.
	EventUserTranscript EventType = "user_transcript"
	// EventResponseDone marks the end of a model response.
	EventResponseDone EventType = "response_done"
	// EventError carries a non-fatal error reported by the API.
	EventError EventType = "error"
)

// Event is one ordered occurrence on a realtime session.
type Event struct {
	Type       EventType
	Delta      string // audio (base64 PCM16) or transcript fragment
	Transcript string // finalized user utterance
	Message    string // error text
}

// SessionConfig selects the persona for one realtime session.
type SessionConfig struct {
	Voice        string
	Instructions string
}

// Conn is one live realtime session. The Events channel preserves
// upstream arrival order and is closed when the session ends.
type Conn interface {
	AppendAudio(chunk string) error
	Commit() error
	CreateResponse() error
	CancelResponse() error
	SendUserText(text string) error
	Events() <-chan Event
	Err() error
	Close() error
}

// Dialer establishes realtime sessions.
type Dialer interface {
	Connect(ctx context.Context, cfg SessionConfig) (Conn, error)
}

// Compile-time assertions that Provider and Session satisfy the interfaces.
var _ Dialer = (*Provider)(nil)
var _ Conn = (*Session)(nil)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests
// to point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider dials OpenAI Realtime sessions.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect establishes a realtime session configured for the given
// persona. The returned Conn accepts audio immediately after the
// initial session.update is sent.
func (p *Provider) Connect(ctx context.Context, cfg SessionConfig) (Conn, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   conn,
		events: make(chan Event, 64),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSessionUpdate(cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("upstream: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities        []string           `json:"modalities"`
	Voice             string             `json:"voice,omitempty"`
	Instructions      string             `json:"instructions,omitempty"`
	InputAudioFormat  string             `json:"input_audio_format"`
	OutputAudioFormat string             `json:"output_audio_format"`
	InputTranscription *transcriptionCfg `json:"input_audio_transcription,omitempty"`
	// TurnDetection is always marshaled, as null, to disable server VAD.
	TurnDetection  any     `json:"turn_detection"`
	Temperature    float64 `json:"temperature,omitempty"`
	MaxOutputTokens int    `json:"max_response_output_tokens,omitempty"`
}

type transcriptionCfg struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverErrorDetail is the nested error object of a realtime error
// event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is a live connection to one realtime agent.
type Session struct {
	conn   *websocket.Conn
	events chan Event

	mu     sync.Mutex
	errVal error
	closed bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate configures voice, instructions, audio formats and
// input transcription, and turns server VAD off.
func (s *Session) sendSessionUpdate(cfg SessionConfig) error {
	params := sessionParams{
		Modalities:        []string{"text", "audio"},
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputTranscription: &transcriptionCfg{
			Model:    transcriptionModel,
			Language: "en",
		},
		TurnDetection:   nil,
		Temperature:     0.8,
		MaxOutputTokens: 4096,
	}
	if cfg.Voice != "" {
		params.Voice = cfg.Voice
	}
	if cfg.Instructions != "" {
		params.Instructions = cfg.Instructions
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("upstream: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them.
// It owns the events channel and closes it when it exits.
func (s *Session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *Session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(Event{Type: EventAudioDelta, Delta: evt.Delta})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.emit(Event{Type: EventTranscriptDelta, Delta: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(Event{Type: EventUserTranscript, Transcript: evt.Transcript})

	case "response.done":
		s.emit(Event{Type: EventResponseDone})

	case "error":
		msg := "unknown error"
		if evt.Error != nil && evt.Error.Message != "" {
			msg = evt.Error.Message
		}
		s.emit(Event{Type: EventError, Message: msg})
	}
}

func (s *Session) emit(evt Event) {
	select {
	case s.events <- evt:
	case <-s.ctx.Done():
	}
}

func (s *Session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *Session) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// ── Conn methods ───────────────────────────────────────────────────────────────

// AppendAudio forwards a base64 PCM16 chunk into the input buffer. The
// payload is passed through without re-encoding.
func (s *Session) AppendAudio(chunk string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: chunk,
	})
}

// Commit finalizes the buffered input audio as one user turn.
func (s *Session) Commit() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// CreateResponse asks the model to respond to the committed turn.
func (s *Session) CreateResponse() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.create"})
}

// CancelResponse stops the in-progress model response.
func (s *Session) CancelResponse() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

// SendUserText inserts a typed user message into the conversation.
// Callers follow up with CreateResponse to trigger the reply.
func (s *Session) SendUserText(text string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_text", Text: text},
			},
		},
	})
}

// Events returns the ordered event stream of this session.
func (s *Session) Events() <-chan Event { return s.events }

// Err returns the first non-nil error that terminated the session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("upstream: session closed")
	}
	return nil
}

// Close terminates the session and releases all resources. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}
