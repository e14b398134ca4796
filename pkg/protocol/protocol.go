// Package protocol defines the JSON envelope exchanged between a voice
// client and the relay over the websocket. Every message is a single
// JSON object with a "type" discriminator; unknown types are ignored by
// both sides so the protocol can grow without breaking older peers.
package protocol

import "encoding/json"

// Client-to-relay message types.
const (
	TypeConnectAgent = "connect_agent"
	TypeSwitchAgent  = "switch_agent"
	TypeAudio        = "audio"
	TypeCommitAudio  = "commit_audio"
	TypeCancel       = "cancel"
	TypeText         = "text"
)

// Relay-to-client message types.
const (
	TypeConnected       = "connected"
	TypeAgentSwitched   = "agent_switched"
	TypeAudioDelta      = "audio_delta"
	TypeTranscriptDelta = "transcript_delta"
	TypeUserTranscript  = "user_transcript"
	TypeResponseDone    = "response_done"
	TypeError           = "error"
)

// ClientMessage is the envelope sent from client to relay. Fields
// beyond Type are populated per message type: AgentID for connect and
// switch, Audio for audio chunks, Text for typed input.
type ClientMessage struct {
	Type    string `json:"type"`
	AgentID string `json:"agent_id,omitempty"`
	Audio   string `json:"audio,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ServerMessage is the envelope sent from relay to client. Delta
// carries base64 PCM16 for audio_delta and text for transcript_delta;
// Transcript carries the finalized user utterance.
type ServerMessage struct {
	Type       string          `json:"type"`
	AgentID    string          `json:"agent_id,omitempty"`
	AgentName  string          `json:"agent_name,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// ErrorMessage returns the human-readable text of an error payload.
// The field is either a bare JSON string or an object with a "message"
// key; anything else is returned verbatim.
func (m *ServerMessage) ErrorMessage() string {
	if len(m.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(m.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	return string(m.Error)
}

// ErrorPayload wraps text into the object form of the error field.
func ErrorPayload(message string) json.RawMessage {
	raw, err := json.Marshal(struct {
		Message string `json:"message"`
	}{Message: message})
	if err != nil {
		return json.RawMessage(`{"message":"internal error"}`)
	}
	return raw
}
