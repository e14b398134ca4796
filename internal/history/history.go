// Package history records what was said on each voice session: user
// turns, assistant responses and surfaced errors. The relay appends as
// transcripts arrive; nothing in the hot audio path blocks on the store.
package history

import (
	"context"
	"time"
)

// Entry roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleError     = "error"
)

// Entry is one conversational record on a client session.
type Entry struct {
	Role      string
	Text      string
	AgentID   string
	AgentName string
	CreatedAt time.Time
}

// Store persists session history keyed by client id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append records one entry for clientID.
	Append(ctx context.Context, clientID string, e Entry) error

	// Recent returns up to limit entries for clientID, oldest first.
	// limit <= 0 means no limit.
	Recent(ctx context.Context, clientID string, limit int) ([]Entry, error)
}
