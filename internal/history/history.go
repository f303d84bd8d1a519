// Package history keeps the recent exchanges of a conversation so the
// responder can answer follow-up questions.
//
// A conversation starts with a wake event and ends when the assistant goes
// back to sleep. [MemoryStore] keeps a bounded window per conversation in
// process; [PostgresStore] additionally persists every turn.
package history

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxTurns is how many turns a conversation window keeps.
const DefaultMaxTurns = 10

// ErrEmptyConversation is returned when a turn is appended without a
// conversation ID.
var ErrEmptyConversation = errors.New("history: empty conversation id")

// Turn is one understood request and the reply that was spoken for it.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
	// Intent is the classified intent, empty when no router was involved.
	Intent string    `json:"intent,omitempty"`
	At     time.Time `json:"at"`
}

// Store records turns per conversation. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append adds a turn to the conversation.
	Append(ctx context.Context, conversationID string, t Turn) error

	// Recent returns at most n turns of the conversation, oldest first.
	// n <= 0 returns the full retained window.
	Recent(ctx context.Context, conversationID string, n int) ([]Turn, error)

	// Forget drops the in-process window of a conversation. Persistent stores
	// keep their rows.
	Forget(ctx context.Context, conversationID string) error
}

// tail returns the last n turns of ts (all when n <= 0) as a fresh slice.
func tail(ts []Turn, n int) []Turn {
	if n > 0 && len(ts) > n {
		ts = ts[len(ts)-n:]
	}
	out := make([]Turn, len(ts))
	copy(out, ts)
	return out
}
