// Package respond produces the reply to an understood request.
//
// [LLM] answers with a language model primed for spoken replies. [Router]
// classifies the request into a closed set of intents first and dispatches
// to per-intent handlers, falling back to another Responder for general
// questions.
package respond

import (
	"context"
	"errors"

	"github.com/MrWong99/vigil/internal/history"
)

var (
	// ErrEndConversation is returned together with a farewell reply when the
	// user asked the assistant to stop listening.
	ErrEndConversation = errors.New("respond: conversation ended by request")

	// ErrEmptyReply is returned when the backend produced no text.
	ErrEmptyReply = errors.New("respond: empty reply")
)

// Responder turns an utterance into the text to speak. turns holds the
// recent exchanges of the current conversation, oldest first.
type Responder interface {
	Respond(ctx context.Context, utterance string, turns []history.Turn) (string, error)
}

// Func adapts a function to [Responder].
type Func func(ctx context.Context, utterance string, turns []history.Turn) (string, error)

// Respond calls f.
func (f Func) Respond(ctx context.Context, utterance string, turns []history.Turn) (string, error) {
	return f(ctx, utterance, turns)
}
