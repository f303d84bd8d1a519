// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A provider turns one speech unit (usually a sentence) into a mono PCM clip.
// Pipelining across units is the caller's concern; see internal/speech.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"

	"github.com/MrWong99/vigil/pkg/audio"
)

// ErrEmptyText is returned when Synthesize receives blank text.
var ErrEmptyText = errors.New("tts: empty text")

// Voice identifies a voice of one provider.
type Voice struct {
	// ID is the provider-specific voice identifier. Empty selects the
	// provider default where the backend has one.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns the complete clip.
	Synthesize(ctx context.Context, text string, voice Voice) (audio.Clip, error)

	// ListVoices returns the voices the backend currently offers.
	ListVoices(ctx context.Context) ([]Voice, error)
}
