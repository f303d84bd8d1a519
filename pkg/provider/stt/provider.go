// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider receives one complete utterance, already endpointed by the
// caller, and returns its transcript. Backends that only stream (Deepgram)
// replay the clip over their streaming API and collect the final result.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
)

// ErrEmptyAudio is returned when Transcribe receives a clip without samples.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Config carries per-request recognition hints. Zero values select the
// provider defaults.
type Config struct {
	// Language is the BCP-47 language tag (e.g. "en", "de-DE").
	Language string

	// Keywords are vocabulary hints for uncommon words such as the assistant's
	// own name. Providers without keyword support ignore them.
	Keywords []string
}

// Transcript is the recognition result for one utterance.
type Transcript struct {
	// Text is the recognised speech, trimmed. Empty when nothing
	// intelligible was heard.
	Text string

	// Confidence is in [0, 1]; zero when the provider does not report one.
	Confidence float64

	// Duration is the length of the audio that was transcribed.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in clip. An utterance with no
	// intelligible speech yields an empty Text and a nil error.
	Transcribe(ctx context.Context, clip audio.Clip, cfg Config) (Transcript, error)
}
