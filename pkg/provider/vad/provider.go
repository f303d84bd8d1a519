// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine surfaces a frame-level speech detector as a stateful, per-stream
// session. Each session keeps its own hysteresis state so independent streams
// can be processed in parallel.
//
// VAD is synchronous: ProcessFrame returns immediately with a detection
// result, which makes it suitable for the endpointing loop that decides when a
// spoken request has started and ended.
package vad

import (
	"errors"
	"time"
)

// ErrClosed is returned by ProcessFrame after Close.
var ErrClosed = errors.New("vad: session closed")

// Config holds the parameters for a VAD session.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Frames passed to ProcessFrame
	// must be at this rate.
	SampleRate int

	// SpeechThreshold is the score at or above which a frame counts as speech.
	// Range: [0.0, 1.0]. For the energy engine the score is RMS over full scale.
	SpeechThreshold float64

	// SilenceThreshold is the score below which a frame counts as silence
	// while speech is active. Must be <= SpeechThreshold.
	SilenceThreshold float64

	// MinSpeech is how much consecutive speech opens a segment.
	MinSpeech time.Duration

	// Hangover is how much consecutive silence closes a segment.
	Hangover time.Duration
}

// Validate reports whether cfg is usable.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, errors.New("vad: sample rate must be positive"))
	}
	if c.SpeechThreshold <= 0 || c.SpeechThreshold > 1 {
		errs = append(errs, errors.New("vad: speech threshold must be in (0, 1]"))
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > c.SpeechThreshold {
		errs = append(errs, errors.New("vad: silence threshold must be in [0, speech threshold]"))
	}
	if c.MinSpeech < 0 || c.Hangover < 0 {
		errs = append(errs, errors.New("vad: durations must not be negative"))
	}
	return errors.Join(errs...)
}

// EventType enumerates VAD detection states.
type EventType int

const (
	// Silence indicates no speech detected.
	Silence EventType = iota

	// SpeechStart indicates speech has just begun.
	SpeechStart

	// SpeechContinue indicates ongoing speech.
	SpeechContinue

	// SpeechEnd indicates speech has just ended.
	SpeechEnd
)

func (t EventType) String() string {
	switch t {
	case Silence:
		return "silence"
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	default:
		return "unknown"
	}
}

// Event is the detection result for a single frame.
type Event struct {
	Type EventType

	// Probability is the frame's speech score in [0.0, 1.0].
	Probability float64
}

// SessionHandle is an active VAD session for one audio stream. It is not safe
// for concurrent use.
type SessionHandle interface {
	// ProcessFrame analyses one frame of mono samples.
	ProcessFrame(samples []int16) (Event, error)

	// Reset clears accumulated detection state without closing the session.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for VAD sessions. Implementations must be safe for
// concurrent NewSession calls.
type Engine interface {
	NewSession(cfg Config) (SessionHandle, error)
}
