// Package energy implements a pure-Go voice activity detector based on RMS
// energy with hysteresis. It needs no model files and no cgo, which makes it
// the default endpointing engine.
package energy

import (
	"math"
	"time"

	"github.com/MrWong99/vigil/pkg/provider/vad"
)

// DefaultConfig suits a quiet room with a close microphone at 16 kHz.
func DefaultConfig() vad.Config {
	return vad.Config{
		SampleRate:       16000,
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		MinSpeech:        60 * time.Millisecond,
		Hangover:         800 * time.Millisecond,
	}
}

// Engine creates energy VAD sessions.
type Engine struct{}

var _ vad.Engine = Engine{}

// NewSession implements vad.Engine.
func (Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg}, nil
}

// Session tracks speech/silence runs for one stream. Runs are measured in
// audio time rather than frame counts so any frame size works.
type Session struct {
	cfg      vad.Config
	inSpeech bool
	speech   time.Duration
	silence  time.Duration
	closed   bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *Session) ProcessFrame(samples []int16) (vad.Event, error) {
	if s.closed {
		return vad.Event{}, vad.ErrClosed
	}
	level := Level(samples)
	dur := time.Duration(int64(len(samples)) * int64(time.Second) / int64(s.cfg.SampleRate))
	ev := vad.Event{Probability: level}

	if s.inSpeech {
		if level < s.cfg.SilenceThreshold {
			s.silence += dur
			if s.silence >= s.cfg.Hangover {
				s.inSpeech = false
				s.silence = 0
				s.speech = 0
				ev.Type = vad.SpeechEnd
				return ev, nil
			}
		} else {
			s.silence = 0
		}
		ev.Type = vad.SpeechContinue
		return ev, nil
	}

	if level >= s.cfg.SpeechThreshold {
		s.speech += dur
		if s.speech >= s.cfg.MinSpeech {
			s.inSpeech = true
			s.speech = 0
			s.silence = 0
			ev.Type = vad.SpeechStart
			return ev, nil
		}
	} else {
		s.speech = 0
	}
	ev.Type = vad.Silence
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *Session) Reset() {
	s.inSpeech = false
	s.speech = 0
	s.silence = 0
}

// Close implements vad.SessionHandle.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// Level returns the RMS of samples relative to int16 full scale, in [0, 1].
func Level(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Min(1, math.Sqrt(sum/float64(len(samples)))/32768)
}
