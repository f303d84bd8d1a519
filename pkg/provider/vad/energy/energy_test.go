package energy

import (
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/vigil/pkg/provider/vad"
)

// frame returns 1600 samples (100 ms at 16 kHz) of a constant amplitude.
func frame(amp int16) []int16 {
	s := make([]int16, 1600)
	for i := range s {
		if i%2 == 0 {
			s[i] = amp
		} else {
			s[i] = -amp
		}
	}
	return s
}

func TestLevel(t *testing.T) {
	t.Parallel()

	if got := Level(nil); got != 0 {
		t.Errorf("Level(nil) = %v", got)
	}
	if got := Level(frame(16384)); got < 0.499 || got > 0.501 {
		t.Errorf("Level(half scale) = %v, want 0.5", got)
	}
	if got := Level(frame(-32768)); got != 1 {
		t.Errorf("Level(full scale) = %v, want 1", got)
	}
}

func TestSession_Hysteresis(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinSpeech = 200 * time.Millisecond
	cfg.Hangover = 300 * time.Millisecond
	h, err := Engine{}.NewSession(cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	loud := frame(3000) // ~0.09
	mid := frame(400)   // ~0.012: between thresholds
	quiet := frame(50)  // ~0.0015
	steps := []struct {
		in   []int16
		want vad.EventType
	}{
		{quiet, vad.Silence},
		{loud, vad.Silence},
		{quiet, vad.Silence}, // run broken
		{loud, vad.Silence},
		{loud, vad.SpeechStart},
		{mid, vad.SpeechContinue}, // above silence threshold keeps speech alive
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{loud, vad.SpeechContinue}, // resets the silence run
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechContinue},
		{quiet, vad.SpeechEnd},
		{quiet, vad.Silence},
	}
	for i, st := range steps {
		ev, err := h.ProcessFrame(st.in)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if ev.Type != st.want {
			t.Errorf("step %d: got %v, want %v", i, ev.Type, st.want)
		}
	}
}

func TestSession_ResetAndClose(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinSpeech = 0
	h, _ := Engine{}.NewSession(cfg)
	if ev, _ := h.ProcessFrame(frame(3000)); ev.Type != vad.SpeechStart {
		t.Fatalf("got %v, want speech_start", ev.Type)
	}
	h.Reset()
	if ev, _ := h.ProcessFrame(frame(3000)); ev.Type != vad.SpeechStart {
		t.Errorf("after Reset got %v, want speech_start", ev.Type)
	}
	_ = h.Close()
	_ = h.Close()
	if _, err := h.ProcessFrame(frame(3000)); !errors.Is(err, vad.ErrClosed) {
		t.Errorf("after Close err = %v, want ErrClosed", err)
	}
}

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mut  func(*vad.Config)
	}{
		{"zero rate", func(c *vad.Config) { c.SampleRate = 0 }},
		{"speech above one", func(c *vad.Config) { c.SpeechThreshold = 1.5 }},
		{"silence above speech", func(c *vad.Config) { c.SilenceThreshold = 0.5 }},
		{"negative hangover", func(c *vad.Config) { c.Hangover = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mut(&cfg)
			if _, err := (Engine{}).NewSession(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
