package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/vigil/pkg/provider/tts"
	ttsmock "github.com/MrWong99/vigil/pkg/provider/tts/mock"
)

func TestTTSFallback_Synthesize(t *testing.T) {
	t.Parallel()
	voice := tts.Voice{ID: "rachel", Provider: "elevenlabs"}

	t.Run("primary answers", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{}
		secondary := &ttsmock.Provider{}
		fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
		fb.AddFallback("coqui", secondary)

		clip, err := fb.Synthesize(context.Background(), "Hello.", voice)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if clip.Empty() {
			t.Error("clip is empty")
		}
		calls := primary.Calls()
		if len(calls) != 1 || calls[0].Voice.ID != "rachel" {
			t.Errorf("primary calls = %+v", calls)
		}
		if len(secondary.Calls()) != 0 {
			t.Errorf("secondary called %d times, want 0", len(secondary.Calls()))
		}
	})

	t.Run("failover drops provider voice", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{Err: errors.New("quota exceeded")}
		secondary := &ttsmock.Provider{}
		fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
		fb.AddFallback("coqui", secondary)

		if _, err := fb.Synthesize(context.Background(), "Hello.", voice); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		calls := secondary.Calls()
		if len(calls) != 1 || calls[0].Voice.ID != "" {
			t.Errorf("secondary calls = %+v, want one call with the default voice", calls)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		t.Parallel()
		fb := NewTTSFallback(&ttsmock.Provider{Err: errors.New("down")}, "elevenlabs", FallbackConfig{})
		fb.AddFallback("coqui", &ttsmock.Provider{Err: errors.New("down too")})

		if _, err := fb.Synthesize(context.Background(), "Hello.", voice); !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		primary := &ttsmock.Provider{}
		fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})

		if _, err := fb.Synthesize(context.Background(), "  ", voice); !errors.Is(err, tts.ErrEmptyText) {
			t.Fatalf("err = %v, want ErrEmptyText", err)
		}
		if len(primary.Calls()) != 0 {
			t.Error("blank text should not reach a provider")
		}
	})
}

func TestTTSFallback_ListVoices(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Voices: []tts.Voice{{ID: "v1", Name: "Rachel"}}}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})

	voices, err := fb.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "v1" {
		t.Errorf("voices = %+v", voices)
	}
}
