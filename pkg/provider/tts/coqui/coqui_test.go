package coqui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/tts"
)

func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func testWAV(t *testing.T, rate, n int) []byte {
	t.Helper()
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(i)
	}
	data, err := audio.EncodeWAV(audio.Clip{Samples: s, SampleRate: rate})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return data
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
		if p.language != defaultLanguage || p.apiMode != APIModeStandard {
			t.Errorf("language=%q mode=%q", p.language, p.apiMode)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Error("expected error for empty URL")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		if _, err := New("http://x", WithAPIMode("bark")); err == nil {
			t.Error("expected error for unknown API mode")
		}
	})
}

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		query map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != apiTTSEndpoint {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		query = map[string]string{
			"text":        r.URL.Query().Get("text"),
			"speaker_id":  r.URL.Query().Get("speaker_id"),
			"language_id": r.URL.Query().Get("language_id"),
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(testWAV(t, 22050, 2205))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("de"))
	clip, err := p.Synthesize(context.Background(), "  Guten Tag.  ", tts.Voice{ID: "p225"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 22050 || len(clip.Samples) != 2205 {
		t.Errorf("clip = %d samples @ %d Hz", len(clip.Samples), clip.SampleRate)
	}

	mu.Lock()
	defer mu.Unlock()
	want := map[string]string{"text": "Guten Tag.", "speaker_id": "p225", "language_id": "de"}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}
}

func TestSynthesize_XTTSResamples(t *testing.T) {
	t.Parallel()

	var got ttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ttsEndpoint {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, _ = w.Write(testWAV(t, 24000, 2400))
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS), WithOutputSampleRate(16000))
	clip, err := p.Synthesize(context.Background(), "Hello.", tts.Voice{ID: "Ana Florence"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if clip.SampleRate != 16000 || len(clip.Samples) != 1600 {
		t.Errorf("clip = %d samples @ %d Hz, want 1600 @ 16000", len(clip.Samples), clip.SampleRate)
	}
	if got.Text != "Hello." || got.SpeakerWav != "Ana Florence" || got.Language != "en" {
		t.Errorf("request = %+v", got)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("text") == "garbage" {
			_, _ = w.Write([]byte("not a wav"))
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL)
	if _, err := p.Synthesize(context.Background(), "   ", tts.Voice{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("blank text: err = %v, want ErrEmptyText", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Error("HTTP 500: expected error")
	}
	if _, err := p.Synthesize(context.Background(), "garbage", tts.Voice{}); !errors.Is(err, audio.ErrInvalidWAV) {
		t.Errorf("bad body: err = %v, want ErrInvalidWAV", err)
	}

	x := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	if _, err := x.Synthesize(context.Background(), "hi", tts.Voice{}); err == nil {
		t.Error("XTTS without voice: expected error")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case detailsEndpoint:
			_ = json.NewEncoder(w).Encode(detailsResponse{ModelName: "vits", Speakers: []string{"p260", "p225"}})
		case studioSpeakersEndpoint:
			_, _ = w.Write([]byte(`{"Zed":{},"Ana":{}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		mode APIMode
		want []string
	}{
		{APIModeStandard, []string{"p225", "p260"}},
		{APIModeXTTS, []string{"Ana", "Zed"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			voices, err := mustNew(t, srv.URL, WithAPIMode(tt.mode)).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.want) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.want))
			}
			for i, v := range voices {
				if v.ID != tt.want[i] || v.Provider != "coqui" {
					t.Errorf("voice %d = %+v, want ID %q", i, v, tt.want[i])
				}
			}
		})
	}
}

func TestListVoices_SingleSpeaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(detailsResponse{ModelName: "tacotron2"})
	}))
	defer srv.Close()

	voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].Name != "tacotron2" || voices[0].ID != "" {
		t.Errorf("voices = %+v", voices)
	}
}
