package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/stt"
	"github.com/MrWong99/vigil/pkg/provider/stt/whisper"
)

type inferenceRequest struct {
	fields map[string]string
	clip   audio.Clip
}

// newMockServer answers POST /inference with text and records what it got.
func newMockServer(t *testing.T, text string, status int) (*httptest.Server, func() []inferenceRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []inferenceRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		clip, err := audio.DecodeWAV(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fields := map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		mu.Lock()
		reqs = append(reqs, inferenceRequest{fields: fields, clip: clip})
		mu.Unlock()

		if status != http.StatusOK {
			http.Error(w, "model not loaded", status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)
	return srv, func() []inferenceRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]inferenceRequest(nil), reqs...)
	}
}

func speechClip() audio.Clip {
	s := make([]int16, 8000)
	for i := range s {
		s[i] = int16((i % 40) * 200)
	}
	return audio.Clip{Samples: s, SampleRate: 16000}
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_UploadsWAVAndReturnsText(t *testing.T) {
	t.Parallel()

	srv, reqs := newMockServer(t, " What time is it? ", http.StatusOK)
	p, err := whisper.New(srv.URL+"/", whisper.WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip := speechClip()
	got, err := p.Transcribe(context.Background(), clip, stt.Config{Keywords: []string{"Vigil"}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "What time is it?" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Duration != 500*time.Millisecond {
		t.Errorf("Duration = %v, want 500ms", got.Duration)
	}

	rs := reqs()
	if len(rs) != 1 {
		t.Fatalf("server saw %d requests, want 1", len(rs))
	}
	r := rs[0]
	if r.fields["language"] != "en" || r.fields["model"] != "base.en" || r.fields["prompt"] != "Vigil" {
		t.Errorf("form fields = %v", r.fields)
	}
	if r.clip.SampleRate != 16000 || len(r.clip.Samples) != len(clip.Samples) {
		t.Errorf("uploaded %d samples @ %d Hz", len(r.clip.Samples), r.clip.SampleRate)
	}
}

func TestTranscribe_LanguageOverride(t *testing.T) {
	t.Parallel()

	srv, reqs := newMockServer(t, "hallo", http.StatusOK)
	p, _ := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if _, err := p.Transcribe(context.Background(), speechClip(), stt.Config{Language: "de"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := reqs()[0].fields["language"]; got != "de" {
		t.Errorf("language = %q, want de", got)
	}
}

func TestTranscribe_DropsNonSpeechAnnotations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		server string
		want   string
	}{
		{"[BLANK_AUDIO]", ""},
		{" (wind blowing) ", ""},
		{"turn it [music] up", "turn it up"},
		{"hello   there", "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			t.Parallel()
			srv, _ := newMockServer(t, tt.server, http.StatusOK)
			p, _ := whisper.New(srv.URL)
			got, err := p.Transcribe(context.Background(), speechClip(), stt.Config{})
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv, _ := newMockServer(t, "", http.StatusInternalServerError)
	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), speechClip(), stt.Config{}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	t.Parallel()

	p, _ := whisper.New("http://127.0.0.1:1")
	if _, err := p.Transcribe(context.Background(), audio.Clip{SampleRate: 16000}, stt.Config{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv, _ := newMockServer(t, "late", http.StatusOK)
	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, speechClip(), stt.Config{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
