package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/stt"
)

func TestBuildURL_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(16000, stt.Config{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		param string
		want  string
	}{
		{"nova-3", "keyterm", "Vigil"},
		{"nova-2", "keywords", "Vigil:2"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			t.Parallel()
			p, _ := New("key", WithModel(tt.model))
			rawURL, err := p.buildURL(0, stt.Config{Language: "de-DE", Keywords: []string{"Vigil"}})
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, _ := url.Parse(rawURL)
			q := u.Query()
			assertEqual(t, tt.param, tt.want, q.Get(tt.param))
			assertEqual(t, "language", "de-DE", q.Get("language"))
			assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
		})
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// fakeDeepgram accepts one stream, counts the audio bytes it receives and
// answers CloseStream with the scripted messages followed by Metadata.
func fakeDeepgram(t *testing.T, messages []string, received *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				received.Add(int64(len(data)))
				continue
			}
			if strings.Contains(string(data), "CloseStream") {
				break
			}
		}
		for _, m := range messages {
			if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
				return
			}
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"Metadata"}`))
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTranscribe_JoinsFinalResults(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	srv := fakeDeepgram(t, []string{
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what","confidence":0.5}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"What time","confidence":0.8}]}}`,
		`not json`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"is it?","confidence":1.0}]}}`,
	}, &received)

	p, _ := New("key", WithEndpoint(wsURL(srv)))
	clip := audio.Clip{Samples: make([]int16, 4000), SampleRate: 16000}
	got, err := p.Transcribe(context.Background(), clip, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "What time is it?" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Confidence < 0.89 || got.Confidence > 0.91 {
		t.Errorf("Confidence = %v, want 0.9", got.Confidence)
	}
	if n := received.Load(); n != 8000 {
		t.Errorf("server received %d audio bytes, want 8000", n)
	}
}

func TestTranscribe_NothingHeard(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	srv := fakeDeepgram(t, []string{
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"","confidence":0}]}}`,
	}, &received)
	p, _ := New("key", WithEndpoint(wsURL(srv)))
	got, err := p.Transcribe(context.Background(), audio.Clip{Samples: make([]int16, 100), SampleRate: 16000}, stt.Config{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "" {
		t.Errorf("Text = %q, want empty", got.Text)
	}
}

func TestTranscribe_Unauthorized(t *testing.T) {
	t.Parallel()

	var received atomic.Int64
	srv := fakeDeepgram(t, nil, &received)
	p, _ := New("wrong", WithEndpoint(wsURL(srv)))
	if _, err := p.Transcribe(context.Background(), audio.Clip{Samples: []int16{1}, SampleRate: 16000}, stt.Config{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestTranscribe_EmptyClip(t *testing.T) {
	t.Parallel()
	p, _ := New("key")
	if _, err := p.Transcribe(context.Background(), audio.Clip{}, stt.Config{}); !errors.Is(err, stt.ErrEmptyAudio) {
		t.Errorf("err = %v, want ErrEmptyAudio", err)
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
