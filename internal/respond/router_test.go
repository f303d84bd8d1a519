package respond

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/pkg/provider/llm"
	llmmock "github.com/MrWong99/vigil/pkg/provider/llm/mock"
)

func TestKeywordClassification(t *testing.T) {
	t.Parallel()

	r := NewRouter(nil)
	tests := []struct {
		text string
		want Kind
		app  string
	}{
		{"What's the weather like?", GeneralQuery, ""},
		{"good morning", GeneralQuery, ""},
		{"that is quite enough", GeneralQuery, ""},
		{"Please install htop", InstallPackage, ""},
		{"execute ls", ExecuteCommand, ""},
		{"run this script for me", ExecuteCommand, ""},
		{"Open the Firefox browser", LaunchApp, "firefox"},
		{"please lunch spotify", LaunchApp, ""},
		{"close the terminal", CloseApp, "terminal"},
		{"Goodbye, Vigil.", Exit, ""},
		{"that's all for now", Exit, ""},
		{"okay go to sleep", Exit, ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			in := r.Classify(context.Background(), tt.text)
			if in.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", in.Kind, tt.want)
			}
			if in.App != tt.app {
				t.Errorf("App = %q, want %q", in.App, tt.app)
			}
			if in.Source != "keywords" {
				t.Errorf("Source = %q", in.Source)
			}
		})
	}
}

func TestModelClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		answer string
		err    error
		want   Kind
		source string
	}{
		{"valid", "launch_app", nil, LaunchApp, "llm"},
		{"decorated", " Exit.\n", nil, Exit, "llm"},
		{"outside the set", "banana", nil, CloseApp, "keywords"},
		{"backend error", "", errors.New("timeout"), CloseApp, "keywords"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &llmmock.Provider{CompleteErr: tt.err}
			if tt.err == nil {
				p.CompleteResponse = &llm.CompletionResponse{Content: tt.answer}
			}
			r := NewRouter(nil, WithClassifier(p))
			in := r.Classify(context.Background(), "close the editor")
			if in.Kind != tt.want || in.Source != tt.source {
				t.Errorf("intent = %+v, want %v from %s", in, tt.want, tt.source)
			}

			req := p.Calls()[0].Req
			if req.SystemPrompt != classifierSystemPrompt {
				t.Errorf("system prompt = %q", req.SystemPrompt)
			}
			prompt := req.Messages[0].Content
			for _, name := range kindNames {
				if !strings.Contains(prompt, name) {
					t.Errorf("prompt misses intent %q", name)
				}
			}
		})
	}
}

func TestRouter_Dispatch(t *testing.T) {
	t.Parallel()

	var fallbackTurns []history.Turn
	fallback := Func(func(_ context.Context, u string, turns []history.Turn) (string, error) {
		fallbackTurns = turns
		return "answer to " + u, nil
	})
	r := NewRouter(fallback,
		WithHandler(Exit, EndConversation("Going to sleep.")),
		WithUnsupported(LaunchApp, CloseApp, ExecuteCommand, InstallPackage),
	)
	ctx := context.Background()
	turns := []history.Turn{{User: "earlier"}}

	got, err := r.Respond(ctx, "what is two plus two", turns)
	if err != nil || got != "answer to what is two plus two" {
		t.Errorf("general: %q, %v", got, err)
	}
	if len(fallbackTurns) != 1 {
		t.Errorf("fallback did not receive the history")
	}
	if r.LastIntent().Kind != GeneralQuery {
		t.Errorf("LastIntent = %v", r.LastIntent().Kind)
	}

	got, err = r.Respond(ctx, "launch firefox", nil)
	if err != nil || got != UnsupportedReply {
		t.Errorf("launch: %q, %v", got, err)
	}
	if in := r.LastIntent(); in.Kind != LaunchApp || in.App != "firefox" {
		t.Errorf("LastIntent = %+v", in)
	}

	got, err = r.Respond(ctx, "goodbye", nil)
	if !errors.Is(err, ErrEndConversation) || got != "Going to sleep." {
		t.Errorf("exit: %q, %v", got, err)
	}
}

func TestRouter_NoFallback(t *testing.T) {
	t.Parallel()
	got, err := NewRouter(nil).Respond(context.Background(), "what time is it", nil)
	if err != nil || got != UnsupportedReply {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	for k := GeneralQuery; k <= Exit; k++ {
		back, ok := ParseKind(strings.ToUpper(k.String()))
		if !ok || back != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), back, ok)
		}
	}
	if _, ok := ParseKind("dance"); ok {
		t.Error("ParseKind accepted an unknown intent")
	}
	if Kind(42).String() != "Kind(42)" {
		t.Errorf("String = %q", Kind(42).String())
	}
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text, phrase string
		want         bool
	}{
		{"please stop listening now", "stop listening", true},
		{"stop", "stop listening", false},
		{"open it", "open", true},
		{"opens", "open", false},
		{"instal vim", "install", true},
		{"", "install", false},
		{"install", "", false},
	}
	for _, tt := range tests {
		if _, got := ContainsPhrase(Tokens(tt.text), tt.phrase); got != tt.want {
			t.Errorf("ContainsPhrase(%q, %q) = %v, want %v", tt.text, tt.phrase, got, tt.want)
		}
	}
}
