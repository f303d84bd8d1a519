package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/pkg/provider/llm"
	llmmock "github.com/MrWong99/vigil/pkg/provider/llm/mock"
)

func TestLLM_BuildsConversation(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  It is sunny today.  "}}
	r := NewLLM(p)
	turns := []history.Turn{
		{User: "hi", Assistant: "Hello! How can I help?"},
		{User: "what day is it", Assistant: "It is Tuesday."},
	}

	got, err := r.Respond(context.Background(), "and the weather?", turns)
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if got != "It is sunny today." {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	req := calls[0].Req
	if req.SystemPrompt != DefaultSystemPrompt || req.MaxTokens != DefaultMaxTokens || req.Temperature != DefaultTemperature {
		t.Errorf("request options = %q / %d / %v", req.SystemPrompt[:20], req.MaxTokens, req.Temperature)
	}
	wantRoles := []string{llm.RoleUser, llm.RoleAssistant, llm.RoleUser, llm.RoleAssistant, llm.RoleUser}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", req.Messages)
	}
	for i, role := range wantRoles {
		if req.Messages[i].Role != role {
			t.Errorf("message %d role = %q, want %q", i, req.Messages[i].Role, role)
		}
	}
	if last := req.Messages[len(req.Messages)-1]; last.Content != "and the weather?" {
		t.Errorf("last message = %+v", last)
	}
}

func TestLLM_TrimsOldestTurnsToFitWindow(t *testing.T) {
	t.Parallel()

	// Every 40-character message estimates to 14 tokens; the system prompt
	// "Be brief." to 7. A window of 87 with 10 reply tokens leaves room for
	// exactly five messages.
	pad := func(s string) string { return fmt.Sprintf("%-40s", s) }
	var turns []history.Turn
	for i := range 5 {
		turns = append(turns, history.Turn{User: pad(fmt.Sprintf("question %d", i)), Assistant: pad(fmt.Sprintf("answer %d", i))})
	}
	p := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "ok"},
		ModelCapabilities: llm.Capabilities{ContextWindow: 87},
	}
	r := NewLLM(p, WithSystemPrompt("Be brief."), WithMaxTokens(10))

	if _, err := r.Respond(context.Background(), pad("latest"), turns); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	msgs := p.Calls()[0].Req.Messages
	if len(msgs) != 5 {
		t.Fatalf("kept %d messages, want 5: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != llm.RoleUser || !strings.HasPrefix(msgs[0].Content, "question 3") {
		t.Errorf("first kept message = %+v, want question 3", msgs[0])
	}
	if !strings.HasPrefix(msgs[4].Content, "latest") {
		t.Errorf("utterance dropped: %+v", msgs[4])
	}
}

func TestLLM_KeepsUtteranceWhenWindowTiny(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "ok"},
		ModelCapabilities: llm.Capabilities{ContextWindow: 1},
	}
	r := NewLLM(p)
	_, _ = r.Respond(context.Background(), "hello", []history.Turn{{User: "a", Assistant: "b"}})
	if msgs := p.Calls()[0].Req.Messages; len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestLLM_Errors(t *testing.T) {
	t.Parallel()

	errBackend := errors.New("backend down")
	tests := []struct {
		name string
		p    *llmmock.Provider
		want error
	}{
		{"provider error", &llmmock.Provider{CompleteErr: errBackend}, errBackend},
		{"blank reply", &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " \n"}}, ErrEmptyReply},
		{"nil reply", &llmmock.Provider{}, ErrEmptyReply},
		{"token counting", &llmmock.Provider{CountTokensErr: errBackend, ModelCapabilities: llm.Capabilities{ContextWindow: 1000}}, errBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLLM(tt.p).Respond(context.Background(), "hi", nil)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()
	var r Responder = Func(func(_ context.Context, u string, _ []history.Turn) (string, error) { return "echo " + u, nil })
	if got, _ := r.Respond(context.Background(), "x", nil); got != "echo x" {
		t.Errorf("got %q", got)
	}
}
