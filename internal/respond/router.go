package respond

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/pkg/provider/llm"
)

// Kind is one of the closed set of intents.
type Kind int

const (
	GeneralQuery Kind = iota
	LaunchApp
	CloseApp
	ExecuteCommand
	InstallPackage
	Exit
)

var kindNames = [...]string{
	GeneralQuery:   "general_query",
	LaunchApp:      "launch_app",
	CloseApp:       "close_app",
	ExecuteCommand: "execute_command",
	InstallPackage: "install_package",
	Exit:           "exit",
}

var kindDescriptions = [...]string{
	GeneralQuery:   "the user asks a question or wants information",
	LaunchApp:      "the user wants to open an application",
	CloseApp:       "the user wants to close an application",
	ExecuteCommand: "the user wants to run a specific command",
	InstallPackage: "the user wants to install software or a package",
	Exit:           "the user wants to end the conversation",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps an intent name to its Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return GeneralQuery, false
}

// Intent is a classified request. App is set for LaunchApp and CloseApp when
// an application name could be extracted.
type Intent struct {
	Kind       Kind
	Text       string
	App        string
	Confidence float64
	// Source is "llm" or "keywords".
	Source string
}

// Handler serves one intent.
type Handler func(ctx context.Context, in Intent, turns []history.Turn) (string, error)

// Reply returns a Handler that always answers text.
func Reply(text string) Handler {
	return func(context.Context, Intent, []history.Turn) (string, error) { return text, nil }
}

// EndConversation returns a Handler that answers farewell and ends the
// conversation.
func EndConversation(farewell string) Handler {
	return func(context.Context, Intent, []history.Turn) (string, error) {
		return farewell, ErrEndConversation
	}
}

// UnsupportedReply is spoken for intents with no handler when the router was
// built with [WithUnsupported].
const UnsupportedReply = "I can't do that yet."

// RouterOption configures a [Router].
type RouterOption func(*Router)

// WithClassifier classifies with a language model before falling back to
// keywords.
func WithClassifier(p llm.Provider) RouterOption {
	return func(r *Router) { r.classifier = p }
}

// WithClassifyTimeout bounds the model classification call.
func WithClassifyTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.classifyTimeout = d
		}
	}
}

// WithKeywords replaces DefaultKeywords.
func WithKeywords(k Keywords) RouterOption {
	return func(r *Router) { r.keywords = matcher{keywords: k} }
}

// WithHandler registers h for kind.
func WithHandler(kind Kind, h Handler) RouterOption {
	return func(r *Router) { r.handlers[kind] = h }
}

// WithUnsupported answers UnsupportedReply for the given kinds unless they
// have a handler.
func WithUnsupported(kinds ...Kind) RouterOption {
	return func(r *Router) {
		for _, k := range kinds {
			if _, ok := r.handlers[k]; !ok {
				r.handlers[k] = Reply(UnsupportedReply)
			}
		}
	}
}

// Router classifies each utterance and dispatches it to the handler for its
// intent. Intents without a handler go to the fallback responder.
type Router struct {
	fallback        Responder
	classifier      llm.Provider
	classifyTimeout time.Duration
	keywords        matcher
	handlers        map[Kind]Handler

	mu   sync.Mutex
	last Intent
}

var _ Responder = (*Router)(nil)

// NewRouter creates a Router that sends unhandled intents to fallback.
func NewRouter(fallback Responder, opts ...RouterOption) *Router {
	r := &Router{
		fallback:        fallback,
		classifyTimeout: 5 * time.Second,
		keywords:        matcher{keywords: DefaultKeywords()},
		handlers:        make(map[Kind]Handler),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Respond implements [Responder].
func (r *Router) Respond(ctx context.Context, utterance string, turns []history.Turn) (string, error) {
	in := r.Classify(ctx, utterance)
	r.mu.Lock()
	r.last = in
	r.mu.Unlock()

	observe.Logger(ctx).Info("respond: intent",
		"intent", in.Kind, "source", in.Source, "app", in.App, "confidence", in.Confidence)

	if h, ok := r.handlers[in.Kind]; ok {
		return h(ctx, in, turns)
	}
	if r.fallback == nil {
		return UnsupportedReply, nil
	}
	return r.fallback.Respond(ctx, utterance, turns)
}

// LastIntent returns the intent of the most recent Respond call.
func (r *Router) LastIntent() Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Classify returns the intent of text. Model answers outside the closed set,
// and model failures, fall back to keyword matching.
func (r *Router) Classify(ctx context.Context, text string) Intent {
	in := Intent{Text: text}
	if kind, ok := r.classifyLLM(ctx, text); ok {
		in.Kind, in.Confidence, in.Source = kind, 0.9, "llm"
	} else {
		in.Kind, in.Confidence, in.Source = r.keywords.classify(text), 0.7, "keywords"
	}
	if in.Kind == LaunchApp || in.Kind == CloseApp {
		in.App = ExtractApp(text)
	}
	return in
}

const classifierSystemPrompt = "You are an intent classifier. Respond with only the intent name."

func (r *Router) classifyLLM(ctx context.Context, text string) (Kind, bool) {
	if r.classifier == nil {
		return GeneralQuery, false
	}
	ctx, cancel := context.WithTimeout(ctx, r.classifyTimeout)
	defer cancel()

	resp, err := r.classifier.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: classifierPrompt(text)}},
		MaxTokens:    10,
	})
	if err != nil || resp == nil {
		observe.Logger(ctx).Warn("respond: intent classification failed, using keywords", "err", err)
		return GeneralQuery, false
	}
	answer := strings.Trim(strings.ToLower(strings.TrimSpace(resp.Content)), ".\"'`")
	if f := strings.Fields(answer); len(f) > 0 {
		answer = f[0]
	}
	return ParseKind(answer)
}

func classifierPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Classify this request into exactly one of these intents:\n\n")
	for k, name := range kindNames {
		fmt.Fprintf(&b, "%d. %s - %s\n", k+1, name, kindDescriptions[k])
	}
	fmt.Fprintf(&b, "\nRequest: %q\n\nAnswer with the intent name only.", text)
	return b.String()
}
