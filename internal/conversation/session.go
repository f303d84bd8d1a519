// Package conversation runs the assistant's conversation loop.
//
// A [Session] sleeps until its [Waker] reports a wake event, acknowledges,
// then alternates between listening and answering until the user falls
// silent, stays unintelligible, says an exit phrase or asks it to sleep.
// Replies can be interrupted by any [InterruptSource].
//
//	Sleeping → Acknowledging → Listening ⇄ Thinking → Speaking → Cooldown
//	                               ↓ (budget exhausted, exit phrase, Sleep)
//	                            Sleeping
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vigil/internal/history"
	"github.com/MrWong99/vigil/internal/listen"
	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/internal/respond"
	"github.com/MrWong99/vigil/internal/speech"
)

// ErrShutdownRequested is returned by [Session.Run] once its context is
// done. The context's cause is wrapped alongside it.
var ErrShutdownRequested = errors.New("conversation: shutdown requested")

// errSleepRequested ends the current conversation on [Session.Sleep].
var errSleepRequested = errors.New("conversation: sleep requested")

// Spoken notices.
const (
	Apology        = "Sorry, I didn't catch that."
	TroubleNotice  = "I'm having trouble understanding. Going to sleep."
	Farewell       = "Going to sleep."
	ResponseFailed = "Sorry, something went wrong."
)

// Speaker speaks text and can be told to stop early. It is implemented by
// speech.Pipeline.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Stop()
}

// Canceler stops the clip currently playing. It is implemented by
// playback.Controller.
type Canceler interface {
	Cancel()
}

// IntentReporter is implemented by responders that classify requests, such
// as respond.Router. The classified intent is stored with each turn.
type IntentReporter interface {
	LastIntent() respond.Intent
}

var _ IntentReporter = (*respond.Router)(nil)

// Option configures a [Session].
type Option func(*Session)

// WithTuning sets the initial tuning. See [Session.SetTuning].
func WithTuning(t Tuning) Option {
	return func(s *Session) { s.tuning = t.normalized() }
}

// WithHistory stores turns in h instead of an in-process window.
func WithHistory(h history.Store) Option {
	return func(s *Session) { s.history = h }
}

// WithInterrupts adds sources of barge-in requests.
func WithInterrupts(srcs ...InterruptSource) Option {
	return func(s *Session) { s.sources = append(s.sources, srcs...) }
}

// WithPlayer lets interrupts cut the clip in flight instead of waiting for
// the current speech unit to finish.
func WithPlayer(p Canceler) Option {
	return func(s *Session) { s.player = p }
}

// WithMetrics records turns, transitions, wake events and interrupts.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Snapshot describes a session for observers.
type Snapshot struct {
	State          State     `json:"state"`
	Since          time.Time `json:"since"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Unclear        int       `json:"unclear"`
	Silence        int       `json:"silence"`
	Errors         int       `json:"errors"`
}

// Session is the conversation state machine. Run drives it from a single
// goroutine; the other methods are safe for concurrent use.
type Session struct {
	waker      Waker
	recognizer listen.Recognizer
	responder  respond.Responder
	speaker    Speaker
	player     Canceler
	history    history.Store
	sources    []InterruptSource
	metrics    *observe.Metrics

	interrupts chan struct{}

	mu        sync.Mutex
	tuning    Tuning
	snap      Snapshot
	endConv   context.CancelCauseFunc
	listeners []func(old, new State)
}

// New creates a Session.
func New(w Waker, r listen.Recognizer, resp respond.Responder, spk Speaker, opts ...Option) *Session {
	s := &Session{
		waker:      w,
		recognizer: r,
		responder:  resp,
		speaker:    spk,
		tuning:     DefaultTuning(),
		interrupts: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	if s.history == nil {
		s.history = history.NewMemoryStore(history.DefaultMaxTurns)
	}
	s.snap.Since = time.Now()
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State
}

// Snapshot returns the current state and counters.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// OnStateChange registers fn to be called after every transition. It runs on
// the session goroutine and must not block.
func (s *Session) OnStateChange(fn func(old, new State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Tuning returns the tuning in effect.
func (s *Session) Tuning() Tuning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tuning
}

// SetTuning replaces the tuning. Budgets apply from the next listening turn,
// everything else from the next use.
func (s *Session) SetTuning(t Tuning) {
	s.mu.Lock()
	s.tuning = t.normalized()
	s.mu.Unlock()
	slog.Info("conversation: tuning updated")
}

// Sleep ends the current conversation: whatever is in progress is abandoned,
// the farewell is spoken and the session returns to Sleeping. It is a no-op
// while sleeping.
func (s *Session) Sleep() {
	s.mu.Lock()
	end := s.endConv
	s.mu.Unlock()
	if end != nil {
		end(errSleepRequested)
	}
}

// Interrupt stops the reply being spoken, if any.
func (s *Session) Interrupt() {
	select {
	case s.interrupts <- struct{}{}:
	default:
	}
}

// Run sleeps, converses and sleeps again until ctx is done, then returns
// ErrShutdownRequested. It returns early only if the waker fails.
func (s *Session) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	rctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		wg.Wait()
	}()
	for _, src := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.forward(rctx, src)
		}()
	}

	for {
		s.setState(ctx, Sleeping)
		ev, err := s.waker.WaitForWake(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return s.shutdown(ctx)
			}
			return fmt.Errorf("conversation: %w", err)
		}
		if s.metrics != nil {
			s.metrics.WakeEvents.Add(ctx, 1)
		}
		slog.Info("conversation: woke up", "ratio", ev.Ratio)

		s.converse(ctx)
		if ctx.Err() != nil {
			return s.shutdown(ctx)
		}
	}
}

func (s *Session) shutdown(ctx context.Context) error {
	s.setState(context.WithoutCancel(ctx), Sleeping)
	return fmt.Errorf("%w: %w", ErrShutdownRequested, context.Cause(ctx))
}

func (s *Session) forward(ctx context.Context, src InterruptSource) {
	ch := src.Interrupts()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			s.Interrupt()
		}
	}
}

// converse runs one conversation from acknowledgement to sleep.
func (s *Session) converse(ctx context.Context) {
	id := uuid.NewString()
	cctx, end := context.WithCancelCause(observe.WithConversation(ctx, id))
	s.begin(id, end)
	defer func() {
		end(nil)
		s.finish(ctx, id)
	}()
	log := observe.Logger(cctx)
	log.Info("conversation: started")

	// goodbye speaks text unless the process is shutting down. It runs on
	// ctx so it still works after Sleep cancelled the conversation.
	goodbye := func(text, reason string) {
		log.Info("conversation: going to sleep", "reason", reason)
		if ctx.Err() != nil || text == "" {
			return
		}
		s.setState(ctx, Speaking)
		_, _ = s.say(ctx, text)
	}
	ended := func() bool {
		if cctx.Err() == nil {
			return false
		}
		if ctx.Err() == nil {
			goodbye(Farewell, "requested")
		}
		return true
	}

	tun := s.Tuning()
	s.setState(cctx, Acknowledging)
	if tun.Acknowledgement != "" {
		_, _ = s.say(cctx, tun.Acknowledgement)
	}
	pause(cctx, tun.AcknowledgementPause)

	for {
		if ended() {
			return
		}
		tun = s.Tuning()
		s.setState(cctx, Listening)
		res := s.recognizer.Listen(cctx, tun.ListenTimeout)
		if ended() {
			return
		}
		if s.metrics != nil {
			s.metrics.RecordTurn(cctx, res.Status.String())
		}

		switch res.Status {
		case listen.Success:
			s.count(func(sn *Snapshot) { sn.Unclear, sn.Silence, sn.Errors = 0, 0, 0 })
			log.Info("conversation: heard", "text", res.Text)
			if s.isExit(res.Text, tun.ExitPhrases) {
				goodbye(Farewell, "exit phrase")
				return
			}
			if s.answer(cctx, log, id, res.Text, tun) {
				goodbye("", "ended by responder")
				return
			}

		case listen.Unclear:
			n := s.count(func(sn *Snapshot) { sn.Unclear++ }).Unclear
			if n >= tun.UnclearBudget {
				goodbye(TroubleNotice, "unclear budget exhausted")
				return
			}
			log.Info("conversation: not understood", "count", n)
			s.setState(cctx, Speaking)
			_, _ = s.say(cctx, Apology)
			s.setState(cctx, Cooldown)
			pause(cctx, tun.ApologyPause)

		case listen.Timeout:
			n := s.count(func(sn *Snapshot) { sn.Silence++ }).Silence
			if n >= tun.SilenceBudget {
				goodbye(Farewell, "silence")
				return
			}
			log.Info("conversation: silence", "count", n)
			pause(cctx, tun.RetryDelay)

		default:
			n := s.count(func(sn *Snapshot) { sn.Errors++ }).Errors
			log.Warn("conversation: recognition failed", "err", res.Err, "count", n)
			if tun.ErrorBudget > 0 && n >= tun.ErrorBudget {
				goodbye(Farewell, "recognition keeps failing")
				return
			}
			pause(cctx, tun.RetryDelay)
		}
	}
}

// answer responds to one understood request and speaks the reply. It
// reports whether the responder ended the conversation.
func (s *Session) answer(ctx context.Context, log *slog.Logger, id, text string, tun Tuning) (end bool) {
	s.setState(ctx, Thinking)
	turns, err := s.history.Recent(ctx, id, 0)
	if err != nil {
		log.Warn("conversation: load history", "err", err)
	}
	reply, err := s.responder.Respond(ctx, text, turns)
	if errors.Is(err, respond.ErrEndConversation) {
		if reply = speech.CleanForSpeech(reply); reply == "" {
			reply = Farewell
		}
		s.setState(ctx, Speaking)
		_, _ = s.say(ctx, reply)
		return true
	}
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Error("conversation: respond", "err", err)
		s.setState(ctx, Speaking)
		_, _ = s.say(ctx, ResponseFailed)
		return false
	}

	turn := history.Turn{User: text, Assistant: reply, At: time.Now()}
	if ir, ok := s.responder.(IntentReporter); ok {
		turn.Intent = ir.LastIntent().Kind.String()
	}
	if err := s.history.Append(ctx, id, turn); err != nil {
		log.Warn("conversation: store turn", "err", err)
	}

	s.setState(ctx, Speaking)
	interrupted, err := s.say(ctx, speech.CleanForSpeech(reply))
	switch {
	case interrupted:
		log.Info("conversation: interrupted")
		pause(ctx, tun.InterruptPause)
		return false
	case err != nil && ctx.Err() == nil:
		log.Error("conversation: speak reply", "err", err)
		return false
	}
	s.setState(ctx, Cooldown)
	pause(ctx, tun.PostSpeechDelay)
	return false
}

// say speaks text, stopping early on an interrupt. Interrupts that arrived
// before speaking started are discarded.
func (s *Session) say(ctx context.Context, text string) (interrupted bool, err error) {
	select {
	case <-s.interrupts:
	default:
	}
	done := make(chan error, 1)
	go func() { done <- s.speaker.Speak(ctx, text) }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, speech.ErrStopped) {
			observe.Logger(ctx).Warn("conversation: speak", "text", text, "err", err)
		}
		return false, err
	case <-s.interrupts:
		if s.player != nil {
			s.player.Cancel()
		}
		s.speaker.Stop()
		<-done
		if s.metrics != nil {
			s.metrics.Interrupts.Add(ctx, 1)
		}
		return true, nil
	}
}

func (s *Session) isExit(text string, phrases []string) bool {
	tokens := respond.Tokens(text)
	for _, p := range phrases {
		if _, ok := respond.ContainsPhrase(tokens, strings.ToLower(p)); ok {
			return true
		}
	}
	return false
}

func (s *Session) begin(id string, end context.CancelCauseFunc) {
	s.mu.Lock()
	s.snap.ConversationID = id
	s.snap.Unclear, s.snap.Silence, s.snap.Errors = 0, 0, 0
	s.endConv = end
	s.mu.Unlock()
}

func (s *Session) finish(ctx context.Context, id string) {
	s.mu.Lock()
	s.snap.ConversationID = ""
	s.snap.Unclear, s.snap.Silence, s.snap.Errors = 0, 0, 0
	s.endConv = nil
	s.mu.Unlock()
	if err := s.history.Forget(context.WithoutCancel(ctx), id); err != nil {
		slog.Warn("conversation: forget history", "conversation_id", id, "err", err)
	}
}

// count applies fn to the counters and returns the result.
func (s *Session) count(fn func(*Snapshot)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.snap)
	return s.snap
}

func (s *Session) setState(ctx context.Context, next State) {
	s.mu.Lock()
	prev := s.snap.State
	if prev == next {
		s.mu.Unlock()
		return
	}
	s.snap.State = next
	s.snap.Since = time.Now()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()

	slog.Debug("conversation: state", "from", prev.String(), "to", next.String())
	if s.metrics != nil {
		s.metrics.RecordTransition(context.WithoutCancel(ctx), prev.String(), next.String())
	}
	for _, fn := range listeners {
		fn(prev, next)
	}
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
