package conversation

import "time"

// Tuning holds the conversation parameters that can change at runtime.
type Tuning struct {
	// ListenTimeout is how long to wait for speech to start.
	ListenTimeout time.Duration

	// UnclearBudget is the number of unintelligible turns that end a
	// conversation. Each one below the budget earns an apology.
	UnclearBudget int
	// SilenceBudget is the number of silent turns that end a conversation.
	SilenceBudget int
	// ErrorBudget is the number of consecutive recognition failures that end
	// a conversation. Zero retries without limit.
	ErrorBudget int

	// Acknowledgement is spoken after waking. Empty skips it.
	Acknowledgement string
	// ExitPhrases end the conversation when heard anywhere in a request.
	ExitPhrases []string

	AcknowledgementPause time.Duration
	ApologyPause         time.Duration
	PostSpeechDelay      time.Duration
	InterruptPause       time.Duration
	// RetryDelay separates a silent or failed turn from the next attempt.
	RetryDelay time.Duration
}

// DefaultExitPhrases end a conversation unless configured otherwise.
var DefaultExitPhrases = []string{"goodbye", "go to sleep", "stop listening", "that's all"}

// DefaultTuning returns the standard conversation parameters.
func DefaultTuning() Tuning {
	return Tuning{
		ListenTimeout:        5 * time.Second,
		UnclearBudget:        2,
		SilenceBudget:        1,
		ErrorBudget:          0,
		Acknowledgement:      "Yes?",
		ExitPhrases:          append([]string(nil), DefaultExitPhrases...),
		AcknowledgementPause: 300 * time.Millisecond,
		ApologyPause:         time.Second,
		PostSpeechDelay:      500 * time.Millisecond,
		InterruptPause:       300 * time.Millisecond,
		RetryDelay:           500 * time.Millisecond,
	}
}

func (t Tuning) normalized() Tuning {
	if t.ListenTimeout <= 0 {
		t.ListenTimeout = DefaultTuning().ListenTimeout
	}
	t.UnclearBudget = max(t.UnclearBudget, 1)
	t.SilenceBudget = max(t.SilenceBudget, 1)
	t.ErrorBudget = max(t.ErrorBudget, 0)
	t.ExitPhrases = append([]string(nil), t.ExitPhrases...)
	return t
}
