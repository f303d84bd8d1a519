// Package listen turns the microphone stream into one transcribed request.
//
// A [Listener] opens a capture subscription, waits for the voice activity
// detector to report the start of speech, records until the speaker pauses
// (or the phrase limit is reached) and hands the recording to a
// speech-to-text provider. Waiting and recording are measured in captured
// audio time, so a scripted source in tests behaves exactly like a live
// microphone.
package listen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/vigil/internal/observe"
	"github.com/MrWong99/vigil/pkg/audio"
	"github.com/MrWong99/vigil/pkg/provider/stt"
	"github.com/MrWong99/vigil/pkg/provider/vad"
)

var (
	// ErrRecognitionTimeout means no speech started within the timeout.
	ErrRecognitionTimeout = errors.New("listen: no speech before timeout")

	// ErrRecognitionUnclear means speech was heard but nothing intelligible
	// came out of recognition.
	ErrRecognitionUnclear = errors.New("listen: speech not understood")

	// ErrRecognitionError wraps capture, detector and provider failures.
	ErrRecognitionError = errors.New("listen: recognition failed")
)

// Status classifies the outcome of one Listen call.
type Status int

const (
	Success Status = iota
	Timeout
	Unclear
	Error
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Unclear:
		return "unclear"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of one Listen call. Text is set only for Success;
// Err is set for every other status and matches the corresponding sentinel.
type Result struct {
	Text       string
	Status     Status
	Err        error
	Confidence float64
	// Speech is the length of the recorded utterance.
	Speech time.Duration
}

// Recognizer captures and transcribes one spoken request.
type Recognizer interface {
	Listen(ctx context.Context, timeout time.Duration) Result
}

// Opener opens the capture stream for one Listen call. The returned source is
// closed when the call ends. audio.Tap.Subscribe fits after adapting its
// return type.
type Opener func() (audio.Source, error)

// Defaults.
const (
	DefaultPhraseLimit = 10 * time.Second
	DefaultPreroll     = 300 * time.Millisecond
)

// Config tunes a Listener.
type Config struct {
	// PhraseLimit caps the length of one recorded utterance.
	PhraseLimit time.Duration

	// Preroll is how much audio before the detected onset is kept, so the
	// first syllable is not clipped.
	Preroll time.Duration

	VAD vad.Config
	STT stt.Config
}

// Option configures a Listener.
type Option func(*Listener)

// WithMetrics records recognition latency.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Listener) { l.metrics = m }
}

// WithProviderName labels provider metrics.
func WithProviderName(name string) Option {
	return func(l *Listener) { l.providerName = name }
}

// Listener implements [Recognizer] with a VAD endpointer and an STT provider.
type Listener struct {
	open         Opener
	engine       vad.Engine
	stt          stt.Provider
	cfg          Config
	metrics      *observe.Metrics
	providerName string
}

var _ Recognizer = (*Listener)(nil)

// New creates a Listener.
func New(open Opener, engine vad.Engine, provider stt.Provider, cfg Config, opts ...Option) *Listener {
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = DefaultPhraseLimit
	}
	if cfg.Preroll < 0 {
		cfg.Preroll = 0
	}
	l := &Listener{open: open, engine: engine, stt: provider, cfg: cfg, providerName: "stt"}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Listen waits up to timeout of captured audio for speech to start, records
// it and transcribes it. Listen never panics on device or provider failures;
// they are reported as Status Error.
func (l *Listener) Listen(ctx context.Context, timeout time.Duration) Result {
	start := time.Now()
	res := l.listen(ctx, timeout)
	if l.metrics != nil {
		l.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("status", res.Status.String())))
	}
	observe.Logger(ctx).Debug("listen: turn finished",
		"status", res.Status, "speech", res.Speech, "elapsed", time.Since(start))
	return res
}

func (l *Listener) listen(ctx context.Context, timeout time.Duration) Result {
	clip, err := l.record(ctx, timeout)
	switch {
	case errors.Is(err, ErrRecognitionTimeout):
		return Result{Status: Timeout, Err: err}
	case err != nil:
		return failed(err)
	}

	tctx, span := observe.StartSpan(ctx, "listen.transcribe")
	defer span.End()
	tr, err := l.stt.Transcribe(tctx, clip, l.cfg.STT)
	if err != nil {
		if l.metrics != nil {
			l.metrics.RecordProviderRequest(ctx, l.providerName, "stt", "error")
			l.metrics.RecordProviderError(ctx, l.providerName, "stt")
		}
		if ctx.Err() != nil {
			return failed(ctx.Err())
		}
		return failed(fmt.Errorf("transcribe: %w", err))
	}
	if l.metrics != nil {
		l.metrics.RecordProviderRequest(ctx, l.providerName, "stt", "ok")
	}
	if tr.Text == "" {
		return Result{Status: Unclear, Err: ErrRecognitionUnclear, Speech: clip.Duration()}
	}
	return Result{Text: tr.Text, Status: Success, Confidence: tr.Confidence, Speech: clip.Duration()}
}

func failed(err error) Result {
	return Result{Status: Error, Err: fmt.Errorf("%w: %w", ErrRecognitionError, err)}
}

// record returns the utterance, ErrRecognitionTimeout when no speech began
// within timeout, or a capture/detector error.
func (l *Listener) record(ctx context.Context, timeout time.Duration) (audio.Clip, error) {
	src, err := l.open()
	if err != nil {
		return audio.Clip{}, fmt.Errorf("open capture: %w", err)
	}
	defer src.Close()

	sess, err := l.engine.NewSession(l.cfg.VAD)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("vad session: %w", err)
	}
	defer sess.Close()

	// A live device delivers audio in real time; the wall-clock guard only
	// matters when capture stalls.
	guard := timeout + l.cfg.PhraseLimit + 2*time.Second
	gctx, cancel := context.WithTimeout(ctx, guard)
	defer cancel()

	var (
		preroll  []audio.Frame
		prerollD time.Duration
		samples  []int16
		rate     int
		waited   time.Duration
		speech   time.Duration
		started  bool
	)
	for {
		frame, err := src.ReadFrame(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return audio.Clip{}, ctx.Err()
			}
			if gctx.Err() != nil {
				if !started {
					return audio.Clip{}, ErrRecognitionTimeout
				}
				break
			}
			return audio.Clip{}, fmt.Errorf("capture: %w", err)
		}
		rate = frame.SampleRate
		d := frame.Duration()

		ev, err := sess.ProcessFrame(frame.Samples)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("vad: %w", err)
		}

		if !started {
			if ev.Type == vad.SpeechStart || ev.Type == vad.SpeechContinue {
				started = true
				for _, f := range preroll {
					samples = append(samples, f.Samples...)
				}
				preroll = nil
				samples = append(samples, frame.Samples...)
				speech = d
				continue
			}
			waited += d
			if timeout > 0 && waited >= timeout {
				return audio.Clip{}, ErrRecognitionTimeout
			}
			preroll = append(preroll, frame)
			prerollD += d
			for len(preroll) > 1 && prerollD-preroll[0].Duration() >= l.cfg.Preroll {
				prerollD -= preroll[0].Duration()
				preroll = preroll[1:]
			}
			continue
		}

		samples = append(samples, frame.Samples...)
		speech += d
		if ev.Type == vad.SpeechEnd || speech >= l.cfg.PhraseLimit {
			break
		}
	}
	return audio.Clip{Samples: samples, SampleRate: rate}, nil
}
