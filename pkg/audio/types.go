package audio

import (
	"context"
	"time"
)

// DefaultSampleRate is the capture rate used throughout Vigil: 16 kHz mono.
const DefaultSampleRate = 16000

// DefaultFrameSamples is the number of samples in one captured frame.
const DefaultFrameSamples = 1024

// Frame is one fixed-size block of mono signed 16-bit samples captured from a
// microphone. A Frame is never modified after capture; the reader owns it.
type Frame struct {
	// Samples holds the PCM samples in capture order.
	Samples []int16

	// SampleRate in Hz.
	SampleRate int

	// Timestamp marks when the frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Duration returns the playing time of the frame.
func (f Frame) Duration() time.Duration {
	return samplesDuration(len(f.Samples), f.SampleRate)
}

// Clip is a complete mono audio payload, typically the output of a single
// text-to-speech request.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playing time of the clip.
func (c Clip) Duration() time.Duration {
	return samplesDuration(len(c.Samples), c.SampleRate)
}

// Empty reports whether the clip carries no samples.
func (c Clip) Empty() bool { return len(c.Samples) == 0 }

func samplesDuration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(rate))
}

// Source is a live stream of captured frames.
//
// ReadFrame blocks until the next frame is available, the context is
// cancelled, or the device fails. Implementations are not required to be safe
// for concurrent readers; use a [Tap] to share one Source.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Output is an exclusive playback device.
//
// Write blocks until the samples have been accepted by the device buffer (not
// until they are audible). Drain blocks until everything written so far has
// been played. Flush discards anything buffered but not yet played.
type Output interface {
	SampleRate() int
	Write(ctx context.Context, samples []int16) error
	Drain(ctx context.Context) error
	Flush()
	Close() error
}

// Backend opens microphones and speakers on one audio library.
//
// Device names are matched case-insensitively, first exactly and then as a
// substring. An empty name selects the system default.
type Backend interface {
	// Name identifies the library ("malgo", "portaudio").
	Name() string

	// Devices lists the capture (capture=true) or playback device names.
	Devices(capture bool) ([]string, error)

	OpenCapture(device string, sampleRate, frameSamples int) (Source, error)
	OpenPlayback(device string, sampleRate int) (Output, error)

	// Close releases the library. Devices opened from it must be closed first.
	Close() error
}
