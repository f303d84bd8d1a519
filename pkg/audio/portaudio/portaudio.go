// Package portaudio implements [audio.Source] and [audio.Output] with
// blocking PortAudio streams (github.com/gordonklaus/portaudio).
//
// Blocking reads and writes return after at most one hardware buffer, so
// context cancellation is observed between buffers.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/vigil/pkg/audio"
)

// ErrDeviceNotFound is returned when a configured device name matches no device.
var ErrDeviceNotFound = errors.New("portaudio: device not found")

var (
	initMu   sync.Mutex
	initRefs int
)

// Init initialises the PortAudio library. Every successful Init must be paired
// with a call to [Terminate].
func Init() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		if err := pa.Initialize(); err != nil {
			return fmt.Errorf("portaudio: initialize: %w", err)
		}
	}
	initRefs++
	return nil
}

// Terminate releases the library once the last user is done.
func Terminate() error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRefs == 0 {
		return nil
	}
	initRefs--
	if initRefs == 0 {
		if err := pa.Terminate(); err != nil {
			return fmt.Errorf("portaudio: terminate: %w", err)
		}
	}
	return nil
}

// Config configures a stream.
type Config struct {
	SampleRate   int
	FrameSamples int
	// Device selects a device by case-insensitive name substring; empty
	// selects the host default.
	Device string
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = audio.DefaultFrameSamples
	}
}

// DeviceNames lists devices with at least one input (capture=true) or output
// channel.
func DeviceNames(capture bool) ([]string, error) {
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	var out []string
	for _, d := range devs {
		if (capture && d.MaxInputChannels > 0) || (!capture && d.MaxOutputChannels > 0) {
			out = append(out, d.Name)
		}
	}
	return out, nil
}

func findDevice(name string, capture bool) (*pa.DeviceInfo, error) {
	if name == "" {
		if capture {
			return pa.DefaultInputDevice()
		}
		return pa.DefaultOutputDevice()
	}
	devs, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio: list devices: %w", err)
	}
	want := strings.ToLower(name)
	for _, d := range devs {
		usable := (capture && d.MaxInputChannels > 0) || (!capture && d.MaxOutputChannels > 0)
		if usable && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a microphone [audio.Source] reading one frame per blocking read.
type Capture struct {
	stream *pa.Stream
	buf    []int16
	rate   int
	read   int64
	once   sync.Once
}

var _ audio.Source = (*Capture)(nil)

// OpenCapture opens and starts a mono input stream. [Init] must have been called.
func OpenCapture(cfg Config) (*Capture, error) {
	cfg.applyDefaults()
	dev, err := findDevice(cfg.Device, true)
	if err != nil {
		return nil, err
	}
	p := pa.LowLatencyParameters(dev, nil)
	p.Input.Channels = 1
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = cfg.FrameSamples

	c := &Capture{buf: make([]int16, cfg.FrameSamples), rate: cfg.SampleRate}
	c.stream, err = pa.OpenStream(p, c.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open capture stream: %w", err)
	}
	if err := c.stream.Start(); err != nil {
		_ = c.stream.Close()
		return nil, fmt.Errorf("portaudio: start capture stream: %w", err)
	}
	return c, nil
}

// ReadFrame implements [audio.Source].
func (c *Capture) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	if err := c.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
		return audio.Frame{}, fmt.Errorf("portaudio: read: %w", err)
	}
	s := make([]int16, len(c.buf))
	copy(s, c.buf)
	ts := time.Duration(c.read * int64(len(s)) * int64(time.Second) / int64(c.rate))
	c.read++
	return audio.Frame{Samples: s, SampleRate: c.rate, Timestamp: ts}, nil
}

// Close stops and closes the stream.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		err = errors.Join(c.stream.Stop(), c.stream.Close())
	})
	return err
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a speaker [audio.Output] writing one buffer per blocking write.
type Playback struct {
	mu      sync.Mutex
	stream  *pa.Stream
	buf     []int16
	rate    int
	latency time.Duration
	once    sync.Once
}

var _ audio.Output = (*Playback)(nil)

// OpenPlayback opens and starts a mono output stream. [Init] must have been called.
func OpenPlayback(cfg Config) (*Playback, error) {
	cfg.applyDefaults()
	dev, err := findDevice(cfg.Device, false)
	if err != nil {
		return nil, err
	}
	params := pa.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FrameSamples

	p := &Playback{buf: make([]int16, cfg.FrameSamples), rate: cfg.SampleRate, latency: dev.DefaultLowOutputLatency}
	p.stream, err = pa.OpenStream(params, p.buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open playback stream: %w", err)
	}
	if err := p.stream.Start(); err != nil {
		_ = p.stream.Close()
		return nil, fmt.Errorf("portaudio: start playback stream: %w", err)
	}
	return p, nil
}

// SampleRate implements [audio.Output].
func (p *Playback) SampleRate() int { return p.rate }

// Write implements [audio.Output]. Samples are written one stream buffer at
// a time; a partial final buffer is padded with silence.
func (p *Playback) Write(ctx context.Context, samples []int16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(p.buf, samples)
		clear(p.buf[n:])
		samples = samples[n:]
		if err := p.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Drain implements [audio.Output] by waiting out the stream's output latency.
func (p *Playback) Drain(ctx context.Context) error {
	t := time.NewTimer(p.latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush implements [audio.Output] by aborting and restarting the stream.
func (p *Playback) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.stream.Abort(); err != nil {
		return
	}
	_ = p.stream.Start()
}

// Close stops and closes the stream.
func (p *Playback) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		err = errors.Join(p.stream.Stop(), p.stream.Close())
	})
	return err
}
