package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/gen2brain/malgo"

	"github.com/MrWong99/vigil/pkg/audio"
)

// ErrClosed is returned by device operations after Close.
var ErrClosed = errors.New("malgo: device closed")

// Capture is a microphone [audio.Source].
type Capture struct {
	dev    *ma.Device
	frames chan audio.Frame
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	asm *assembler

	overruns atomic.Int64
}

var _ audio.Source = (*Capture)(nil)

// OpenCapture starts a mono 16-bit capture device.
func (c *Context) OpenCapture(cfg Config) (*Capture, error) {
	cfg.applyDefaults()
	id, err := c.lookup(KindCapture, cfg.Device)
	if err != nil {
		return nil, err
	}

	dc := ma.DefaultDeviceConfig(ma.Capture)
	dc.Capture.Format = ma.FormatS16
	dc.Capture.Channels = 1
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.Alsa.NoMMap = 1
	if id != nil {
		dc.Capture.DeviceID = id.Pointer()
	}

	cp := &Capture{
		frames: make(chan audio.Frame, 32),
		closed: make(chan struct{}),
		asm:    newAssembler(cfg.SampleRate, cfg.FrameSamples),
	}
	cbs := ma.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) { cp.onData(in) },
	}
	dev, err := ma.InitDevice(c.ctx.Context, dc, cbs)
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start capture device: %w", err)
	}
	cp.dev = dev
	slog.Info("malgo: capture started", "device", cfg.Device, "sampleRate", cfg.SampleRate, "frameSamples", cfg.FrameSamples)
	return cp, nil
}

func (c *Capture) onData(in []byte) {
	c.mu.Lock()
	ready := c.asm.push(audio.PCMSamples(in))
	c.mu.Unlock()
	for _, f := range ready {
		select {
		case c.frames <- f:
		default:
			c.overruns.Add(1)
		}
	}
}

// ReadFrame implements [audio.Source].
func (c *Capture) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	case <-c.closed:
		return audio.Frame{}, ErrClosed
	}
}

// Overruns returns the number of frames dropped because the reader was behind.
func (c *Capture) Overruns() int64 { return c.overruns.Load() }

// Close stops the device. It is safe to call more than once.
func (c *Capture) Close() error {
	c.once.Do(func() {
		close(c.closed)
		if c.dev != nil {
			c.dev.Uninit()
		}
	})
	return nil
}

// assembler slices an arbitrary-length sample stream into fixed-size frames.
type assembler struct {
	rate, size int
	pending    []int16
	emitted    int64
}

func newAssembler(rate, size int) *assembler {
	return &assembler{rate: rate, size: size, pending: make([]int16, 0, size*2)}
}

func (a *assembler) push(samples []int16) []audio.Frame {
	a.pending = append(a.pending, samples...)
	var out []audio.Frame
	for len(a.pending) >= a.size {
		s := make([]int16, a.size)
		copy(s, a.pending[:a.size])
		a.pending = append(a.pending[:0], a.pending[a.size:]...)
		ts := time.Duration(a.emitted * int64(a.size) * int64(time.Second) / int64(a.rate))
		out = append(out, audio.Frame{Samples: s, SampleRate: a.rate, Timestamp: ts})
		a.emitted++
	}
	return out
}
