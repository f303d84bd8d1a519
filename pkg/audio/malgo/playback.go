package malgo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	ma "github.com/gen2brain/malgo"

	"github.com/MrWong99/vigil/pkg/audio"
)

// Playback is a speaker [audio.Output]. The device runs continuously and
// plays silence whenever the queue is empty.
type Playback struct {
	dev  *ma.Device
	rate int

	mu    sync.Mutex
	queue *sampleQueue
	space chan struct{} // signalled when the callback consumed samples
	empty chan struct{} // signalled when the queue ran dry

	closed chan struct{}
	once   sync.Once
}

var _ audio.Output = (*Playback)(nil)

// OpenPlayback starts a mono 16-bit playback device.
func (c *Context) OpenPlayback(cfg Config) (*Playback, error) {
	cfg.applyDefaults()
	id, err := c.lookup(KindPlayback, cfg.Device)
	if err != nil {
		return nil, err
	}

	dc := ma.DefaultDeviceConfig(ma.Playback)
	dc.Playback.Format = ma.FormatS16
	dc.Playback.Channels = 1
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.Alsa.NoMMap = 1
	if id != nil {
		dc.Playback.DeviceID = id.Pointer()
	}

	p := &Playback{
		rate:   cfg.SampleRate,
		queue:  newSampleQueue(cfg.Buffer),
		space:  make(chan struct{}, 1),
		empty:  make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	cbs := ma.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) { p.onData(out) },
	}
	dev, err := ma.InitDevice(c.ctx.Context, dc, cbs)
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start playback device: %w", err)
	}
	p.dev = dev
	slog.Info("malgo: playback started", "device", cfg.Device, "sampleRate", cfg.SampleRate)
	return p, nil
}

func (p *Playback) onData(out []byte) {
	want := len(out) / 2
	p.mu.Lock()
	samples := p.queue.pop(want)
	remaining := p.queue.len()
	p.mu.Unlock()

	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	clear(out[len(samples)*2:])

	if len(samples) > 0 {
		signal(p.space)
	}
	if remaining == 0 {
		signal(p.empty)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// SampleRate implements [audio.Output].
func (p *Playback) SampleRate() int { return p.rate }

// Write implements [audio.Output]. It blocks while the queue has no room for
// samples. A write larger than the queue is accepted once the queue is empty.
func (p *Playback) Write(ctx context.Context, samples []int16) error {
	for {
		p.mu.Lock()
		if p.queue.fits(len(samples)) {
			p.queue.push(samples)
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()

		select {
		case <-p.space:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closed:
			return ErrClosed
		}
	}
}

// Drain implements [audio.Output].
func (p *Playback) Drain(ctx context.Context) error {
	for {
		p.mu.Lock()
		n := p.queue.len()
		p.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-p.empty:
		case <-ctx.Done():
			return ctx.Err()
		case <-p.closed:
			return ErrClosed
		}
	}
}

// Flush implements [audio.Output].
func (p *Playback) Flush() {
	p.mu.Lock()
	p.queue.reset()
	p.mu.Unlock()
	signal(p.space)
	signal(p.empty)
}

// Close stops the device. It is safe to call more than once.
func (p *Playback) Close() error {
	p.once.Do(func() {
		close(p.closed)
		if p.dev != nil {
			p.dev.Uninit()
		}
	})
	return nil
}

// sampleQueue is a bounded FIFO of samples.
type sampleQueue struct {
	buf []int16
	cap int
}

func newSampleQueue(capacity int) *sampleQueue {
	return &sampleQueue{buf: make([]int16, 0, capacity), cap: capacity}
}

func (q *sampleQueue) len() int { return len(q.buf) }

func (q *sampleQueue) fits(n int) bool {
	return len(q.buf) == 0 || len(q.buf)+n <= q.cap
}

func (q *sampleQueue) push(s []int16) { q.buf = append(q.buf, s...) }

func (q *sampleQueue) pop(n int) []int16 {
	n = min(n, len(q.buf))
	out := make([]int16, n)
	copy(out, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	return out
}

func (q *sampleQueue) reset() { q.buf = q.buf[:0] }
