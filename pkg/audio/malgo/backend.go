package malgo

import "github.com/MrWong99/vigil/pkg/audio"

var _ audio.Backend = (*Backend)(nil)

// Backend adapts a [Context] to [audio.Backend].
type Backend struct {
	ctx *Context
}

// NewBackend initialises miniaudio and returns it as an [audio.Backend].
func NewBackend() (*Backend, error) {
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}
	return &Backend{ctx: ctx}, nil
}

// Name implements [audio.Backend].
func (b *Backend) Name() string { return "malgo" }

// Devices implements [audio.Backend].
func (b *Backend) Devices(capture bool) ([]string, error) {
	kind := KindPlayback
	if capture {
		kind = KindCapture
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names, nil
}

// OpenCapture implements [audio.Backend].
func (b *Backend) OpenCapture(device string, sampleRate, frameSamples int) (audio.Source, error) {
	c, err := b.ctx.OpenCapture(Config{SampleRate: sampleRate, FrameSamples: frameSamples, Device: device})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenPlayback implements [audio.Backend].
func (b *Backend) OpenPlayback(device string, sampleRate int) (audio.Output, error) {
	p, err := b.ctx.OpenPlayback(Config{SampleRate: sampleRate, Device: device})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close implements [audio.Backend].
func (b *Backend) Close() error { return b.ctx.Close() }
