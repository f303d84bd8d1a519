package portaudio

import "github.com/MrWong99/vigil/pkg/audio"

var _ audio.Backend = (*Backend)(nil)

// Backend exposes PortAudio as an [audio.Backend]. It holds one [Init]
// reference until Close.
type Backend struct{}

// NewBackend initialises PortAudio.
func NewBackend() (*Backend, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	return &Backend{}, nil
}

// Name implements [audio.Backend].
func (*Backend) Name() string { return "portaudio" }

// Devices implements [audio.Backend].
func (*Backend) Devices(capture bool) ([]string, error) { return DeviceNames(capture) }

// OpenCapture implements [audio.Backend].
func (*Backend) OpenCapture(device string, sampleRate, frameSamples int) (audio.Source, error) {
	c, err := OpenCapture(Config{SampleRate: sampleRate, FrameSamples: frameSamples, Device: device})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// OpenPlayback implements [audio.Backend].
func (*Backend) OpenPlayback(device string, sampleRate int) (audio.Output, error) {
	p, err := OpenPlayback(Config{SampleRate: sampleRate, Device: device})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Close implements [audio.Backend].
func (*Backend) Close() error { return Terminate() }
