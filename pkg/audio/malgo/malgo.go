// Package malgo implements [audio.Source] and [audio.Output] on top of
// miniaudio through github.com/gen2brain/malgo.
//
// Both devices are callback driven. Capture assembles the callback's byte
// slices into fixed-size frames and hands them to ReadFrame through a small
// buffered channel; playback feeds the callback from a bounded sample queue
// that Write fills. Neither side blocks inside the audio callback.
package malgo

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	ma "github.com/gen2brain/malgo"
)

// ErrDeviceNotFound is returned when a configured device name matches no
// device reported by the backend.
var ErrDeviceNotFound = errors.New("malgo: device not found")

// Kind selects capture or playback devices.
type Kind int

const (
	KindCapture Kind = iota
	KindPlayback
)

func (k Kind) deviceType() ma.DeviceType {
	if k == KindPlayback {
		return ma.Playback
	}
	return ma.Capture
}

// DeviceInfo describes one device reported by the backend.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Config configures a capture or playback device.
type Config struct {
	// SampleRate in Hz. Defaults to 16000.
	SampleRate int

	// FrameSamples is the number of samples per captured frame. Ignored for
	// playback. Defaults to 1024.
	FrameSamples int

	// Device selects a device by case-insensitive name substring. Empty
	// selects the system default.
	Device string

	// Buffer is the playback queue capacity in samples. Defaults to one second.
	Buffer int
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = 1024
	}
	if c.Buffer <= 0 {
		c.Buffer = c.SampleRate
	}
}

// Context owns the miniaudio context shared by all devices opened from it.
type Context struct {
	mu  sync.Mutex
	ctx *ma.AllocatedContext
}

// NewContext initialises the miniaudio backend. Backend log lines are
// forwarded to slog at debug level.
func NewContext() (*Context, error) {
	ctx, err := ma.InitContext(nil, ma.ContextConfig{}, func(msg string) {
		slog.Debug("malgo: backend", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}
	return &Context{ctx: ctx}, nil
}

// Devices lists the devices of the given kind.
func (c *Context) Devices(kind Kind) ([]DeviceInfo, error) {
	infos, err := c.ctx.Devices(kind.deviceType())
	if err != nil {
		return nil, fmt.Errorf("malgo: list devices: %w", err)
	}
	out := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, DeviceInfo{Name: info.Name(), IsDefault: info.IsDefault != 0})
	}
	return out, nil
}

// lookup returns the device ID whose name contains name, or nil for the
// default device.
func (c *Context) lookup(kind Kind, name string) (*ma.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := c.ctx.Devices(kind.deviceType())
	if err != nil {
		return nil, fmt.Errorf("malgo: list devices: %w", err)
	}
	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name()
	}
	idx := matchDevice(names, name)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, name)
	}
	id := infos[idx].ID
	return &id, nil
}

// matchDevice returns the index of the first name equal to want, falling back
// to the first name containing it (both case-insensitive), or -1.
func matchDevice(names []string, want string) int {
	want = strings.ToLower(want)
	for i, n := range names {
		if strings.ToLower(n) == want {
			return i
		}
	}
	for i, n := range names {
		if strings.Contains(strings.ToLower(n), want) {
			return i
		}
	}
	return -1
}

// Close releases the backend. Devices opened from c must be closed first.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil
	}
	err := c.ctx.Uninit()
	c.ctx.Free()
	c.ctx = nil
	if err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	return nil
}
