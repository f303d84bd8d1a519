package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/afero"
)

// ErrInvalidWAV is returned by [DecodeWAV] for payloads that are not RIFF/WAVE.
var ErrInvalidWAV = errors.New("audio: invalid wav payload")

// WriteWAV encodes c as a 16-bit mono PCM WAV file to w.
func WriteWAV(w io.WriteSeeker, c Clip) error {
	enc := wav.NewEncoder(w, c.SampleRate, 16, 1, 1)
	data := make([]int, len(c.Samples))
	for i, s := range c.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: c.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalise wav: %w", err)
	}
	return nil
}

// EncodeWAV returns c as an in-memory WAV file.
func EncodeWAV(c Clip) ([]byte, error) {
	// The encoder seeks back to patch the RIFF header, so it needs a seekable
	// target. An in-memory afero file provides one.
	f, err := afero.NewMemMapFs().Create("clip.wav")
	if err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	defer f.Close()

	if err := WriteWAV(f, c); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return io.ReadAll(f)
}

// DecodeWAV parses a PCM WAV payload into a mono clip. Multi-channel audio is
// averaged down to mono and 8/24/32-bit samples are scaled to 16 bits.
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("audio: decode wav: %w", err)
	}

	channels := int(dec.NumChans)
	if channels < 1 {
		channels = 1
	}
	depth := int(dec.BitDepth)

	n := len(buf.Data) / channels
	samples := make([]int16, n)
	for i := range n {
		var sum int
		for ch := range channels {
			sum += buf.Data[i*channels+ch]
		}
		samples[i] = to16(sum/channels, depth)
	}
	return Clip{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

func to16(v, depth int) int16 {
	switch depth {
	case 8:
		// 8-bit WAV is unsigned.
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
