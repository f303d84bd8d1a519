package audio

import (
	"encoding/binary"
	"math"
)

// PCMBytes encodes samples as little-endian 16-bit PCM.
func PCMBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// PCMSamples decodes little-endian 16-bit PCM. A trailing odd byte is ignored.
func PCMSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Float32 converts samples to float32 in [-1, 1].
func Float32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// StereoToMono averages interleaved L/R pairs.
func StereoToMono(samples []int16) []int16 {
	out := make([]int16, len(samples)/2)
	for i := range out {
		out[i] = int16((int32(samples[i*2]) + int32(samples[i*2+1])) / 2)
	}
	return out
}

// MonoToStereo duplicates each sample into an interleaved L/R pair.
func MonoToStereo(samples []int16) []int16 {
	out := make([]int16, len(samples)*2)
	for i, s := range samples {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// Resample converts mono samples from srcRate to dstRate using linear
// interpolation. If the rates match, the input is returned unchanged.
func Resample(samples []int16, srcRate, dstRate int) []int16 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) < 2 {
		return samples
	}
	dstLen := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	if dstLen == 0 {
		return nil
	}

	out := make([]int16, dstLen)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := samples[idx]
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		out[i] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
	}
	return out
}

// Speed returns c time-compressed (speed > 1) or stretched (speed < 1) by
// the given factor while keeping its pitch, using windowed overlap-add with
// 20 ms Hann windows. Speeds ≤ 0 or equal to 1 return the clip unchanged.
func Speed(c Clip, speed float64) Clip {
	if speed <= 0 || speed == 1 || c.SampleRate <= 0 || len(c.Samples) == 0 {
		return c
	}
	win := max(c.SampleRate/50, 16)
	outLen := int(float64(len(c.Samples)) / speed)
	if len(c.Samples) < win || outLen == 0 {
		virtual := int(float64(c.SampleRate) * speed)
		return Clip{Samples: Resample(c.Samples, virtual, c.SampleRate), SampleRate: c.SampleRate}
	}

	window := make([]float64, win)
	for i := range window {
		window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(win))
	}
	hopOut := win / 2
	hopIn := float64(hopOut) * speed

	acc := make([]float64, outLen+win)
	norm := make([]float64, outLen+win)
	for k := 0; k*hopOut < outLen; k++ {
		in, out := int(float64(k)*hopIn), k*hopOut
		for i := 0; i < win && in+i < len(c.Samples); i++ {
			acc[out+i] += float64(c.Samples[in+i]) * window[i]
			norm[out+i] += window[i]
		}
	}

	samples := make([]int16, outLen)
	for i := range samples {
		if norm[i] > 1e-3 {
			samples[i] = int16(math.Max(-32768, math.Min(32767, acc[i]/norm[i])))
		}
	}
	return Clip{Samples: samples, SampleRate: c.SampleRate}
}

// Convert returns the clip resampled to rate.
func Convert(c Clip, rate int) Clip {
	if c.SampleRate == rate {
		return c
	}
	return Clip{Samples: Resample(c.Samples, c.SampleRate, rate), SampleRate: rate}
}
