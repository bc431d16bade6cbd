// Package audio holds the waveform type shared by the split and transcribe
// stages along with its codecs.
package audio

import (
	"math"
	"time"
)

// Clip is a mono waveform with samples in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the clip length in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// Slice returns samples [from, to), clamped to the clip bounds. The result
// shares memory with c.
func (c Clip) Slice(from, to int) Clip {
	if from < 0 {
		from = 0
	}
	if to > len(c.Samples) {
		to = len(c.Samples)
	}
	if from > to {
		from = to
	}
	return Clip{Samples: c.Samples[from:to], SampleRate: c.SampleRate}
}

// Truncate keeps at most seconds of audio from the start. A non-positive
// limit leaves the clip unchanged.
func (c Clip) Truncate(seconds float64) Clip {
	if seconds <= 0 {
		return c
	}
	n := int(seconds * float64(c.SampleRate))
	if n >= len(c.Samples) {
		return c
	}
	return Clip{Samples: c.Samples[:n], SampleRate: c.SampleRate}
}

// Normalize scales samples so the absolute peak is 1.0. Silent input is
// returned as a zeroed copy.
func Normalize(samples []float64) []float64 {
	out := make([]float64, len(samples))
	peak := 0.0
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return out
	}
	for i, s := range samples {
		out[i] = s / peak
	}
	return out
}

// Pad surrounds the clip with d of silence on both sides.
func Pad(c Clip, d time.Duration) Clip {
	n := int(d.Seconds() * float64(c.SampleRate))
	out := make([]float64, len(c.Samples)+2*n)
	copy(out[n:], c.Samples)
	return Clip{Samples: out, SampleRate: c.SampleRate}
}

// Resample converts samples between rates by linear interpolation.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	n := int(float64(len(samples)) / ratio)
	out := make([]float64, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// ToMono averages interleaved channels.
func ToMono(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	out := make([]float64, len(interleaved)/channels)
	for i := range out {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		out[i] = sum / float64(channels)
	}
	return out
}
