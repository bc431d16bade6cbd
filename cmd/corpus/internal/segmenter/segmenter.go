// Package segmenter cuts a waveform into utterance-like chunks using
// frame energy and zero-crossing rate.
package segmenter

import (
	"errors"
	"fmt"
	"math"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
)

// ErrRunMismatch indicates the run collapse produced unequal start and end lists.
var ErrRunMismatch = errors.New("number of run starts does not match number of run ends")

// Params tunes activity detection.
type Params struct {
	FrameLengthMs int
	FrameShiftMs  int
	// QFactor scales the activity thresholds; lower values admit more frames.
	QFactor float64
}

// DefaultParams returns the detection defaults.
func DefaultParams() Params {
	return Params{FrameLengthMs: 1000, FrameShiftMs: 50, QFactor: 0.7}
}

// Validate checks that the parameters describe usable frames.
func (p Params) Validate() error {
	if p.FrameLengthMs <= 0 {
		return fmt.Errorf("frame length must be positive, got %d", p.FrameLengthMs)
	}
	if p.FrameShiftMs <= 0 {
		return fmt.Errorf("frame shift must be positive, got %d", p.FrameShiftMs)
	}
	if p.QFactor < 0 || math.IsNaN(p.QFactor) {
		return fmt.Errorf("q factor must be non-negative, got %v", p.QFactor)
	}
	return nil
}

// samples converts the millisecond frame settings for rate.
func (p Params) samples(rate int) (frameLen, hop int) {
	return p.FrameLengthMs * rate / 1000, p.FrameShiftMs * rate / 1000
}

// Span is one detected activity region. StartFrame and EndFrame are the
// first and last active frame of the run. A run of one inner frame gives a
// zero-length span; it covers no samples and is skipped when chunks are cut.
type Span struct {
	Index      int
	StartFrame int
	EndFrame   int
	Start      float64
	End        float64
}

// Runs collapses ascending frame indices into runs of consecutive indices.
// A trailing run of a single frame is dropped.
func Runs(active []int) (starts, ends []int, err error) {
	if len(active) == 0 {
		return nil, nil, nil
	}
	starts = []int{active[0]}
	for i := 0; i+1 < len(active); i++ {
		if active[i+1]-active[i] != 1 {
			ends = append(ends, active[i])
			starts = append(starts, active[i+1])
		}
	}
	ends = append(ends, active[len(active)-1])

	if ends[len(ends)-1] == starts[len(starts)-1] {
		ends = ends[:len(ends)-1]
		starts = starts[:len(starts)-1]
	}
	if len(starts) != len(ends) {
		return nil, nil, pipeline.NewError(pipeline.RUN_MISMATCH,
			fmt.Sprintf("%d starts, %d ends", len(starts), len(ends)), ErrRunMismatch)
	}
	return starts, ends, nil
}

// Detect peak-normalizes the clip and returns the activity spans in
// discovery order. The result depends only on the samples and parameters.
func Detect(clip audio.Clip, p Params) ([]Span, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if clip.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", clip.SampleRate)
	}
	frameLen, hop := p.samples(clip.SampleRate)
	if frameLen <= 0 || hop <= 0 {
		return nil, fmt.Errorf("frame settings too small for sample rate %d", clip.SampleRate)
	}

	features := Analyze(audio.Normalize(clip.Samples), frameLen, hop)
	starts, ends, err := Runs(ActiveFrames(features, p.QFactor))
	if err != nil {
		return nil, err
	}

	rate := float64(clip.SampleRate)
	spans := make([]Span, len(starts))
	for i := range starts {
		spans[i] = Span{
			Index:      i,
			StartFrame: starts[i],
			EndFrame:   ends[i],
			Start:      float64(starts[i]*hop) / rate,
			End:        float64(ends[i]*hop) / rate,
		}
	}
	return spans, nil
}

// sampleRange maps span times to a sample range of clip.
func sampleRange(s Span, clip audio.Clip) (int, int) {
	rate := float64(clip.SampleRate)
	from := int(math.Round(s.Start * rate))
	to := int(math.Round(s.End * rate))
	if to > len(clip.Samples) {
		to = len(clip.Samples)
	}
	return from, to
}

// roundBounds rounds start down and end up to 0.1 s so the stored bounds
// cover the span, capping end at limit. When the cap leaves no room the
// unrounded bounds are kept.
func roundBounds(start, end, limit float64) (float64, float64) {
	const eps = 1e-9
	s, e := math.Floor(start*10+eps)/10, math.Ceil(end*10-eps)/10
	if e <= s {
		e = s + 0.1
	}
	if e > limit {
		e = limit
	}
	if e <= s {
		return start, math.Min(end, limit)
	}
	return s, e
}
