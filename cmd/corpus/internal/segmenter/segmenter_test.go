package segmenter

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

const testRate = 16000

// alternating builds silence/tone pairs of one second each, ending with
// silence: 0-1 silence, 1-2 tone, 2-3 silence, ...
func alternating(tones int) audio.Clip {
	var samples []float64
	for i := 0; i < tones; i++ {
		samples = append(samples, make([]float64, testRate)...)
		for j := 0; j < testRate; j++ {
			samples = append(samples, 0.6*math.Sin(2*math.Pi*440*float64(j)/testRate))
		}
	}
	samples = append(samples, make([]float64, testRate)...)
	return audio.Clip{Samples: samples, SampleRate: testRate}
}

func fineParams() Params {
	return Params{FrameLengthMs: 20, FrameShiftMs: 10, QFactor: 0.7}
}

func TestRuns(t *testing.T) {
	tests := []struct {
		name       string
		active     []int
		wantStarts []int
		wantEnds   []int
	}{
		{"empty", nil, nil, nil},
		{"single run", []int{3, 4, 5}, []int{3}, []int{5}},
		{"two runs", []int{1, 2, 3, 7, 8}, []int{1, 7}, []int{3, 8}},
		{"trailing single frame dropped", []int{1, 2, 3, 9}, []int{1}, []int{3}},
		{"inner single frame kept", []int{1, 5, 6}, []int{1, 5}, []int{1, 6}},
		{"only single frame", []int{4}, []int{}, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starts, ends, err := Runs(tt.active)
			require.NoError(t, err)
			assert.Equal(t, len(tt.wantStarts), len(starts))
			assert.Equal(t, len(tt.wantEnds), len(ends))
			for i := range tt.wantStarts {
				assert.Equal(t, tt.wantStarts[i], starts[i])
				assert.Equal(t, tt.wantEnds[i], ends[i])
			}
		})
	}
}

func TestFeatures(t *testing.T) {
	samples := []float64{0, 0, 0, 0, 1, -1, 1, -1}
	f := Analyze(samples, 4, 4)
	require.Len(t, f.RMS, 3)
	require.Len(t, f.ZCR, 3)

	// frame 0 covers [-2, 2): silence
	assert.Equal(t, 0.0, f.RMS[0])
	assert.Equal(t, 0.0, f.ZCR[0])
	// frame 1 covers [2, 6), frame 2 covers [6, 10) with zero padding
	assert.InDelta(t, 1.0, f.RMS[1], 1e-12)
	assert.InDelta(t, 1.0, f.RMS[2], 1e-12)
	// one crossing in frame 1, two in frame 2
	assert.InDelta(t, 0.5, f.ZCR[1], 1e-12)
	assert.InDelta(t, 1.0, f.ZCR[2], 1e-12)
}

func TestActiveFrames(t *testing.T) {
	f := Features{
		RMS: []float64{0, 0.1, 1, 0.9, 0, 0},
		ZCR: []float64{0, 0, 0, 0, 1, 0},
	}
	// std(rms) ~ 0.42, mean(zcr) ~ 0.167
	assert.Equal(t, []int{2, 3, 4}, ActiveFrames(f, 0.7))
	assert.Equal(t, []int{1, 2, 3, 4}, ActiveFrames(f, 0.2))
}

func TestDetectSyntheticTones(t *testing.T) {
	clip := alternating(2)
	spans, err := Detect(clip, fineParams())
	require.NoError(t, err)
	require.Len(t, spans, 2)

	hop := 0.010
	want := [][2]float64{{1, 2}, {3, 4}}
	for i, s := range spans {
		assert.Equal(t, i, s.Index)
		assert.InDelta(t, want[i][0], s.Start, hop+1e-9, "span %d start", i)
		assert.InDelta(t, want[i][1], s.End, hop+1e-9, "span %d end", i)
	}
}

func TestDetectDeterministic(t *testing.T) {
	clip := alternating(3)
	first, err := Detect(clip, DefaultParams())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Detect(clip, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestDetectSpanValidity(t *testing.T) {
	clip := alternating(4)
	for _, p := range []Params{DefaultParams(), fineParams(), {FrameLengthMs: 100, FrameShiftMs: 25, QFactor: 0.3}} {
		spans, err := Detect(clip, p)
		require.NoError(t, err)
		require.NotEmpty(t, spans)
		prevEnd := -1.0
		for _, s := range spans {
			assert.GreaterOrEqual(t, s.Start, 0.0)
			// single-frame runs may be zero length; emit skips them
			assert.LessOrEqual(t, s.Start, s.End)
			assert.LessOrEqual(t, s.End, clip.Duration())
			assert.Greater(t, s.Start, prevEnd, "spans overlap")
			prevEnd = s.End
		}
	}
}

func TestDetectSilence(t *testing.T) {
	clip := audio.Clip{Samples: make([]float64, 3*testRate), SampleRate: testRate}
	spans, err := Detect(clip, DefaultParams())
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())
	assert.Error(t, Params{FrameLengthMs: 0, FrameShiftMs: 50}.Validate())
	assert.Error(t, Params{FrameLengthMs: 100, FrameShiftMs: -1}.Validate())
	assert.Error(t, Params{FrameLengthMs: 100, FrameShiftMs: 10, QFactor: -1}.Validate())
}

func TestRoundBounds(t *testing.T) {
	tests := []struct {
		start, end         float64
		wantStart, wantEnd float64
	}{
		{1.0, 2.0, 1.0, 2.0},
		{1.05, 1.1, 1.0, 1.1},
		{0.15, 0.35, 0.1, 0.4},
		{0.3, 0.3000000001, 0.3, 0.4},
		{1.0, 2.02, 1.0, 2.03},
		{1.04, 2.03, 1.0, 2.03},
		{2.01, 2.025, 2.0, 2.03},
	}
	for _, tt := range tests {
		s, e := roundBounds(tt.start, tt.end, 2.03)
		assert.InDelta(t, tt.wantStart, s, 1e-9)
		assert.InDelta(t, tt.wantEnd, e, 1e-9)
		assert.Less(t, s, e)
	}
}

func TestChunkName(t *testing.T) {
	assert.Equal(t, "book_00007.ogg", ChunkName("book", 7, "ogg"))
	assert.Equal(t, "file_12345.wav", ChunkName("file", 12345, "wav"))
}

type fakeCodec struct {
	mu    sync.Mutex
	saved []string
	fail  map[string]bool
}

func (f *fakeCodec) Load(context.Context, string) (audio.Clip, error) {
	return alternating(3), nil
}

func (f *fakeCodec) Save(_ context.Context, path string, clip audio.Clip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[filepath.Base(path)] {
		return errors.New("encoder crashed")
	}
	f.saved = append(f.saved, filepath.Base(path))
	return nil
}

func newSegmenter(t *testing.T, codec Codec) *Segmenter {
	dir := t.TempDir()
	return &Segmenter{
		Params:    fineParams(),
		Codec:     codec,
		Store:     store.New(filepath.Join(dir, "result.json")),
		OutputDir: filepath.Join(dir, "chunks"),
		Prefix:    "book",
		Format:    "wav",
	}
}

func TestSplitWritesChunksAndCorpus(t *testing.T) {
	ctx := context.Background()
	s := newSegmenter(t, audio.Codec{})

	summary, err := s.Split(ctx, alternating(3))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count(pipeline.StatusOK))

	corpus, err := s.Store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"book_00000.wav", "book_00001.wav", "book_00002.wav"}, corpus.IDs())

	for i, id := range corpus.IDs() {
		r := corpus[id]
		assert.Less(t, r.Start, r.End)
		assert.InDelta(t, float64(2*i+1), r.Start, 0.1)
		assert.InDelta(t, float64(2*i+2), r.End, 0.1)
		assert.Nil(t, r.ASR)
		assert.Nil(t, r.Found)

		clip, err := audio.Codec{}.Load(ctx, filepath.Join(s.OutputDir, id))
		require.NoError(t, err)
		// one second of tone plus 2 * 300ms padding
		assert.InDelta(t, 1.6, clip.Duration(), 0.05)
		assert.Equal(t, 0.0, clip.Samples[0])
	}
}

func TestSplitActivityToLastSample(t *testing.T) {
	ctx := context.Background()
	s := newSegmenter(t, audio.Codec{})

	samples := make([]float64, testRate*103/100)
	for j := 0; j < testRate; j++ {
		samples = append(samples, 0.6*math.Sin(2*math.Pi*440*float64(j)/testRate))
	}
	clip := audio.Clip{Samples: samples, SampleRate: testRate}

	summary, err := s.Split(ctx, clip)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count(pipeline.StatusOK))

	corpus, err := s.Store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	for id, r := range corpus {
		assert.GreaterOrEqual(t, r.Start, 0.0, id)
		assert.Less(t, r.Start, r.End, id)
		assert.LessOrEqual(t, r.End, clip.Duration(), id)
		assert.InDelta(t, 1.0, r.Start, 0.1, id)
	}
}

func TestSplitSkipsFailedEncodes(t *testing.T) {
	ctx := context.Background()
	codec := &fakeCodec{fail: map[string]bool{"book_00001.wav": true}}
	s := newSegmenter(t, codec)

	summary, err := s.Run(ctx, writeDummyInput(t))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count(pipeline.StatusOK))
	assert.Equal(t, 1, summary.Count(pipeline.StatusFailed))
	assert.Equal(t, 1, summary.Reasons()[pipeline.ENCODE_FAILED])

	corpus, err := s.Store.Load(ctx)
	require.NoError(t, err)
	// numbering follows span order; the failed chunk leaves a gap
	assert.Equal(t, []string{"book_00000.wav", "book_00002.wav"}, corpus.IDs())
}

func TestSplitFatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty input path", func(t *testing.T) {
		s := newSegmenter(t, &fakeCodec{})
		_, err := s.Run(ctx, "")
		assert.Equal(t, pipeline.EMPTY_INPUT, pipeline.CodeOf(err))
	})

	t.Run("missing input", func(t *testing.T) {
		s := newSegmenter(t, &fakeCodec{})
		_, err := s.Run(ctx, filepath.Join(t.TempDir(), "nope.wav"))
		assert.Equal(t, pipeline.EMPTY_INPUT, pipeline.CodeOf(err))
	})

	t.Run("empty waveform", func(t *testing.T) {
		s := newSegmenter(t, &fakeCodec{})
		_, err := s.Split(ctx, audio.Clip{SampleRate: testRate})
		assert.Equal(t, pipeline.EMPTY_INPUT, pipeline.CodeOf(err))
	})

	t.Run("existing corpus", func(t *testing.T) {
		s := newSegmenter(t, &fakeCodec{})
		require.NoError(t, s.Store.Create(ctx, store.Corpus{"x.wav": store.NewRecord(0, 1)}))
		_, err := s.Split(ctx, alternating(1))
		assert.ErrorIs(t, err, store.ErrExists)
	})
}

func TestRunAppliesLimitAndResample(t *testing.T) {
	ctx := context.Background()
	codec := &fakeCodec{}
	s := newSegmenter(t, codec)
	s.LimitSeconds = 2.5
	s.SampleRate = 8000

	summary, err := s.Run(ctx, writeDummyInput(t))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count(pipeline.StatusOK))
	assert.Equal(t, []string{"book_00000.wav"}, codec.saved)
}

func writeDummyInput(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "source.wav")
	require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))
	return p
}

func TestSplitRejectsUnknownFormat(t *testing.T) {
	ctx := context.Background()
	s := newSegmenter(t, audio.Codec{})
	s.Format = "aiff"

	summary, err := s.Split(ctx, alternating(1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Reasons()[pipeline.UNSUPPORTED_FORMAT])

	corpus, err := s.Store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, corpus)
}
