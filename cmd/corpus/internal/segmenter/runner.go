package segmenter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
	"github.com/houzhh15/speech-corpus/pkg/logger"
)

// Stage is the pipeline stage name used in logs and metrics.
const Stage = "split"

// DefaultPadding is the silence added around every chunk.
const DefaultPadding = 300 * time.Millisecond

// Codec reads the source recording and writes chunk files.
type Codec interface {
	Load(ctx context.Context, path string) (audio.Clip, error)
	Save(ctx context.Context, path string, clip audio.Clip) error
}

// Segmenter runs the split stage: detect spans, write one chunk file per
// span and create the corpus document with their bounds.
type Segmenter struct {
	Params    Params
	Codec     Codec
	Store     *store.Store
	OutputDir string
	Prefix    string
	// Format is the chunk file extension without the dot.
	Format string
	// SampleRate resamples the source when positive.
	SampleRate int
	// LimitSeconds keeps only the leading part of the source when positive.
	LimitSeconds float64
	Padding      time.Duration
	Logger       *slog.Logger
	RunID        string
}

func (s *Segmenter) log() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// ChunkName builds the chunk file name for span index idx.
func ChunkName(prefix string, idx int, format string) string {
	return fmt.Sprintf("%s_%05d.%s", prefix, idx, format)
}

// Run loads the recording at inputPath and splits it.
func (s *Segmenter) Run(ctx context.Context, inputPath string) (*pipeline.Summary, error) {
	if inputPath == "" {
		return nil, pipeline.NewError(pipeline.EMPTY_INPUT, "no input audio file given", nil)
	}
	if _, err := os.Stat(inputPath); err != nil {
		return nil, pipeline.NewError(pipeline.EMPTY_INPUT, inputPath, err)
	}

	s.log().Info("loading audio", slog.String("input", inputPath))
	clip, err := s.Codec.Load(ctx, inputPath)
	if err != nil {
		return nil, pipeline.NewError(pipeline.DECODE_FAILED, inputPath, err)
	}
	if s.SampleRate > 0 && s.SampleRate != clip.SampleRate {
		clip = audio.Clip{
			Samples:    audio.Resample(clip.Samples, clip.SampleRate, s.SampleRate),
			SampleRate: s.SampleRate,
		}
	}
	clip = clip.Truncate(s.LimitSeconds)
	return s.Split(ctx, clip)
}

// Split detects spans in clip, writes chunk files and creates the corpus
// document. Chunks that fail to encode are skipped without a record.
func (s *Segmenter) Split(ctx context.Context, clip audio.Clip) (*pipeline.Summary, error) {
	if len(clip.Samples) == 0 {
		return nil, pipeline.NewError(pipeline.EMPTY_INPUT, "source audio has no samples", nil)
	}
	if s.Store.Exists() {
		return nil, pipeline.NewError(pipeline.CORPUS_EXISTS, s.Store.Path(), store.ErrExists)
	}
	if err := os.MkdirAll(s.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	summary := pipeline.NewSummary(Stage, s.RunID)
	normalized := audio.Clip{Samples: audio.Normalize(clip.Samples), SampleRate: clip.SampleRate}

	spans, err := Detect(normalized, s.Params)
	if err != nil {
		return nil, err
	}
	s.log().Info("spans detected",
		slog.Int("spans", len(spans)),
		slog.Float64("duration_s", clip.Duration()),
		slog.Int("sample_rate", clip.SampleRate),
	)

	padding := s.Padding
	if padding == 0 {
		padding = DefaultPadding
	}
	format := strings.TrimPrefix(strings.ToLower(s.Format), ".")

	records := make(store.Corpus, len(spans))
	for _, span := range spans {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := ChunkName(s.Prefix, span.Index, format)
		started := time.Now()
		outcome := s.emit(ctx, normalized, span, name, padding, records)
		outcome.Duration = time.Since(started)
		summary.Add(outcome)

		code := ""
		if outcome.Status != pipeline.StatusOK {
			code = string(outcome.Reason)
		}
		logger.LogChunkEvent(s.log(), Stage, string(outcome.Status), name, outcome.Duration.Milliseconds(), code)
	}

	if err := s.Store.Create(ctx, records); err != nil {
		return nil, err
	}
	s.log().Info("corpus created", slog.String("corpus", s.Store.Path()), slog.Int("chunks", len(records)))
	summary.Log(ctx, s.log())
	return summary, nil
}

func (s *Segmenter) emit(ctx context.Context, clip audio.Clip, span Span, name string, padding time.Duration, records store.Corpus) pipeline.Outcome {
	from, to := sampleRange(span, clip)
	if to <= from {
		return pipeline.Skipped(name, pipeline.EMPTY_SPAN)
	}

	chunk := clip.Slice(from, to)
	chunk = audio.Pad(audio.Clip{Samples: audio.Normalize(chunk.Samples), SampleRate: chunk.SampleRate}, padding)

	path := filepath.Join(s.OutputDir, name)
	if err := s.Codec.Save(ctx, path, chunk); err != nil {
		reason := pipeline.ENCODE_FAILED
		if errors.Is(err, audio.ErrUnsupportedFormat) {
			reason = pipeline.UNSUPPORTED_FORMAT
		}
		s.log().Error("chunk encode failed", slog.String("chunk", name), slog.Any("error", err))
		return pipeline.Failed(name, reason, err)
	}

	start, end := roundBounds(span.Start, span.End, clip.Duration())
	records[name] = store.NewRecord(start, end)
	return pipeline.OK(name)
}
