package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/audio"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
	"github.com/houzhh15/speech-corpus/pkg/logger"
)

// Stage is the pipeline stage name used in logs and metrics.
const Stage = "transcribe"

// AudioLoader decodes a chunk file into a mono clip. audio.Codec
// satisfies it.
type AudioLoader interface {
	Load(ctx context.Context, path string) (audio.Clip, error)
}

// Dispatcher runs the transcribe stage: it submits every chunk file of a
// directory to a Transcriber and merges the transcripts into the corpus.
//
// The dispatcher never adds records. A file with no corpus record is a
// per-item failure, and all transcripts are written by one Store.Merge
// after the worker pool drains.
type Dispatcher struct {
	// Transcriber is the backend, normally a Fallback over Resilient
	// wrappers built by Build.
	Transcriber Transcriber

	// Loader decodes chunk files (audio.Codec for WAV and ffmpeg formats).
	Loader AudioLoader

	Store *store.Store

	// InputDir holds the chunk files produced by the split stage.
	InputDir string

	// Language is the BCP 47 tag sent to the backend.
	Language string

	// SampleRate is the rate audio is resampled to before upload.
	// Zero keeps the file's own rate.
	SampleRate int

	// Limit caps the number of files processed (first N in sorted order).
	// Zero means no limit.
	Limit int

	// Workers bounds concurrent backend calls (default 1).
	Workers int

	Logger *slog.Logger
	RunID  string
}

func (d *Dispatcher) log() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Files returns the directory entries the dispatcher would process, in
// sorted order, after applying Limit. Directories are ignored.
func (d *Dispatcher) Files() ([]string, error) {
	entries, err := os.ReadDir(d.InputDir)
	if err != nil {
		return nil, pipeline.NewError(pipeline.EMPTY_INPUT, "read chunk directory "+d.InputDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if d.Limit > 0 && len(names) > d.Limit {
		names = names[:d.Limit]
	}
	return names, nil
}

// Run transcribes the chunk directory.
func (d *Dispatcher) Run(ctx context.Context) (*pipeline.Summary, error) {
	if d.Transcriber == nil {
		return nil, pipeline.NewError(pipeline.INVALID_CONFIG, "no transcription backend", nil)
	}
	corpus, err := d.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	files, err := d.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, pipeline.NewError(pipeline.EMPTY_INPUT, "no files in "+d.InputDir, nil)
	}

	if ok, err := d.Transcriber.HealthCheck(ctx); !ok {
		d.log().Warn("transcription backend health check failed",
			slog.String("backend", d.Transcriber.Name()),
			slog.Any("error", err),
		)
	}

	summary := pipeline.NewSummary(Stage, d.RunID)
	d.log().Info("start transcribing",
		slog.String("backend", d.Transcriber.Name()),
		slog.String("input_dir", d.InputDir),
		slog.Int("files", len(files)),
		slog.String("language", d.Language),
	)

	var (
		mu      sync.Mutex
		updates = make(map[string]store.Update)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.Workers, 1))
	for idx, name := range files {
		if err := gctx.Err(); err != nil {
			break
		}
		_, known := corpus[name]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d.log().Info("processing file", slog.Int("index", idx+1), slog.Int("total", len(files)), slog.String("file", name))

			started := time.Now()
			outcome, text := d.transcribeOne(gctx, name, known)
			outcome.Duration = time.Since(started)
			summary.Add(outcome)
			if outcome.Status == pipeline.StatusOK {
				mu.Lock()
				updates[name] = store.Update{}.WithASR(text)
				mu.Unlock()
			}

			code := ""
			if outcome.Status != pipeline.StatusOK {
				code = string(outcome.Reason)
			}
			logger.LogChunkEvent(d.log(), Stage, string(outcome.Status), name, outcome.Duration.Milliseconds(), code)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := d.Store.Merge(ctx, updates); err != nil {
		return nil, err
	}
	d.log().Info("transcribing finished", slog.String("corpus", d.Store.Path()), slog.Int("updated", len(updates)))
	summary.Log(ctx, d.log())
	return summary, nil
}

func (d *Dispatcher) transcribeOne(ctx context.Context, name string, known bool) (pipeline.Outcome, string) {
	if !audio.IsSupported(name) {
		return pipeline.Skipped(name, pipeline.UNSUPPORTED_FORMAT), ""
	}
	if !known {
		return pipeline.Failed(name, pipeline.UNKNOWN_CHUNK, fmt.Errorf("%s: %w", name, store.ErrUnknownChunk)), ""
	}

	clip, err := d.Loader.Load(ctx, filepath.Join(d.InputDir, name))
	if err != nil {
		return pipeline.Failed(name, pipeline.DECODE_FAILED, err), ""
	}
	if d.SampleRate > 0 && clip.SampleRate != d.SampleRate {
		clip = audio.Clip{Samples: audio.Resample(clip.Samples, clip.SampleRate, d.SampleRate), SampleRate: d.SampleRate}
	}
	data, err := audio.WAVBytes(clip)
	if err != nil {
		return pipeline.Failed(name, pipeline.ENCODE_FAILED, err), ""
	}

	res, err := d.Transcriber.Transcribe(ctx, Request{
		Audio:      data,
		SampleRate: clip.SampleRate,
		Language:   d.Language,
		Filename:   name,
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return pipeline.Failed(name, pipeline.CIRCUIT_OPEN, err), ""
		}
		return pipeline.Failed(name, pipeline.TRANSCRIBE_FAILED, err), ""
	}
	if res.NoSpeech() {
		return pipeline.Skipped(name, pipeline.NO_SPEECH), ""
	}
	return pipeline.OK(name), res.Text
}

// Options selects and configures backends for Build.
type Options struct {
	Backend  string
	Fallback string
	Configs  map[string]Config
	Policy   Policy
	Logger   *slog.Logger
}

// Build creates the configured backend chain: the primary and optional
// fallback backends from the registry, each behind its own Resilient
// wrapper, joined by a Fallback controller.
func Build(opts Options) (Transcriber, error) {
	if opts.Backend == "" {
		return nil, fmt.Errorf("transcription backend not configured (available: %v)", Backends.List())
	}
	if opts.Fallback == opts.Backend {
		return nil, fmt.Errorf("fallback backend %q equals the primary backend", opts.Fallback)
	}
	primary, err := Backends.Create(opts.Backend, opts.Configs[opts.Backend])
	if err != nil {
		return nil, err
	}
	chain := Transcriber(NewResilient(primary, opts.Policy, opts.Logger))
	if opts.Fallback == "" {
		return chain, nil
	}
	fb, err := Backends.Create(opts.Fallback, opts.Configs[opts.Fallback])
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return NewFallback(chain, NewResilient(fb, opts.Policy, opts.Logger), opts.Logger), nil
}
