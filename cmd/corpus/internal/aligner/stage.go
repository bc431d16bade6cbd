package aligner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/pipeline"
	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
	"github.com/houzhh15/speech-corpus/pkg/logger"
	"github.com/houzhh15/speech-corpus/pkg/metrics"
)

// Stage is the pipeline stage name used in logs and metrics.
const Stage = "align"

// Aligner runs the align stage over every transcribed record of a corpus.
type Aligner struct {
	Params  Params
	Source  *Source
	Store   *store.Store
	Workers int
	Logger  *slog.Logger
	RunID   string
}

func (a *Aligner) log() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Run aligns all records and merges the results in a single write. Records
// without a transcript and transcripts without a match are left untouched.
func (a *Aligner) Run(ctx context.Context) (*pipeline.Summary, error) {
	if err := a.Params.Validate(); err != nil {
		return nil, pipeline.NewError(pipeline.INVALID_CONFIG, "align params", err)
	}
	corpus, err := a.Store.Load(ctx)
	if err != nil {
		return nil, err
	}

	ids := corpus.IDs()
	summary := pipeline.NewSummary(Stage, a.RunID)
	a.log().Info("start evaluating distance",
		slog.Int("chunks", len(ids)),
		slog.Int("q_factor", a.Params.QFactor),
		slog.Int("q_max", a.Params.QMax),
		slog.Int("q_step", a.Params.QStep),
		slog.Int("max_rounds", a.Params.Rounds()),
	)

	var (
		mu      sync.Mutex
		updates = make(map[string]store.Update)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.Workers, 1))
	for idx, id := range ids {
		rec := corpus[id]
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a.log().Debug("evaluating sentence", slog.Int("index", idx), slog.Int("total", len(ids)), slog.String("chunk", id))

			started := time.Now()
			outcome, update := a.alignOne(id, rec)
			outcome.Duration = time.Since(started)
			summary.Add(outcome)
			if !update.Empty() {
				mu.Lock()
				updates[id] = update
				mu.Unlock()
			}

			code := ""
			if outcome.Status != pipeline.StatusOK {
				code = string(outcome.Reason)
			}
			logger.LogChunkEvent(a.log(), Stage, string(outcome.Status), id, outcome.Duration.Milliseconds(), code)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := a.Store.Merge(ctx, updates); err != nil {
		return nil, err
	}
	a.log().Info("evaluating finished", slog.String("corpus", a.Store.Path()), slog.Int("updated", len(updates)))
	summary.Log(ctx, a.log())
	return summary, nil
}

func (a *Aligner) alignOne(id string, rec store.Record) (pipeline.Outcome, store.Update) {
	if !rec.HasASR() {
		return pipeline.Skipped(id, pipeline.NO_TRANSCRIPT), store.Update{}
	}

	res, err := a.Source.Find(*rec.ASR, a.Params)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			a.log().Warn("cannot continue fuzzing, max q factor reached",
				slog.String("chunk", id),
				slog.String("sentence", *rec.ASR),
				slog.Int("rounds", res.Rounds),
			)
		}
		return pipeline.Failed(id, pipeline.NO_MATCH, err), store.Update{}
	}
	metrics.RecordAlignment(res.Rounds, res.Diff)

	update := store.Update{}.WithFound(res.Found).WithDiff(res.Diff)
	if !res.ShiftOK {
		return pipeline.Outcome{ChunkID: id, Status: pipeline.StatusOK, Reason: pipeline.OFFSET_UNRESOLVED},
			update.WithoutShift()
	}
	return pipeline.OK(id), update.WithShift(res.Shift)
}
