package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/houzhh15/speech-corpus/pkg/metrics"
)

// Fallback routes calls to a primary Transcriber and degrades to a
// fallback one when the primary fails.
//
// Degradation is per call: every request still tries the primary first, so
// the controller recovers as soon as the primary answers again (normally
// when its circuit breaker lets a probe through). Transitions are logged
// once each way.
//
// Thread-safety: all methods are safe for concurrent use.
type Fallback struct {
	primary  Transcriber
	fallback Transcriber
	logger   *slog.Logger

	mu       sync.Mutex
	degraded bool
}

// NewFallback builds a controller. fallback may be nil, in which case
// primary errors are returned unchanged.
func NewFallback(primary, fallback Transcriber, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{primary: primary, fallback: fallback, logger: logger}
}

// Transcribe tries the primary, then the fallback.
//
// Invalid requests and cancellation are never handed to the fallback:
// the fallback would reject them for the same reason.
func (f *Fallback) Transcribe(ctx context.Context, req Request) (Result, error) {
	res, err := f.primary.Transcribe(ctx, req)
	if err == nil {
		f.setDegraded(false)
		return res, nil
	}
	if f.fallback == nil || errors.Is(err, ErrInvalidRequest) || ctx.Err() != nil {
		return Result{}, err
	}

	f.setDegraded(true)
	metrics.RecordDegradationEvent(f.primary.Name(), f.fallback.Name())
	res, ferr := f.fallback.Transcribe(ctx, req)
	if ferr != nil {
		return Result{}, fmt.Errorf("fallback %s: %w (primary: %v)", f.fallback.Name(), ferr, err)
	}
	return res, nil
}

func (f *Fallback) setDegraded(degraded bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if degraded == f.degraded {
		return
	}
	f.degraded = degraded
	if degraded {
		f.logger.Warn("degrading to fallback transcriber",
			"primary", f.primary.Name(),
			"fallback", f.fallback.Name(),
		)
		return
	}
	f.logger.Info("recovered to primary transcriber", "primary", f.primary.Name())
}

// IsDegraded reports whether the last call was served by the fallback.
func (f *Fallback) IsDegraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// HealthCheck is healthy when either transcriber is.
func (f *Fallback) HealthCheck(ctx context.Context) (bool, error) {
	ok, err := f.primary.HealthCheck(ctx)
	if ok || f.fallback == nil {
		return ok, err
	}
	return f.fallback.HealthCheck(ctx)
}

func (f *Fallback) Name() string {
	if f.fallback == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + "+" + f.fallback.Name()
}
