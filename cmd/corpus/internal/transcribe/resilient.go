package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker/v2"

	"github.com/houzhh15/speech-corpus/pkg/metrics"
)

// ErrCircuitOpen is returned when the backend's circuit breaker rejects a
// call without contacting the backend.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Policy controls retries, per-call deadlines and the circuit breaker.
type Policy struct {
	// Timeout bounds a single backend call. Zero disables the deadline.
	Timeout time.Duration

	// MaxTries is the total number of attempts per chunk (>= 1).
	MaxTries uint

	// InitialInterval and MaxInterval shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// BreakerFailures is the number of consecutive failed calls that opens
	// the circuit. Zero disables the breaker.
	BreakerFailures uint32

	// BreakerCooldown is how long the circuit stays open before a probe.
	BreakerCooldown time.Duration
}

// DefaultPolicy returns the policy used when configuration leaves fields unset.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         2 * time.Minute,
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

// Resilient decorates a Transcriber with a per-call timeout, retries with
// exponential backoff and a circuit breaker.
//
// Each attempt passes through the breaker; only retryable failures count
// against it, so a chunk the backend rejects outright (HTTP 400, invalid
// audio) does not trip the circuit for the whole run. Once the circuit is
// open, calls fail immediately with ErrCircuitOpen and are not retried.
type Resilient struct {
	next    Transcriber
	policy  Policy
	breaker *gobreaker.CircuitBreaker[Result]
	logger  *slog.Logger
}

// NewResilient wraps next with policy.
func NewResilient(next Transcriber, policy Policy, logger *slog.Logger) *Resilient {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}
	r := &Resilient{next: next, policy: policy, logger: logger}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     policy.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return policy.BreakerFailures > 0 && counts.ConsecutiveFailures >= policy.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Retryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBreakerState(name, int(to))
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			r.logger.Log(context.Background(), level, "circuit breaker state changed",
				"backend", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}
	r.breaker = gobreaker.NewCircuitBreaker[Result](settings)
	metrics.SetBreakerState(next.Name(), int(gobreaker.StateClosed))
	return r
}

// Transcribe calls the wrapped backend, retrying retryable failures.
func (r *Resilient) Transcribe(ctx context.Context, req Request) (Result, error) {
	name := r.next.Name()
	attempt := 0

	operation := func() (Result, error) {
		attempt++
		res, err := r.breaker.Execute(func() (Result, error) {
			callCtx := ctx
			if r.policy.Timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
				defer cancel()
			}
			return r.next.Transcribe(callCtx, req)
		})
		switch {
		case err == nil:
			metrics.RecordBackendRequest(name, "ok")
			return res, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.RecordBackendRequest(name, "rejected")
			return Result{}, backoff.Permanent(fmt.Errorf("%s: %w: %w", name, ErrCircuitOpen, err))
		case !Retryable(err):
			metrics.RecordBackendRequest(name, "error")
			return Result{}, backoff.Permanent(err)
		default:
			metrics.RecordBackendRequest(name, "error")
			return Result{}, err
		}
	}

	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		b.MaxInterval = r.policy.MaxInterval
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.policy.MaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("transcription attempt failed, retrying",
				"backend", name,
				"file", req.Filename,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}),
	)
}

// HealthCheck delegates to the wrapped backend.
func (r *Resilient) HealthCheck(ctx context.Context) (bool, error) {
	return r.next.HealthCheck(ctx)
}

func (r *Resilient) Name() string {
	return r.next.Name()
}

// State returns the breaker state.
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}
