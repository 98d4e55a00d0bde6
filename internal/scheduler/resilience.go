package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/seqflow/internal/backend"
)

// RetryPolicy shapes the exponential backoff between retried attempts.
type RetryPolicy struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (p RetryPolicy) backOff(retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.RandomizationFactor
	b.MaxElapsedTime = 0 // bounded by the retry count instead
	return backoff.WithMaxRetries(b, uint64(retries))
}

// BreakerRegistry holds one circuit breaker per tool. Only process start
// failures count against a breaker; a tool that runs and exits nonzero is
// a task failure, not a tool failure.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates a registry that logs state changes to logger.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for tool, creating it on first use.
func (r *BreakerRegistry) Get(tool string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[tool]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        tool,
		MaxRequests: 3,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker changed state", "tool", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation says nothing about the tool.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	r.breakers[tool] = cb
	return cb
}

// attemptFailed marks a finished attempt whose process exited unsuccessfully.
type attemptFailed struct{ res backend.Result }

func (e *attemptFailed) Error() string {
	switch {
	case e.res.TimedOut:
		return "timed out"
	default:
		return "exit status " + strconv.Itoa(e.res.ExitCode)
	}
}

// runWithRetry runs req up to retries+1 times through cb. It returns the
// outcome of the last attempt, the number of attempts and, when the last
// attempt could not start the process, the start error.
func runWithRetry(ctx context.Context, runner backend.Runner, req backend.Request, retries int, cb *gobreaker.CircuitBreaker, policy RetryPolicy, notify func(attempt int, err error, delay time.Duration)) (backend.Result, int, error) {
	var (
		res      backend.Result
		attempts int
		startErr error
	)

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		attempts++
		startErr = nil

		out, err := cb.Execute(func() (interface{}, error) {
			return runner.Run(ctx, req)
		})
		if err != nil {
			startErr = err
			res = backend.Result{ExitCode: -1, LogPath: req.LogPath}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		res = out.(backend.Result)
		if res.Canceled {
			return backoff.Permanent(context.Canceled)
		}
		if !res.Success() {
			return &attemptFailed{res: res}
		}
		return nil
	}

	b := backoff.WithContext(policy.backOff(retries), ctx)
	_ = backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		if notify != nil {
			notify(attempts+1, err, d)
		}
	})
	if attempts == 0 {
		res = backend.Result{ExitCode: -1, LogPath: req.LogPath, Canceled: true}
	} else if ctx.Err() != nil && !res.Success() {
		res.Canceled = true
	}
	return res, attempts, startErr
}
