package retrier

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	defaultInitialInterval = 1 * time.Second
	defaultMaxInterval     = 30 * time.Second
	defaultMultiplier      = 2.0
	defaultMaxRetries      = 5
	defaultJitter          = 0.1
)

// BackoffFunc returns the pause before retry number attempt (starting at 1), given the error
// that triggered it.
type BackoffFunc func(attempt int, err error) time.Duration

// Retrier runs an operation until it succeeds, the retry budget is spent,
// the error is not retryable, or the context is done.
type Retrier struct {
	initialInterval time.Duration
	maxInterval     time.Duration
	multiplier      float64
	maxRetries      int
	jitter          float64
	backoff         BackoffFunc
	retryIf         func(err error) bool
	onRetry         func(attempt int, err error, delay time.Duration)
}

// Option defines a function to configure the Retrier.
type Option func(*Retrier)

// WithInitialInterval sets the first exponential interval.
func WithInitialInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.initialInterval = d
	}
}

// WithMaxInterval caps exponential intervals.
func WithMaxInterval(d time.Duration) Option {
	return func(r *Retrier) {
		r.maxInterval = d
	}
}

// WithMultiplier sets the exponential growth factor.
func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		r.multiplier = m
	}
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) Option {
	return func(r *Retrier) {
		r.maxRetries = n
	}
}

// WithJitter sets the exponential jitter factor (0.0 to 1.0).
func WithJitter(j float64) Option {
	return func(r *Retrier) {
		r.jitter = j
	}
}

// WithBackoff replaces the exponential schedule with fn.
func WithBackoff(fn BackoffFunc) Option {
	return func(r *Retrier) {
		r.backoff = fn
	}
}

// WithRetryIf restricts retries to errors accepted by fn. Other errors are returned at once.
func WithRetryIf(fn func(err error) bool) Option {
	return func(r *Retrier) {
		r.retryIf = fn
	}
}

// WithOnRetry registers a hook called before each pause.
func WithOnRetry(fn func(attempt int, err error, delay time.Duration)) Option {
	return func(r *Retrier) {
		r.onRetry = fn
	}
}

// New creates a new Retrier with default values and optional overrides.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		multiplier:      defaultMultiplier,
		maxRetries:      defaultMaxRetries,
		jitter:          defaultJitter,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.backoff == nil {
		r.backoff = r.exponential
	}

	return r
}

// MaxRetries returns the retry budget.
func (r *Retrier) MaxRetries() int {
	return r.maxRetries
}

// Do executes fn with retries and returns the last error when the budget runs out.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.backoff(attempt, err)
			if delay < 0 {
				delay = 0
			}
			if r.onRetry != nil {
				r.onRetry(attempt, err, delay)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if r.retryIf != nil && !r.retryIf(err) {
			return err
		}
	}

	return err
}

func (r *Retrier) exponential(attempt int, _ error) time.Duration {
	interval := float64(r.initialInterval) * math.Pow(r.multiplier, float64(attempt-1))
	if interval > float64(r.maxInterval) {
		interval = float64(r.maxInterval)
	}

	jitter := (rand.Float64()*2 - 1) * r.jitter * interval

	return time.Duration(interval + jitter)
}

// LinearBackoff waits base multiplied by the attempt number, plus up to jitter of random extra delay.
func LinearBackoff(base, jitter time.Duration) BackoffFunc {
	return func(attempt int, _ error) time.Duration {
		delay := base * time.Duration(attempt)
		if jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(jitter)))
		}
		return delay
	}
}

// ConstantBackoff always waits d.
func ConstantBackoff(d time.Duration) BackoffFunc {
	return func(int, error) time.Duration {
		return d
	}
}

// DoWithData executes the given function with retries and returns a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func(ctx context.Context) error {
		var e error
		result, e = fn(ctx)
		return e
	})
	return result, err
}
