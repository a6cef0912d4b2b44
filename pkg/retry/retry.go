// Package retry runs an operation again with exponential backoff. It backs the
// upstream REST client and KV writes.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	jitterMu  sync.Mutex
	jitterRng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError marks an error that ends the retry loop.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks err so Do returns it without another attempt.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is NonRetryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// DelayHinter is implemented by errors that know when the next attempt may
// run, such as an HTTP 429 with Retry-After.
type DelayHinter interface {
	RetryDelay() time.Duration
}

// hintedDelay returns the first positive delay hint in err's chain.
func hintedDelay(err error) (time.Duration, bool) {
	var h DelayHinter
	if errors.As(err, &h) && h.RetryDelay() > 0 {
		return h.RetryDelay(), true
	}
	return 0, false
}

// Config controls attempts and backoff.
type Config struct {
	// MaxAttempts counts the first call; zero or less means a single call.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps every wait, hinted ones included.
	MaxDelay time.Duration
	// Multiplier grows the wait after each attempt.
	Multiplier float64
	// AddJitter adds up to a quarter of the wait at random.
	AddJitter bool

	// Retryable filters errors worth another attempt. nil retries everything
	// not marked NonRetryable.
	Retryable func(error) bool
}

// DefaultConfig suits one upstream request.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

// Quick suits short contention such as KV revision conflicts.
func Quick() Config {
	return Config{
		MaxAttempts:  10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   1.5,
		AddJitter:    true,
	}
}

// withDefaults fills zero fields and rejects negative ones.
func (cfg Config) withDefaults() (Config, error) {
	switch {
	case cfg.InitialDelay < 0:
		return cfg, errors.New("retry: InitialDelay cannot be negative")
	case cfg.MaxDelay < 0:
		return cfg, errors.New("retry: MaxDelay cannot be negative")
	case cfg.Multiplier < 0:
		return cfg, errors.New("retry: Multiplier cannot be negative")
	}

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	cfg.Multiplier = min(cfg.Multiplier, 1000)

	if cfg.MaxDelay < cfg.InitialDelay {
		return cfg, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return cfg, nil
}

func (cfg Config) givesUp(err error) bool {
	return IsNonRetryable(err) || (cfg.Retryable != nil && !cfg.Retryable(err))
}

// backoff yields successive waits.
type backoff struct {
	cfg  Config
	next time.Duration
}

// wait returns how long to sleep after err, honoring a delay hint.
func (b *backoff) wait(err error) time.Duration {
	d := b.next
	b.next = min(time.Duration(float64(b.next)*b.cfg.Multiplier), b.cfg.MaxDelay)

	if hint, ok := hintedDelay(err); ok {
		return min(hint, b.cfg.MaxDelay)
	}
	if b.cfg.AddJitter && d >= 4 {
		jitterMu.Lock()
		d += time.Duration(jitterRng.Int63n(int64(d / 4)))
		jitterMu.Unlock()
	}
	return d
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx ends.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return err
	}
	b := &backoff{cfg: cfg, next: cfg.InitialDelay}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.givesUp(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt+1, ctx.Err())
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		timer := time.NewTimer(b.wait(lastErr))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var callErr error
		result, callErr = fn()
		return callErr
	})
	return result, err
}
