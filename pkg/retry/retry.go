package retry

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
	defaultMaxElapsed      = 30 * time.Second
)

type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	// Retryable decides whether err is worth another attempt. ShouldRetry
	// is used when nil.
	Retryable func(err error) bool
	// RetryAfter extracts a server requested delay, overriding the backoff
	// for that attempt.
	RetryAfter func(err error) (time.Duration, bool)
}

type Retrier struct {
	initial    time.Duration
	max        time.Duration
	maxElapsed time.Duration
	retryable  func(err error) bool
	retryAfter func(err error) (time.Duration, bool)
}

func New(cfg Config) *Retrier {
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaultMaxInterval
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = defaultMaxElapsed
	}
	if cfg.Retryable == nil {
		cfg.Retryable = ShouldRetry
	}
	return &Retrier{
		initial:    cfg.InitialInterval,
		max:        cfg.MaxInterval,
		maxElapsed: cfg.MaxElapsed,
		retryable:  cfg.Retryable,
		retryAfter: cfg.RetryAfter,
	}
}

// Do runs op until it succeeds, fails with a non retryable error, ctx is done
// or the elapsed time budget is spent.
func (r *Retrier) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.max
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if r.retryAfter != nil {
			if d, ok := r.retryAfter(err); ok {
				return struct{}{}, &backoff.RetryAfterError{Duration: d}
			}
		}
		if !r.retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(r.maxElapsed))
	return err
}

// ShouldRetry reports whether a network error is worth retrying.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Timeout() || ShouldRetry(urlErr.Err)
	}
	return false
}
