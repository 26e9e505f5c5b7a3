package inference

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/UnendingLoop/Colorizer/internal/model"
	"github.com/wb-go/wbf/retry"
)

// RetryPolicy bounds how many times one Colorize call may hit the upstream.
// Attempts counts the first call too, so Attempts=2 means one retry.
type RetryPolicy struct {
	Strategy  retry.Strategy
	Retryable func(error) bool
}

// DefaultRetryPolicy retries a single time on transient failures only.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Strategy: retry.Strategy{
			Attempts: 2,
			Delay:    2 * time.Second,
			Backoff:  2,
		},
		Retryable: IsTransient,
	}
}

// IsTransient reports whether another attempt has a chance to succeed.
// Permanent model errors, rate limiting and the overall deadline are never retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, model.ErrModelUnavailable),
		errors.Is(err, model.ErrRateLimited),
		errors.Is(err, model.ErrUpstreamTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, model.ErrModelLoading):
		return true
	}

	var upErr *Error
	if errors.As(err, &upErr) {
		switch upErr.StatusCode {
		case http.StatusBadGateway, http.StatusGatewayTimeout:
			return true
		}
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// run calls fn through retry.DoContext until it succeeds, returns a non-retryable error or attempts run out.
// Permanent and final errors are taken out of the loop so no delay follows the last attempt.
func (p RetryPolicy) run(ctx context.Context, onRetry func(attempt int, err error), fn func() error) error {
	strategy := p.Strategy
	strategy.Attempts = max(strategy.Attempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var (
		attempt int
		prev    error
		final   error
	)
	err := retry.DoContext(ctx, strategy, func() error {
		attempt++
		if attempt > 1 && onRetry != nil {
			onRetry(attempt, prev)
		}

		err := fn()
		switch {
		case err == nil:
			return nil
		case !retryable(err) || attempt == strategy.Attempts:
			final = err
			return nil
		}
		prev = err
		return err
	})
	if final != nil {
		return final
	}
	return err
}
