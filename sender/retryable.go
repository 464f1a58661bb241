package sender

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/relex/gotils/logger"
)

// RetryConfig tunes RetryableSender's exponential backoff.
type RetryConfig struct {
	// BaseIntervalMilli is the first retry delay. Default 400.
	BaseIntervalMilli int

	// MaxIntervalMilli caps the backoff delay. Default 30000.
	MaxIntervalMilli int

	// MaxRetryCount bounds the number of retries per operation before
	// RetryOverError is raised. Default 7.
	MaxRetryCount int

	// OnRetryOver, if set, is invoked with the terminal error whenever
	// retries are exhausted, in addition to it being returned to the
	// caller.
	OnRetryOver func(*RetryOverError)
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.BaseIntervalMilli == 0 {
		c.BaseIntervalMilli = 400
	}
	if c.MaxIntervalMilli == 0 {
		c.MaxIntervalMilli = 30000
	}
	if c.MaxRetryCount == 0 {
		c.MaxRetryCount = 7
	}
	return c
}

func (c RetryConfig) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Duration(c.BaseIntervalMilli) * time.Millisecond
	eb.Multiplier = 2
	eb.MaxInterval = time.Duration(c.MaxIntervalMilli) * time.Millisecond
	eb.MaxElapsedTime = 0
	return backoff.WithMaxRetries(eb, uint64(c.MaxRetryCount))
}

// RetryableSender wraps any Sender with exponential backoff (C5). A
// *NonRetryableError from the wrapped sender short-circuits the retry
// loop immediately.
type RetryableSender struct {
	inner  Sender
	config RetryConfig
	logger logger.Logger
}

// NewRetryableSender wraps inner with backoff retry behavior.
func NewRetryableSender(parentLogger logger.Logger, inner Sender, config RetryConfig) *RetryableSender {
	return &RetryableSender{
		inner:  inner,
		config: config.withDefaults(),
		logger: parentLogger.WithField("component", "retryable-sender"),
	}
}

// IsAvailable delegates to the wrapped sender.
func (r *RetryableSender) IsAvailable() bool {
	return r.inner.IsAvailable()
}

// Close delegates to the wrapped sender.
func (r *RetryableSender) Close() error {
	return r.inner.Close()
}

// Send retries the wrapped Send call with exponential backoff.
func (r *RetryableSender) Send(buffers [][]byte) error {
	return r.retry(func() error { return r.inner.Send(buffers) })
}

// SendWithAck retries the wrapped SendWithAck call with exponential
// backoff.
func (r *RetryableSender) SendWithAck(buffers [][]byte, token []byte) error {
	return r.retry(func() error { return r.inner.SendWithAck(buffers, token) })
}

func (r *RetryableSender) retry(op func() error) error {
	attempts := 0
	var lastErr error

	err := backoff.Retry(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}

		var nonRetryable *NonRetryableError
		if errors.As(err, &nonRetryable) {
			lastErr = err
			return backoff.Permanent(err)
		}

		lastErr = err
		r.logger.Debugf("retrying after error (attempt %d): %v", attempts, err)
		return err
	}, r.config.newBackOff())

	if err == nil {
		return nil
	}

	var nonRetryable *NonRetryableError
	if errors.As(err, &nonRetryable) {
		return err
	}

	retryOver := &RetryOverError{Attempts: attempts, Last: lastErr}
	if r.config.OnRetryOver != nil {
		r.config.OnRetryOver(retryOver)
	}
	return retryOver
}
