package fluentforward

import (
	"github.com/relex/fluentforward/buffer"
	"github.com/relex/fluentforward/sender"
)

// Re-exported error values and types so callers of this package never
// need to import buffer/sender directly to do error classification
// (spec.md §7's error kinds: BufferFull, AckMismatch/AckTimeout,
// RetryOver, NonRetryable; TransientIO and Interrupted surface as plain
// wrapped errors from the standard library/net package, there being no
// single sentinel for either).
var (
	// ErrBufferFull is returned by Emit when the buffer is full and an
	// opportunistic flush did not free enough space.
	ErrBufferFull = buffer.ErrBufferFull

	// ErrInvalidTag is returned by Emit for an empty tag.
	ErrInvalidTag = buffer.ErrInvalidTag

	// ErrAckMismatch is returned by the sending path when the upstream
	// echoed a chunk id that does not match the one sent.
	ErrAckMismatch = sender.ErrAckMismatch

	// ErrAckTimeout is returned by the sending path when no ack arrived
	// within the configured read timeout.
	ErrAckTimeout = sender.ErrAckTimeout

	// ErrNoAvailableSender is returned when every configured endpoint is
	// unavailable.
	ErrNoAvailableSender = sender.ErrNoAvailableSender
)

// RetryOverError is raised once the retry strategy is exhausted; see
// sender.RetryOverError.
type RetryOverError = sender.RetryOverError

// NonRetryableError marks a failure that retrying will not fix, such as
// a rejected handshake; see sender.NonRetryableError.
type NonRetryableError = sender.NonRetryableError
