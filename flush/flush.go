// Package flush implements C7: the two strategies for draining a
// buffer.Buffer to its upstream transport — a dedicated background
// worker ticking on its own schedule (PeriodicFlusher), and an inline
// flush performed directly in the caller's goroutine (SyncFlusher).
package flush

import (
	"time"

	"github.com/relex/fluentforward/buffer"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// Flusher drains a buffer.Buffer to its upstream on some schedule.
type Flusher interface {
	// RequestFlush asks for an out-of-schedule flush as soon as
	// possible. Safe to call from any goroutine.
	RequestFlush()

	// Close stops the flusher. If waitUntilTerminated, it blocks until
	// the worker goroutine (if any) has fully exited.
	Close(waitUntilTerminated bool) error

	// Terminated is signaled once the flusher has fully stopped.
	Terminated() channels.Awaitable
}

// Config tunes a PeriodicFlusher.
type Config struct {
	// Interval between scheduled flushes. Default 600ms.
	Interval time.Duration

	// WaitUntilBufferFlushed bounds how long Close(true) waits for the
	// buffer to fully drain before giving up and returning anyway.
	// The drain stops at the first flush that returns an error, so with
	// a failing upstream it ends before this bound. Default 60s.
	WaitUntilBufferFlushed time.Duration

	// WaitUntilTerminated bounds how long Close(true) waits for the
	// worker goroutine to exit after the drain above. Default 60s.
	WaitUntilTerminated time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 600 * time.Millisecond
	}
	if c.WaitUntilBufferFlushed <= 0 {
		c.WaitUntilBufferFlushed = 60 * time.Second
	}
	if c.WaitUntilTerminated <= 0 {
		c.WaitUntilTerminated = 60 * time.Second
	}
	return c
}

// PeriodicFlusher runs Buffer.Flush on a fixed interval in a dedicated
// goroutine, in addition to on-demand requests, grounded on the
// ticker/channel worker loop relex-fluentlib's server package uses for
// its own background writer.
type PeriodicFlusher struct {
	buffer *buffer.Buffer
	sender buffer.ChunkSender
	logger logger.Logger
	config Config

	requestCh chan struct{}
	closeCh   chan struct{}
	doneCh    *channels.SignalAwaitable
}

var _ Flusher = (*PeriodicFlusher)(nil)

// NewPeriodicFlusher creates and starts a PeriodicFlusher.
func NewPeriodicFlusher(parentLogger logger.Logger, buf *buffer.Buffer, sender buffer.ChunkSender, config Config) *PeriodicFlusher {
	config = config.withDefaults()
	f := &PeriodicFlusher{
		buffer:    buf,
		sender:    sender,
		logger:    parentLogger.WithField("component", "periodic-flusher"),
		config:    config,
		requestCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}),
		doneCh:    channels.NewSignalAwaitable(),
	}
	buf.SetFlushHook(f.RequestFlush)
	go f.run()
	return f
}

// RequestFlush wakes the worker for an immediate flush.
func (f *PeriodicFlusher) RequestFlush() {
	select {
	case f.requestCh <- struct{}{}:
	default:
	}
}

// Close stops the periodic worker. If waitUntilTerminated, it blocks
// until the worker has drained the buffer (bounded by
// WaitUntilBufferFlushed) and exited, itself bounded by
// WaitUntilTerminated.
func (f *PeriodicFlusher) Close(waitUntilTerminated bool) error {
	select {
	case <-f.closeCh:
	default:
		close(f.closeCh)
	}
	if waitUntilTerminated {
		select {
		case <-f.doneCh.Channel():
		case <-time.After(f.config.WaitUntilTerminated):
			f.logger.Warnf("gave up waiting %v for the flusher worker to exit", f.config.WaitUntilTerminated)
		}
	}
	return nil
}

// Terminated signals once the worker goroutine has exited.
func (f *PeriodicFlusher) Terminated() channels.Awaitable {
	return f.doneCh
}

func (f *PeriodicFlusher) run() {
	defer f.doneCh.Signal()

	ticker := time.NewTicker(f.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.closeCh:
			f.drainUntilFlushedOrTimeout()
			return
		case <-f.requestCh:
			if err := f.buffer.Flush(f.sender, false); err != nil {
				f.logger.Warnf("flush failed: %v", err)
			}
		case <-ticker.C:
			if err := f.buffer.Flush(f.sender, false); err != nil {
				f.logger.Warnf("scheduled flush failed: %v", err)
			}
		}
	}
}

func (f *PeriodicFlusher) drainUntilFlushedOrTimeout() {
	deadline := time.Now().Add(f.config.WaitUntilBufferFlushed)
	for {
		if err := f.buffer.Flush(f.sender, true); err != nil {
			f.logger.Errorf("final flush failed: %v", err)
			return
		}
		if f.buffer.BufferedChunks() == 0 || time.Now().After(deadline) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// SyncFlusher performs Buffer.Flush inline on the calling goroutine every
// time RequestFlush is called, with no background worker of its own. It
// is appropriate for low-throughput or test scenarios where the extra
// goroutine of PeriodicFlusher is not worth its latency smoothing.
type SyncFlusher struct {
	buffer *buffer.Buffer
	sender buffer.ChunkSender
	logger logger.Logger
	doneCh *channels.SignalAwaitable
}

var _ Flusher = (*SyncFlusher)(nil)

// NewSyncFlusher creates a SyncFlusher.
func NewSyncFlusher(parentLogger logger.Logger, buf *buffer.Buffer, sender buffer.ChunkSender) *SyncFlusher {
	f := &SyncFlusher{
		buffer: buf,
		sender: sender,
		logger: parentLogger.WithField("component", "sync-flusher"),
		doneCh: channels.NewSignalAwaitable(),
	}
	buf.SetFlushHook(f.RequestFlush)
	return f
}

// RequestFlush flushes immediately, synchronously.
func (f *SyncFlusher) RequestFlush() {
	if err := f.buffer.Flush(f.sender, false); err != nil {
		f.logger.Warnf("flush failed: %v", err)
	}
}

// Close performs one final forced flush.
func (f *SyncFlusher) Close(waitUntilTerminated bool) error {
	defer f.doneCh.Signal()
	return f.buffer.Flush(f.sender, true)
}

// Terminated signals as soon as Close has run once; SyncFlusher has no
// background goroutine so there is nothing further to wait for.
func (f *SyncFlusher) Terminated() channels.Awaitable {
	return f.doneCh
}
