package fluentforward

import (
	"github.com/relex/fluentforward/buffer"
	"github.com/relex/fluentforward/flush"
	"github.com/relex/fluentforward/sender"
	"github.com/relex/fluentforward/sender/failuredetect"
	"github.com/relex/fluentforward/sender/heartbeat"
	"github.com/relex/fluentforward/transport"
)

// Config aggregates every sub-component's configuration into the single
// value a Forwarder is constructed from (spec.md §9's "plain value-typed
// configuration record" design note, deliberately flat rather than a
// nested builder/Instantiator hierarchy).
type Config struct {
	// Buffer configures the per-tag chunk buffer (C6).
	Buffer buffer.Config

	// Transport configures ack mode and compression (C9).
	Transport transport.Config

	// Endpoints lists one or more upstream connections (C3). More than
	// one enables round-robin failover (C4).
	Endpoints []sender.Config

	// Retry configures the exponential-backoff wrapper (C5).
	Retry sender.RetryConfig

	// FailureDetector configures the φ-accrual estimator (C1).
	FailureDetector failuredetect.Config

	// Heartbeat configures the TCP liveness prober (C2). Ignored if
	// DisableHeartbeat is set.
	Heartbeat heartbeat.Config

	// DisableHeartbeat skips launching heartbeat probers and, with them,
	// the failure detectors: every endpoint then reports itself available
	// and failover reacts only to send errors.
	DisableHeartbeat bool

	// Flush configures the periodic flusher (C7). Ignored if
	// UseSyncFlusher is set. Its WaitUntilTerminated is replaced by
	// WaitUntilTerminatedSeconds.
	Flush flush.Config

	// UseSyncFlusher selects the synchronous, inline flush strategy
	// instead of the dedicated periodic worker.
	UseSyncFlusher bool

	// WaitUntilTerminatedSeconds bounds how long Close waits for the
	// flusher worker to exit after a drain. Default 60s, applied in New.
	WaitUntilTerminatedSeconds int
}

func (c Config) withDefaults() Config {
	if len(c.Endpoints) == 0 {
		c.Endpoints = []sender.Config{{}}
	}
	if c.WaitUntilTerminatedSeconds == 0 {
		c.WaitUntilTerminatedSeconds = 60
	}
	return c
}
