package fluentforward

import (
	"fmt"
	"sync"
	"time"

	"github.com/relex/fluentforward/buffer"
	"github.com/relex/fluentforward/flush"
	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/fluentforward/sender"
	"github.com/relex/fluentforward/sender/failuredetect"
	"github.com/relex/fluentforward/sender/heartbeat"
	"github.com/relex/fluentforward/transport"
	"github.com/relex/gotils/logger"
)

// Forwarder is the ingester façade (C8): the public emit/flush/close
// surface that owns the lifecycle of the buffer, flusher, and sender
// stack underneath it.
type Forwarder struct {
	logger      logger.Logger
	buffer      *buffer.Buffer
	flusher     flush.Flusher
	sender      sender.Sender
	transporter buffer.ChunkSender

	probers []heartbeatStopper

	closeOnce sync.Once
}

type heartbeatStopper interface {
	Stop()
}

// New constructs a Forwarder and starts its flusher. Endpoints are
// dialed lazily on first send.
func New(parentLogger logger.Logger, config Config) (*Forwarder, error) {
	config = config.withDefaults()
	flogger := parentLogger.WithField("component", "fluentforward")

	buf, err := buffer.NewBuffer(flogger, config.Buffer)
	if err != nil {
		return nil, fmt.Errorf("constructing buffer: %w", err)
	}

	f := &Forwarder{
		logger: flogger,
		buffer: buf,
	}

	children := make([]sender.Sender, 0, len(config.Endpoints))
	for i, epConfig := range config.Endpoints {
		// The detector is only wired into IsAvailable when heartbeats
		// actually run: phi-accrual suspicion is driven entirely by
		// inter-arrival statistics, so with no heartbeat feeding it,
		// phi would drift to "always suspect" from elapsed time alone
		// rather than from any real liveness signal.
		var observer sender.FailureObserver
		var probe sender.AvailabilityProbe
		if !config.DisableHeartbeat {
			detector := failuredetect.NewDetector(config.FailureDetector)
			observer = detector
			probe = detector

			addr := fmt.Sprintf("%s:%d", epConfig.Host, epConfig.Port)
			prober := heartbeat.NewTCPProber(flogger.WithField("endpoint", i), heartbeat.Config{
				Address:     addr,
				Interval:    config.Heartbeat.Interval,
				DialTimeout: config.Heartbeat.DialTimeout,
			}, detector)
			prober.Start()
			f.probers = append(f.probers, prober)
		}

		networkSender := sender.NewNetworkSender(flogger.WithField("endpoint", i), epConfig, observer, probe)
		children = append(children, networkSender)
	}

	var top sender.Sender
	if len(children) == 1 {
		top = children[0]
	} else {
		top = sender.NewMultiSender(children)
	}
	f.sender = sender.NewRetryableSender(flogger, top, config.Retry)

	transportConfig := config.Transport
	transportConfig.AckResponseMode = transportConfig.AckResponseMode || config.Buffer.AckResponseMode
	transportConfig.Compressed = transportConfig.Compressed || config.Buffer.Compressed
	transporter := transport.NewTransporter(flogger, f.sender, transportConfig)
	f.transporter = transporter

	if config.UseSyncFlusher {
		f.flusher = flush.NewSyncFlusher(flogger, buf, transporter)
	} else {
		flushConfig := config.Flush
		flushConfig.WaitUntilTerminated = time.Duration(config.WaitUntilTerminatedSeconds) * time.Second
		f.flusher = flush.NewPeriodicFlusher(flogger, buf, transporter, flushConfig)
	}

	return f, nil
}

// Emit appends record under tag with the current time.
func (f *Forwarder) Emit(tag string, record map[string]interface{}) error {
	return f.EmitWithTime(tag, time.Now(), record)
}

// EmitWithTime appends record under tag with an explicit timestamp.
func (f *Forwarder) EmitWithTime(tag string, ts time.Time, record map[string]interface{}) error {
	return f.buffer.AppendRecord(tag, forwardprotocol.EventTime{Time: ts}, record)
}

// EmitSerialized appends a pre-serialized msgpack record map under tag,
// skipping the buffer's own map encoding step.
func (f *Forwarder) EmitSerialized(tag string, ts time.Time, recordBytes []byte) error {
	return f.buffer.AppendSerialized(tag, forwardprotocol.EventTime{Time: ts}, recordBytes)
}

// Flush requests an immediate non-forced flush.
func (f *Forwarder) Flush() {
	f.flusher.RequestFlush()
}

// Close drains and shuts down the forwarder. Idempotent.
func (f *Forwarder) Close() error {
	var err error
	f.closeOnce.Do(func() {
		err = f.flusher.Close(true)
		if berr := f.buffer.Close(f.transporter); berr != nil && err == nil {
			err = berr
		}
		for _, p := range f.probers {
			p.Stop()
		}
		if cerr := f.sender.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

// WaitUntilAllBufferFlushed blocks up to timeout for BufferedChunks to
// reach zero, returning whether it did.
func (f *Forwarder) WaitUntilAllBufferFlushed(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if f.buffer.BufferedChunks() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// WaitUntilFlusherTerminated blocks up to timeout for the flusher to
// signal termination, returning whether it did.
func (f *Forwarder) WaitUntilFlusherTerminated(timeout time.Duration) bool {
	return f.flusher.Terminated().Wait(timeout)
}

// IsTerminated reports whether the flusher has fully stopped.
func (f *Forwarder) IsTerminated() bool {
	return f.flusher.Terminated().Peek()
}

// AllocatedBufferSize reports the buffer's current reserved byte count.
func (f *Forwarder) AllocatedBufferSize() int64 {
	return f.buffer.AllocatedBytes()
}

// BufferedChunks reports the number of sealed chunks awaiting flush.
func (f *Forwarder) BufferedChunks() int {
	return f.buffer.BufferedChunks()
}

// ClearBackupFiles removes any persisted spill files.
func (f *Forwarder) ClearBackupFiles() error {
	return f.buffer.ClearBackupFiles()
}
