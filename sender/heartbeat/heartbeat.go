// Package heartbeat implements the periodic liveness probes (C2) that
// feed a failuredetect.Detector: a TCP prober that opens and closes a
// short-lived connection every tick, and a UDP prober that fires a
// datagram on a schedule without waiting for any reply.
package heartbeat

import (
	"net"
	"sync"
	"time"

	"github.com/relex/gotils/logger"
)

// ArrivalRecorder receives heartbeat arrival notifications. Satisfied by
// *failuredetect.Detector.
type ArrivalRecorder interface {
	OnHeartbeat(now time.Time)
}

// Config tunes a prober.
type Config struct {
	// Address is the host:port to probe.
	Address string

	// Interval between probes. Default 1s.
	Interval time.Duration

	// DialTimeout bounds each probe attempt. Default 1s.
	DialTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = time.Second
	}
	return c
}

// TCPProber opens a fresh TCP connection to Address on every tick and
// records an arrival if the dial succeeds, then closes it immediately.
// A failed dial is simply not recorded: the detector's own phi decay
// does the rest.
type TCPProber struct {
	config   Config
	recorder ArrivalRecorder
	logger   logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewTCPProber creates a stopped prober; call Start to begin probing.
func NewTCPProber(parentLogger logger.Logger, config Config, recorder ArrivalRecorder) *TCPProber {
	return &TCPProber{
		config:   config.withDefaults(),
		recorder: recorder,
		logger:   parentLogger.WithField("component", "heartbeat-tcp"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the probe loop in a new goroutine.
func (p *TCPProber) Start() {
	go p.run()
}

// Stop halts the probe loop and waits for it to exit.
func (p *TCPProber) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

func (p *TCPProber) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.probeOnce()
		}
	}
}

func (p *TCPProber) probeOnce() {
	conn, err := net.DialTimeout("tcp", p.config.Address, p.config.DialTimeout)
	if err != nil {
		p.logger.Debugf("heartbeat dial to %s failed: %v", p.config.Address, err)
		return
	}
	defer conn.Close()
	p.recorder.OnHeartbeat(time.Now())
}

// UDPProber sends a single-byte datagram to Address on every tick. Since
// UDP delivery is not confirmed, every scheduled tick counts as an
// arrival: the prober only tells the detector "we tried", the detector's
// own decay over missed Send/SendWithAck failures is what actually
// signals unavailability for UDP-probed endpoints.
type UDPProber struct {
	config   Config
	recorder ArrivalRecorder
	logger   logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewUDPProber creates a stopped prober; call Start to begin probing.
func NewUDPProber(parentLogger logger.Logger, config Config, recorder ArrivalRecorder) *UDPProber {
	return &UDPProber{
		config:   config.withDefaults(),
		recorder: recorder,
		logger:   parentLogger.WithField("component", "heartbeat-udp"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the probe loop in a new goroutine.
func (p *UDPProber) Start() {
	go p.run()
}

// Stop halts the probe loop and waits for it to exit.
func (p *UDPProber) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
}

func (p *UDPProber) run() {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	conn, err := net.Dial("udp", p.config.Address)
	if err != nil {
		p.logger.Warnf("heartbeat udp dial to %s failed: %v", p.config.Address, err)
		return
	}
	defer conn.Close()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			_, _ = conn.Write([]byte{0})
			p.recorder.OnHeartbeat(time.Now())
		}
	}
}
