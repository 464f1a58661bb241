package sender

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
)

// FailureObserver is notified of I/O failures on a NetworkSender's
// connection, independent of any heartbeat schedule. Satisfied by
// *failuredetect.Detector.
type FailureObserver interface {
	OnFailure(now time.Time)
}

// AvailabilityProbe reports current liveness for IsAvailable. Satisfied
// by *failuredetect.Detector.
type AvailabilityProbe interface {
	IsAvailable() bool
}

// NetworkSender is a Sender backed by a single lazily-opened TCP
// connection to one upstream (C3). It is safe for concurrent use: all
// writes are serialized through sendMu.
type NetworkSender struct {
	config Config
	logger logger.Logger

	onFailure    FailureObserver
	availability AvailabilityProbe

	sendMu sync.Mutex
	conn   net.Conn
}

// NewNetworkSender creates a NetworkSender. The connection is not dialed
// until the first Send/SendWithAck call. onFailure and availability may
// be nil; in a MultiSender, the same *failuredetect.Detector is
// typically passed for both so that phi-driven suspicion (fed by
// heartbeats) and I/O failures jointly gate IsAvailable.
func NewNetworkSender(parentLogger logger.Logger, config Config, onFailure FailureObserver, availability AvailabilityProbe) *NetworkSender {
	config = config.withDefaults()
	return &NetworkSender{
		config:       config,
		logger:       parentLogger.WithField("upstream", fmt.Sprintf("%s:%d", config.Host, config.Port)),
		onFailure:    onFailure,
		availability: availability,
	}
}

// IsAvailable delegates to the configured AvailabilityProbe, or reports
// true if none was given.
func (s *NetworkSender) IsAvailable() bool {
	if s.availability == nil {
		return true
	}
	return s.availability.IsAvailable()
}

// Send writes buffers to the upstream without waiting for an ack.
func (s *NetworkSender) Send(buffers [][]byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	conn, err := s.connectionLocked()
	if err != nil {
		return err
	}
	if err := writeAll(conn, buffers); err != nil {
		s.failLocked(err)
		return err
	}
	return nil
}

// SendWithAck writes buffers then blocks, within ReadTimeout, for the
// upstream to echo back {ack: token}.
func (s *NetworkSender) SendWithAck(buffers [][]byte, token []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	conn, err := s.connectionLocked()
	if err != nil {
		return err
	}
	if err := writeAll(conn, buffers); err != nil {
		s.failLocked(err)
		return err
	}

	if err := conn.SetReadDeadline(time.Now().Add(s.config.readTimeout())); err != nil {
		s.failLocked(err)
		return err
	}
	ack := forwardprotocol.Ack{}
	decoder := newAckDecoder(conn)
	if err := decoder(&ack); err != nil {
		s.failLocked(err)
		if isTimeout(err) {
			return ErrAckTimeout
		}
		return err
	}
	if ack.Ack != string(token) {
		return ErrAckMismatch
	}
	return nil
}

// Close sleeps WaitBeforeClose then closes the connection, if open.
func (s *NetworkSender) Close() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.conn == nil {
		return nil
	}
	time.Sleep(s.config.waitBeforeClose())
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *NetworkSender) connectionLocked() (net.Conn, error) {
	if s.conn != nil {
		return s.conn, nil
	}

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	conn, err := net.DialTimeout("tcp", addr, s.config.connectionTimeout())
	if err != nil {
		s.failLocked(err)
		return nil, err
	}

	if s.config.SharedKey != "" {
		ok, reason, herr := forwardprotocol.DoClientHandshake(conn, s.config.SharedKey, s.config.Username, s.config.Password, s.config.connectionTimeout())
		if herr != nil {
			conn.Close()
			s.failLocked(herr)
			return nil, herr
		}
		if !ok {
			conn.Close()
			err := &NonRetryableError{Reason: reason}
			s.failLocked(err)
			return nil, err
		}
		if err := conn.SetDeadline(time.Time{}); err != nil {
			conn.Close()
			return nil, err
		}
	}

	s.logger.Infof("connected to %s:%d", s.config.Host, s.config.Port)
	s.conn = conn
	return conn, nil
}

func (s *NetworkSender) failLocked(err error) {
	s.logger.Warnf("connection failure: %v", err)
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.onFailure != nil {
		s.onFailure.OnFailure(time.Now())
	}
}

func writeAll(conn net.Conn, buffers [][]byte) error {
	w := bufio.NewWriterSize(conn, 64*1024)
	for _, b := range buffers {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return w.Flush()
}

func newAckDecoder(conn net.Conn) func(*forwardprotocol.Ack) error {
	return func(ack *forwardprotocol.Ack) error {
		return decodeAck(conn, ack)
	}
}

func isTimeout(err error) bool {
	type timeouter interface {
		Timeout() bool
	}
	te, ok := err.(timeouter)
	return ok && te.Timeout()
}
