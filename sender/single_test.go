package sender

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"
)

func TestNetworkSenderSendWithAck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io := bufio.NewReader(conn)
		_, _ = io.Discard(5)
		enc := msgpack.NewEncoder(conn)
		_ = enc.Encode(&forwardprotocol.Ack{Ack: "token123"})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := NewNetworkSender(logger.Root(), Config{Host: addr.IP.String(), Port: addr.Port, ReadTimeoutMilli: 2000}, nil, nil)
	defer s.Close()

	err = s.SendWithAck([][]byte{[]byte("hello")}, []byte("token123"))
	require.NoError(t, err)
}

func TestNetworkSenderAckMismatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io := bufio.NewReader(conn)
		_, _ = io.Discard(5)
		enc := msgpack.NewEncoder(conn)
		_ = enc.Encode(&forwardprotocol.Ack{Ack: "other"})
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := NewNetworkSender(logger.Root(), Config{Host: addr.IP.String(), Port: addr.Port, ReadTimeoutMilli: 2000}, nil, nil)
	defer s.Close()

	err = s.SendWithAck([][]byte{[]byte("hello")}, []byte("token123"))
	assert.ErrorIs(t, err, ErrAckMismatch)
}

func TestNetworkSenderAckTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	s := NewNetworkSender(logger.Root(), Config{Host: addr.IP.String(), Port: addr.Port, ReadTimeoutMilli: 50}, nil, nil)
	defer s.Close()

	err = s.SendWithAck([][]byte{[]byte("hello")}, []byte("token123"))
	assert.ErrorIs(t, err, ErrAckTimeout)
}

func TestNetworkSenderNotifiesOnFailureObserver(t *testing.T) {
	var observed bool
	obs := failureObserverFunc(func(now time.Time) { observed = true })

	s := NewNetworkSender(logger.Root(), Config{Host: "127.0.0.1", Port: 1, ConnectionTimeoutMilli: 50}, obs, nil)
	err := s.Send([][]byte{[]byte("x")})
	assert.Error(t, err)
	assert.True(t, observed)
}

type failureObserverFunc func(time.Time)

func (f failureObserverFunc) OnFailure(now time.Time) { f(now) }

func TestNetworkSenderIsAvailableDelegatesToProbe(t *testing.T) {
	s := NewNetworkSender(logger.Root(), Config{Host: "127.0.0.1", Port: 1}, nil, nil)
	assert.True(t, s.IsAvailable(), "with no probe configured, IsAvailable defaults to true")

	probe := availabilityProbeFunc(func() bool { return false })
	s2 := NewNetworkSender(logger.Root(), Config{Host: "127.0.0.1", Port: 1}, nil, probe)
	assert.False(t, s2.IsAvailable())
}

type availabilityProbeFunc func() bool

func (f availabilityProbeFunc) IsAvailable() bool { return f() }
