// Package testupstream provides an in-process Fluentd Forward Protocol
// upstream (C10) used only by this module's own end-to-end tests: it
// decodes Messages the same way a real Fluentd aggregator would, can
// perform the server side of the HELO/PING/PONG handshake, and exposes
// every decoded message over a channel so tests can assert on what
// actually crossed the wire.
package testupstream

import (
	"bufio"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/vmihailenco/msgpack/v4"
)

var defs = struct {
	HandshakeTimeout     time.Duration
	BatchReadTimeoutBase time.Duration
	AckTimeout           time.Duration
}{
	HandshakeTimeout:     10 * time.Second,
	BatchReadTimeoutBase: 30 * time.Second,
	AckTimeout:           30 * time.Second,
}

// Config controls the upstream's behavior, including chaos knobs used to
// exercise the client's retry, failover and ack-timeout handling.
type Config struct {
	// Address to listen on; "127.0.0.1:0" picks a free port.
	Address string

	// SharedKey, if non-empty, requires the client to complete the
	// shared-key handshake.
	SharedKey string

	// RandomAuthFail is the chance, in [0,1], to reject the handshake.
	RandomAuthFail float64

	// RandomConnKill is the chance, in [0,1], to drop the connection
	// right after receiving a message, before acking it.
	RandomConnKill float64

	// RandomNoAnswer is the chance, in [0,1], to stop sending acks on a
	// connection after receiving a message (while continuing to accept
	// further messages on it).
	RandomNoAnswer float64
}

// Upstream is a test-only Forward Protocol listener.
type Upstream struct {
	logger   logger.Logger
	config   Config
	listener net.Listener
	connMap  sync.Map

	messages chan forwardprotocol.Message
}

// Start launches an Upstream in the background and returns it along with
// its bound address.
func Start(parentLogger logger.Logger, config Config) (*Upstream, net.Addr) {
	if config.Address == "" {
		config.Address = "127.0.0.1:0"
	}
	ulogger := parentLogger.WithField("component", "testupstream")
	ln, err := net.Listen("tcp", config.Address)
	if err != nil {
		ulogger.Panic("listen: ", err)
	}
	u := &Upstream{
		logger:   ulogger,
		config:   config,
		listener: ln,
		messages: make(chan forwardprotocol.Message, 1000),
	}
	go u.run()
	return u, ln.Addr()
}

// Messages returns the channel of decoded messages. It is never closed,
// not even by Shutdown.
func (u *Upstream) Messages() <-chan forwardprotocol.Message {
	return u.messages
}

// Shutdown stops accepting connections and forcibly closes all open ones.
func (u *Upstream) Shutdown() {
	u.listener.Close()
	u.connMap.Range(func(key, value interface{}) bool {
		value.(net.Conn).Close()
		return true
	})
}

func (u *Upstream) run() {
	for {
		conn, err := u.listener.Accept()
		if err != nil {
			u.logger.Debug("listener stopped: ", err)
			return
		}
		u.logger.Debugf("accepted connection from %s", conn.RemoteAddr())
		go u.runConn(conn)
	}
}

func (u *Upstream) runConn(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	clogger := u.logger.WithField("remote", conn.RemoteAddr())
	u.connMap.Store(addr, conn)
	defer u.connMap.Delete(addr)
	defer conn.Close()

	if u.config.SharedKey != "" {
		ok, err := forwardprotocol.DoServerHandshake(conn, u.config.SharedKey, defs.HandshakeTimeout, u.onAuth)
		if err != nil {
			clogger.Debug("handshake error: ", err)
			return
		}
		if !ok {
			clogger.Debug("client auth rejected")
			return
		}
	}

	ackCh := make(chan string, 1000)
	defer close(ackCh)
	go u.runAcknowledger(ackCh, conn, clogger)

	decoder := msgpack.NewDecoder(conn)
	stopAck := false
	for {
		if err := conn.SetReadDeadline(time.Now().Add(defs.BatchReadTimeoutBase)); err != nil {
			clogger.Debug("set read deadline: ", err)
			return
		}
		var message forwardprotocol.Message
		if err := decoder.Decode(&message); err != nil {
			clogger.Debug("decode: ", err)
			return
		}

		if rand.Float64() < u.config.RandomConnKill {
			clogger.Debug("chaos: killing connection")
			return
		}

		u.messages <- message

		if stopAck {
			continue
		}
		if len(message.Option.Chunk) > 0 {
			ackCh <- message.Option.Chunk
		}
		if rand.Float64() < u.config.RandomNoAnswer {
			clogger.Debug("chaos: going silent on acks")
			stopAck = true
		}
	}
}

func (u *Upstream) runAcknowledger(ackCh <-chan string, conn net.Conn, clogger logger.Logger) {
	w := bufio.NewWriter(conn)
	encoder := msgpack.NewEncoder(w)
	for chunkID := range ackCh {
		if err := conn.SetWriteDeadline(time.Now().Add(defs.AckTimeout)); err != nil {
			clogger.Debug("set write deadline: ", err)
			return
		}
		if err := encoder.Encode(&forwardprotocol.Ack{Ack: chunkID}); err != nil {
			clogger.Debug("encode ack: ", err)
			return
		}
		if err := w.Flush(); err != nil {
			clogger.Debug("flush ack: ", err)
			return
		}
	}
}

func (u *Upstream) onAuth(hostname, username, password string) (bool, string) {
	if rand.Float64() < u.config.RandomAuthFail {
		return false, "bad luck"
	}
	return true, ""
}
