// Package sender implements the C3/C4/C5 sending stack: a single
// TCP-connection sender, a multi-endpoint failover wrapper, and a
// retry-with-backoff wrapper, all sharing one capability contract.
package sender

// Sender is the capability contract every layer of the sending stack
// implements: a single network connection (C3), a round-robin failover
// group of senders (C4), or a retrying wrapper around either (C5).
type Sender interface {
	// Send writes buffers to the upstream without requesting an ack.
	Send(buffers [][]byte) error

	// SendWithAck writes buffers and blocks for the upstream's ack of
	// token, failing on mismatch, short read, or timeout.
	SendWithAck(buffers [][]byte, token []byte) error

	// IsAvailable reports whether this sender currently believes its
	// upstream is reachable. A sender that is always available may
	// simply return true.
	IsAvailable() bool

	// Close releases the sender's own resources, such as its socket. It
	// does not stop heartbeat probers or failure detectors wired into a
	// NetworkSender; Forwarder.Close stops its probers separately.
	Close() error
}
