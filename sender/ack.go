package sender

import (
	"io"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/vmihailenco/msgpack/v4"
)

// decodeAck reads a single msgpack-encoded Ack from r. Fluentd acks are
// tiny ({"ack": "<token>"}), so a bounded single decode is sufficient;
// no framing beyond msgpack's own self-delimiting encoding is needed.
func decodeAck(r io.Reader, ack *forwardprotocol.Ack) error {
	return msgpack.NewDecoder(r).Decode(ack)
}
