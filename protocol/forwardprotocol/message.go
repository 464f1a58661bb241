// Package forwardprotocol implements the wire types and handshake of the
// Fluentd Forward Protocol: the ordered, length-prefixed, MessagePack-framed
// TCP protocol spoken between a forwarding client and an upstream aggregator.
package forwardprotocol

// PayloadMode determines the format in which Message.Entries are serialized
// on the wire. The mode is inferred by the reader from the msgpack type of
// the second array element, never declared separately.
type PayloadMode string

const (
	// ModeForward serializes entries as a msgpack array of [time, record] pairs
	ModeForward PayloadMode = "Forward"

	// ModePackedForward packs the same pairs as one concatenated msgpack
	// binary blob, avoiding one array header per chunk. This is the mode
	// produced by the buffer (chunk bytes are already in this shape).
	ModePackedForward PayloadMode = "PackedForward"

	// ModeCompressedPackedForward is PackedForward with the blob gzip'd.
	ModeCompressedPackedForward PayloadMode = "CompressedPackedForward"
)

// CompressionFormat is the only compression scheme recognized in
// option.compressed.
const CompressionFormat = "gzip"

// Message is the 3-element Forward request: [tag, entries, option].
// It is never encoded directly from this struct on the sending side (the
// buffer already holds entries pre-packed as msgpack bytes); the struct
// exists for decoding on the receiving side and for tests.
type Message struct {
	_msgpack struct{}        `msgpack:",asArray"`
	Tag      string          `msgpack:"tag"`
	Entries  []EventEntry    `msgpack:"entries"`
	Option   TransportOption `msgpack:"option"`
}

// EventEntry is a single log record: a [time, record] pair.
type EventEntry struct {
	_msgpack struct{}               `msgpack:",asArray"`
	Time     EventTime              `msgpack:"time"`
	Record   map[string]interface{} `msgpack:"record"`
}

// TransportOption is the third element of a Forward request.
type TransportOption struct {
	_msgpack   struct{} `msgpack:",omitempty"`
	Size       int      `msgpack:"size" json:"size"`
	Chunk      string   `msgpack:"chunk" json:"chunk"`           // base64 of the 16-byte chunk id; empty unless ack mode
	Compressed string   `msgpack:"compressed" json:"compressed"` // CompressionFormat, or empty
}

// Ack is the upstream's acknowledgement of a chunk, sent only in ack mode.
type Ack struct {
	Ack string `msgpack:"ack"`
}

func init() {
	unusedStruct(Message{}._msgpack)
	unusedStruct(EventEntry{}._msgpack)
	unusedStruct(TransportOption{}._msgpack)
}
