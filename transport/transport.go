// Package transport implements C9: translating sealed buffer.Chunks into
// the Fluentd Forward Protocol's [tag, entries, option] wire frame and
// handing the framed bytes to a sender.Sender, including optional gzip
// compression of the packed entries and ack-token round-tripping.
package transport

import (
	"bytes"

	"github.com/klauspost/compress/gzip"
	"github.com/relex/fluentforward/buffer"
	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/vmihailenco/msgpack/v4"
)

// Sender is the subset of sender.Sender that Transporter needs. Kept
// narrow so this package does not import the sender package's retry and
// failover concerns.
type Sender interface {
	Send(buffers [][]byte) error
	SendWithAck(buffers [][]byte, token []byte) error
}

// Config configures framing behavior.
type Config struct {
	// AckResponseMode requests an ack per chunk: option.chunk is set to
	// the chunk's base64 id and SendWithAck is used instead of Send.
	AckResponseMode bool

	// Compressed gzips the packed entries blob and sets
	// option.compressed accordingly.
	Compressed bool
}

// Transporter implements buffer.ChunkSender, framing each sealed chunk as
// a Forward Protocol message and delegating transmission to a Sender.
type Transporter struct {
	sender Sender
	config Config
	logger logger.Logger
}

var _ buffer.ChunkSender = (*Transporter)(nil)

// NewTransporter creates a Transporter delegating to sender.
func NewTransporter(parentLogger logger.Logger, sender Sender, config Config) *Transporter {
	return &Transporter{
		sender: sender,
		config: config,
		logger: parentLogger.WithField("component", "transport"),
	}
}

// SendChunk frames c as a Forward Protocol message and sends it.
func (t *Transporter) SendChunk(c buffer.Chunk) error {
	entriesBlob := c.Bytes
	compressed := ""
	if t.config.Compressed {
		gzipped, err := gzipBlob(entriesBlob)
		if err != nil {
			return err
		}
		entriesBlob = gzipped
		compressed = forwardprotocol.CompressionFormat
	}

	option := forwardprotocol.TransportOption{
		Size:       c.Count,
		Compressed: compressed,
	}
	if t.config.AckResponseMode {
		option.Chunk = c.ChunkIDBase64()
	}

	frame, err := encodeFrame(c.Tag, entriesBlob, &option)
	if err != nil {
		return err
	}

	buffers := [][]byte{frame}

	if t.config.AckResponseMode {
		return t.sender.SendWithAck(buffers, []byte(option.Chunk))
	}
	return t.sender.Send(buffers)
}

// encodeFrame writes the full [tag, entries, option] array: entries as a
// single msgpack bin blob (the chunk is already packed msgpack bytes),
// option as a regular struct encode.
func encodeFrame(tag string, entriesBlob []byte, option *forwardprotocol.TransportOption) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(3); err != nil {
		return nil, err
	}
	if err := enc.EncodeString(tag); err != nil {
		return nil, err
	}
	if err := enc.EncodeBytes(entriesBlob); err != nil {
		return nil, err
	}
	if err := enc.Encode(option); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipBlob(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
