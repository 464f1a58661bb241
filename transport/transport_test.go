package transport

import (
	"testing"

	"github.com/relex/fluentforward/buffer"
	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"
)

type recordingSender struct {
	sent  [][][]byte
	token []byte
}

func (r *recordingSender) Send(buffers [][]byte) error {
	r.sent = append(r.sent, buffers)
	return nil
}

func (r *recordingSender) SendWithAck(buffers [][]byte, token []byte) error {
	r.sent = append(r.sent, buffers)
	r.token = token
	return nil
}

func packedEntry(t *testing.T, tag string) []byte {
	t.Helper()
	entry := forwardprotocol.EventEntry{
		Time:   forwardprotocol.EventTime{},
		Record: map[string]interface{}{"msg": "hi"},
	}
	data, err := msgpack.Marshal(&entry)
	require.NoError(t, err)
	return data
}

func TestTransporterSendsUncompressedFrame(t *testing.T) {
	s := &recordingSender{}
	tr := NewTransporter(logger.Root(), s, Config{})

	blob := packedEntry(t, "my.tag")
	err := tr.SendChunk(buffer.Chunk{Tag: "my.tag", Bytes: blob, Count: 1})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)

	var decoded forwardprotocol.Message
	require.NoError(t, msgpack.Unmarshal(s.sent[0][0], &decoded))
	assert.Equal(t, "my.tag", decoded.Tag)
	require.Len(t, decoded.Entries, 1)
	assert.Empty(t, decoded.Option.Compressed)
}

func TestTransporterCompressesWhenConfigured(t *testing.T) {
	s := &recordingSender{}
	tr := NewTransporter(logger.Root(), s, Config{Compressed: true})

	blob := packedEntry(t, "my.tag")
	err := tr.SendChunk(buffer.Chunk{Tag: "my.tag", Bytes: blob, Count: 1})
	require.NoError(t, err)

	var decoded forwardprotocol.Message
	require.NoError(t, msgpack.Unmarshal(s.sent[0][0], &decoded))
	require.Len(t, decoded.Entries, 1)
	assert.Equal(t, forwardprotocol.CompressionFormat, decoded.Option.Compressed)
}

func TestTransporterAckModeSetsChunkOption(t *testing.T) {
	s := &recordingSender{}
	tr := NewTransporter(logger.Root(), s, Config{AckResponseMode: true})

	blob := packedEntry(t, "my.tag")
	c := buffer.Chunk{Tag: "my.tag", Bytes: blob, Count: 1}
	err := tr.SendChunk(c)
	require.NoError(t, err)
	assert.Equal(t, []byte(c.ChunkIDBase64()), s.token)

	var decoded forwardprotocol.Message
	require.NoError(t, msgpack.Unmarshal(s.sent[0][0], &decoded))
	assert.Equal(t, c.ChunkIDBase64(), decoded.Option.Chunk)
}
