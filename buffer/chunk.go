package buffer

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Chunk is a sealed, immutable snapshot of one tag's accumulated records,
// ready to be framed and sent. Its bytes are a valid concatenation of
// msgpack [time, record] pairs (a PackedForward payload).
type Chunk struct {
	Tag       string
	Bytes     []byte
	Count     int
	ID        [16]byte
	CreatedAt time.Time
}

// ChunkIDBase64 returns the base64 encoding of the 16 raw chunk-id bytes,
// the form used in the ack-mode "chunk" option per the wire format.
func (c Chunk) ChunkIDBase64() string {
	return base64.StdEncoding.EncodeToString(c.ID[:])
}

// chunk is the mutable, growable region backing one tag's current chunk.
type chunk struct {
	tag       string
	buf       []byte
	capacity  int
	count     int
	createdAt time.Time
	id        [16]byte
}

func newChunk(tag string, capacity int) *chunk {
	return &chunk{
		tag:       tag,
		buf:       make([]byte, 0, capacity),
		capacity:  capacity,
		createdAt: time.Now(),
		id:        uuid.New(),
	}
}

func (c *chunk) size() int {
	return len(c.buf)
}

func (c *chunk) ageMillis() int64 {
	return time.Since(c.createdAt).Milliseconds()
}

// grow extends the chunk's reserved capacity. Callers must have already
// accounted for the capacity delta against the buffer's global budget.
func (c *chunk) grow(newCapacity int) {
	if newCapacity <= c.capacity {
		return
	}
	grown := make([]byte, len(c.buf), newCapacity)
	copy(grown, c.buf)
	c.buf = grown
	c.capacity = newCapacity
}

func (c *chunk) append(pair []byte) {
	c.buf = append(c.buf, pair...)
	c.count++
}

func (c *chunk) seal() Chunk {
	return Chunk{
		Tag:       c.tag,
		Bytes:     c.buf,
		Count:     c.count,
		ID:        c.id,
		CreatedAt: c.createdAt,
	}
}
