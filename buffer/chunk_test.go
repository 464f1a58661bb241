package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkGrowPreservesBytes(t *testing.T) {
	c := newChunk("t", 4)
	c.append([]byte{1, 2, 3})
	c.grow(16)
	assert.Equal(t, 16, c.capacity)
	assert.Equal(t, []byte{1, 2, 3}, c.buf)
}

func TestChunkGrowNeverShrinks(t *testing.T) {
	c := newChunk("t", 32)
	c.grow(8)
	assert.Equal(t, 32, c.capacity)
}

func TestChunkSealSnapshotsBytesAndID(t *testing.T) {
	c := newChunk("t", 16)
	c.append([]byte{9, 9})
	snap := c.seal()
	assert.Equal(t, "t", snap.Tag)
	assert.Equal(t, []byte{9, 9}, snap.Bytes)
	assert.Equal(t, 1, snap.Count)
	assert.Len(t, snap.ChunkIDBase64(), 24) // base64 of 16 bytes
}

func TestChunkDistinctIDs(t *testing.T) {
	a := newChunk("t", 8)
	b := newChunk("t", 8)
	assert.NotEqual(t, a.id, b.id)
}
