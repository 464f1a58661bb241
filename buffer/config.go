package buffer

import (
	"time"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
)

// EncodeRecordFunc serializes one application record, together with its
// tag and timestamp, into the bytes of a single msgpack [time, record]
// pair. Swapping it out lets callers plug in their own MessagePack
// encoder; Buffer never assumes a specific serialization library beyond
// "produces valid msgpack bytes".
type EncodeRecordFunc func(tag string, ts forwardprotocol.EventTime, record map[string]interface{}) ([]byte, error)

// Config holds the tunables of the per-tag chunk buffer. Zero-value fields
// are filled with the defaults listed below by NewBuffer.
type Config struct {
	// MaxBufferSize is the global byte budget across current + queued
	// chunks. Default 512 MiB.
	MaxBufferSize int64

	// ChunkInitialSize is the capacity a freshly created chunk starts
	// with. Default 1 MiB.
	ChunkInitialSize int

	// ChunkRetentionSize seals a chunk once it reaches this many bytes.
	// Default 4 MiB.
	ChunkRetentionSize int

	// ChunkExpandRatio is the multiplier applied to a chunk's capacity
	// when it needs to grow. Default 2.0.
	ChunkExpandRatio float64

	// ChunkRetentionTime seals a chunk once it is this old, regardless
	// of size. Default 1s.
	ChunkRetentionTime time.Duration

	// AckResponseMode requests and verifies a per-chunk ack from the
	// upstream. Default false.
	AckResponseMode bool

	// OffHeap selects a direct/off-heap byte region where the host
	// runtime supports it. Go has no off-heap allocation distinct from
	// the garbage-collected heap, so this flag is accepted for
	// interface parity with the originating design but does not change
	// behavior; see DESIGN.md.
	OffHeap bool

	// Compressed gzips the PackedForward payload before it is handed to
	// the sender, setting option.compressed accordingly. Default false.
	Compressed bool

	// FileBackupDir, if non-empty, enables spill-to-disk: chunks still
	// queued at Close are persisted here and rehydrated on the next
	// NewBuffer call against the same directory.
	FileBackupDir string

	// FileBackupPrefix names the files written under FileBackupDir.
	FileBackupPrefix string

	// EncodeRecord overrides how records are serialized. Defaults to a
	// vmihailenco/msgpack encoding of the [time, record] pair.
	EncodeRecord EncodeRecordFunc
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = 512 * 1024 * 1024
	}
	if c.ChunkInitialSize <= 0 {
		c.ChunkInitialSize = 1 * 1024 * 1024
	}
	if c.ChunkRetentionSize <= 0 {
		c.ChunkRetentionSize = 4 * 1024 * 1024
	}
	if c.ChunkExpandRatio <= 1.0 {
		c.ChunkExpandRatio = 2.0
	}
	if c.ChunkRetentionTime <= 0 {
		c.ChunkRetentionTime = 1000 * time.Millisecond
	}
	if c.EncodeRecord == nil {
		c.EncodeRecord = defaultEncodeRecord
	}
	return c
}
