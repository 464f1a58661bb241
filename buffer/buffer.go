// Package buffer implements the per-tag chunk buffer (C6): the hot path by
// which emitted records are coalesced into MessagePack-encoded, per-tag
// chunks under a shared byte budget, with file-backed spill for chunks
// still outstanding when the process shuts down.
package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
)

// ChunkSender is the capability the buffer needs from whatever sits
// downstream of it (normally the C9 framing layer wrapping the C3/C4/C5
// sender stack): hand it a sealed chunk and learn whether upstream durably
// accepted it.
type ChunkSender interface {
	SendChunk(Chunk) error
}

type tagState struct {
	mu      sync.Mutex
	current *chunk
}

// Buffer accumulates per-tag chunks under a global byte budget and hands
// sealed chunks to a ChunkSender on demand.
type Buffer struct {
	config Config
	logger logger.Logger

	tagsMu sync.Mutex
	tags   map[string]*tagState

	allocatedBytes int64 // atomic

	queueMu sync.Mutex
	queue   []*chunk

	flushHook func()
}

// NewBuffer creates a Buffer and, if config.FileBackupDir is set,
// rehydrates any spilled chunks left over from a previous process into the
// flush queue.
func NewBuffer(parentLogger logger.Logger, config Config) (*Buffer, error) {
	config = config.withDefaults()
	b := &Buffer{
		config: config,
		logger: parentLogger.WithField("component", "buffer"),
		tags:   make(map[string]*tagState),
	}
	if config.FileBackupDir != "" {
		restored, err := rehydrate(config.FileBackupDir, config.FileBackupPrefix)
		if err != nil {
			return nil, fmt.Errorf("rehydrate backup files: %w", err)
		}
		for _, c := range restored {
			b.enqueueSealed(c)
			atomic.AddInt64(&b.allocatedBytes, int64(c.capacity))
		}
		if len(restored) > 0 {
			b.logger.Infof("rehydrated %d spilled chunks from %s", len(restored), config.FileBackupDir)
		}
	}
	return b, nil
}

// SetFlushHook registers the callback AppendRecord and AppendSerialized use to attempt a single
// opportunistic flush before failing with ErrBufferFull. Wired by the
// flusher/façade once the sender stack exists; nil is safe (append simply
// fails immediately once the budget is exhausted).
func (b *Buffer) SetFlushHook(hook func()) {
	b.flushHook = hook
}

// AllocatedBytes returns the current sum of outstanding chunk capacities.
func (b *Buffer) AllocatedBytes() int64 {
	return atomic.LoadInt64(&b.allocatedBytes)
}

// BufferedChunks returns the number of sealed chunks waiting to be sent.
func (b *Buffer) BufferedChunks() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

func (b *Buffer) tagStateFor(tag string) *tagState {
	b.tagsMu.Lock()
	defer b.tagsMu.Unlock()
	ts, ok := b.tags[tag]
	if !ok {
		ts = &tagState{}
		b.tags[tag] = ts
	}
	return ts
}

// AppendRecord serializes record via the configured EncodeRecordFunc and
// appends the resulting [time, record] pair to tag's current chunk.
func (b *Buffer) AppendRecord(tag string, ts forwardprotocol.EventTime, record map[string]interface{}) error {
	if tag == "" {
		return ErrInvalidTag
	}
	pair, err := b.config.EncodeRecord(tag, ts, record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return b.appendPair(tag, pair)
}

// AppendSerialized appends a record whose msgpack map bytes are already
// serialized by the caller, pairing them with ts without re-encoding.
func (b *Buffer) AppendSerialized(tag string, ts forwardprotocol.EventTime, recordBytes []byte) error {
	if tag == "" {
		return ErrInvalidTag
	}
	pair, err := encodePreSerializedPair(ts, recordBytes)
	if err != nil {
		return fmt.Errorf("encode pre-serialized record: %w", err)
	}
	return b.appendPair(tag, pair)
}

func (b *Buffer) appendPair(tag string, pair []byte) error {
	state := b.tagStateFor(tag)

	state.mu.Lock()
	sealedForFlush, err := b.appendLocked(state, tag, pair)
	state.mu.Unlock()

	if sealedForFlush != nil {
		b.enqueueSealed(sealedForFlush)
	}

	if err == ErrBufferFull && b.flushHook != nil {
		b.flushHook()
		state.mu.Lock()
		sealedForFlush, err = b.appendLocked(state, tag, pair)
		state.mu.Unlock()
		if sealedForFlush != nil {
			b.enqueueSealed(sealedForFlush)
		}
	}

	return err
}

// appendLocked runs the append algorithm for one tag under its tag lock.
// It returns a chunk that was sealed as a side effect of making room, if
// any (the caller enqueues it after releasing the tag lock).
func (b *Buffer) appendLocked(state *tagState, tag string, pair []byte) (*chunk, error) {
	delta := len(pair)
	var sealedBySizing *chunk

	if state.current == nil {
		cap0 := b.config.ChunkInitialSize
		if delta > cap0 {
			cap0 = delta
		}
		if !b.reserveCapacity(int64(cap0)) {
			return nil, ErrBufferFull
		}
		state.current = newChunk(tag, cap0)
	} else if state.current.size()+delta > state.current.capacity {
		if state.current.capacity < b.config.ChunkRetentionSize {
			grownCap := int(float64(state.current.capacity) * b.config.ChunkExpandRatio)
			if grownCap > b.config.ChunkRetentionSize {
				grownCap = b.config.ChunkRetentionSize
			}
			if grownCap > state.current.capacity {
				growDelta := grownCap - state.current.capacity
				if b.reserveCapacity(int64(growDelta)) {
					state.current.grow(grownCap)
				}
			}
		}

		if state.current.size()+delta > state.current.capacity {
			sealedBySizing = state.current
			newCap := b.config.ChunkInitialSize
			if delta > newCap {
				newCap = delta
			}
			if !b.reserveCapacity(int64(newCap)) {
				// Leave the old chunk sealed and queued by the caller, but
				// there is nowhere to put the new record: undo nothing (the
				// sealed chunk's capacity remains correctly accounted) and
				// fail this append.
				state.current = nil
				return sealedBySizing, ErrBufferFull
			}
			state.current = newChunk(tag, newCap)
		}
	}

	state.current.append(pair)

	if state.current.size() >= b.config.ChunkRetentionSize || state.current.ageMillis() >= b.config.ChunkRetentionTime.Milliseconds() {
		done := state.current
		state.current = nil
		if sealedBySizing != nil {
			// Both the pre-existing chunk and the one we just filled sealed
			// in the same call; queue the first immediately and return the
			// second through the normal path.
			b.enqueueSealed(sealedBySizing)
			sealedBySizing = nil
		}
		return done, nil
	}

	return sealedBySizing, nil
}

func (b *Buffer) reserveCapacity(delta int64) bool {
	for {
		cur := atomic.LoadInt64(&b.allocatedBytes)
		if cur+delta > b.config.MaxBufferSize {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.allocatedBytes, cur, cur+delta) {
			return true
		}
	}
}

func (b *Buffer) releaseCapacity(delta int64) {
	atomic.AddInt64(&b.allocatedBytes, -delta)
}

func (b *Buffer) enqueueSealed(c *chunk) {
	b.queueMu.Lock()
	b.queue = append(b.queue, c)
	b.queueMu.Unlock()
}

// Flush seals every tag's current chunk (if force, or if it has reached
// its age limit) and hands all sealed chunks to sender in FIFO order. A
// chunk is freed (its capacity released) only once sender reports success;
// on the first failure, remaining chunks stay queued for the next Flush.
func (b *Buffer) Flush(sender ChunkSender, force bool) error {
	b.sealEligibleCurrentChunks(force)
	return b.drainQueue(sender)
}

func (b *Buffer) sealEligibleCurrentChunks(force bool) {
	b.tagsMu.Lock()
	states := make([]*tagState, 0, len(b.tags))
	for _, ts := range b.tags {
		states = append(states, ts)
	}
	b.tagsMu.Unlock()

	for _, state := range states {
		state.mu.Lock()
		if state.current != nil && (force || state.current.ageMillis() >= b.config.ChunkRetentionTime.Milliseconds()) {
			done := state.current
			state.current = nil
			state.mu.Unlock()
			b.enqueueSealed(done)
			continue
		}
		state.mu.Unlock()
	}
}

func (b *Buffer) drainQueue(sender ChunkSender) error {
	for {
		b.queueMu.Lock()
		if len(b.queue) == 0 {
			b.queueMu.Unlock()
			return nil
		}
		next := b.queue[0]
		b.queueMu.Unlock()

		if err := sender.SendChunk(next.seal()); err != nil {
			return fmt.Errorf("send chunk for tag %s: %w", next.tag, err)
		}

		b.queueMu.Lock()
		if len(b.queue) > 0 && b.queue[0] == next {
			b.queue = b.queue[1:]
		}
		b.queueMu.Unlock()
		b.releaseCapacity(int64(next.capacity))
	}
}

// Close forces a full flush, then spills any chunk that is still queued
// (because the sender kept failing) to FileBackupDir, if configured. When
// every remaining chunk was spilled, Close returns nil even if the flush
// failed; otherwise it returns the flush error.
func (b *Buffer) Close(sender ChunkSender) error {
	flushErr := b.Flush(sender, true)

	if b.config.FileBackupDir == "" {
		return flushErr
	}

	b.queueMu.Lock()
	remaining := b.queue
	b.queue = nil
	b.queueMu.Unlock()

	spillFailed := false
	for _, c := range remaining {
		if err := spill(b.config.FileBackupDir, b.config.FileBackupPrefix, c); err != nil {
			b.logger.Errorf("failed to spill chunk for tag %s: %v", c.tag, err)
			spillFailed = true
			continue
		}
		b.releaseCapacity(int64(c.capacity))
	}

	if spillFailed {
		return flushErr
	}
	return nil
}

// ClearBackupFiles removes any persisted spill files under FileBackupDir.
func (b *Buffer) ClearBackupFiles() error {
	if b.config.FileBackupDir == "" {
		return nil
	}
	return clearSpillFiles(b.config.FileBackupDir, b.config.FileBackupPrefix)
}
