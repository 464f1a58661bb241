package buffer

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	chunks []Chunk
	fail   bool
}

func (s *recordingSender) SendChunk(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.chunks = append(s.chunks, c)
	return nil
}

func (s *recordingSender) records() []Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func now() forwardprotocol.EventTime {
	return forwardprotocol.EventTime{Time: time.Now()}
}

func TestBufferAppendAndFlushRoundTrip(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{})
	require.NoError(t, err)

	require.NoError(t, b.AppendRecord("my.tag", now(), map[string]interface{}{"n": 1}))
	require.NoError(t, b.AppendRecord("my.tag", now(), map[string]interface{}{"n": 2}))
	require.NoError(t, b.AppendRecord("other.tag", now(), map[string]interface{}{"n": 3}))

	sender := &recordingSender{}
	require.NoError(t, b.Flush(sender, true))

	assert.Equal(t, int64(0), b.AllocatedBytes())
	assert.Equal(t, 0, b.BufferedChunks())

	recs := sender.records()
	require.Len(t, recs, 2)
	totalCount := 0
	for _, c := range recs {
		totalCount += c.Count
	}
	assert.Equal(t, 3, totalCount)
}

func TestBufferSealsOnRetentionSize(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{
		ChunkInitialSize:   64,
		ChunkRetentionSize: 64,
	})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, b.AppendRecord("t", now(), map[string]interface{}{"i": i}))
	}

	assert.Greater(t, b.BufferedChunks(), 0)
}

func TestBufferFullBackpressure(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{
		MaxBufferSize:    256,
		ChunkInitialSize: 64,
	})
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 64; i++ {
		lastErr = b.AppendRecord("t", now(), map[string]interface{}{"i": i})
		if lastErr != nil {
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrBufferFull)
}

func TestBufferFlushHookRetriesOnFull(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{
		MaxBufferSize:    256,
		ChunkInitialSize: 64,
	})
	require.NoError(t, err)

	sender := &recordingSender{}
	b.SetFlushHook(func() {
		_ = b.Flush(sender, true)
	})

	for i := 0; i < 64; i++ {
		if err := b.AppendRecord("t", now(), map[string]interface{}{"i": i}); err != nil {
			require.NoError(t, err, "append %d should succeed once flush hook drains", i)
		}
	}
}

func TestBufferAllocatedBytesInvariant(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{ChunkInitialSize: 128})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.AppendRecord("a", now(), map[string]interface{}{"i": i}))
		require.NoError(t, b.AppendRecord("b", now(), map[string]interface{}{"i": i}))
	}

	var sum int64
	b.tagsMu.Lock()
	for _, ts := range b.tags {
		ts.mu.Lock()
		if ts.current != nil {
			sum += int64(ts.current.capacity)
		}
		ts.mu.Unlock()
	}
	b.tagsMu.Unlock()
	b.queueMu.Lock()
	for _, c := range b.queue {
		sum += int64(c.capacity)
	}
	b.queueMu.Unlock()

	assert.Equal(t, sum, b.AllocatedBytes())
}

func TestBufferConcurrentTagsDoNotBlockEachOther(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	tags := []string{"t1", "t2", "t3", "t4"}
	for _, tag := range tags {
		tag := tag
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				require.NoError(t, b.AppendRecord(tag, now(), map[string]interface{}{"i": i}))
			}
		}()
	}
	wg.Wait()

	sender := &recordingSender{}
	require.NoError(t, b.Flush(sender, true))

	total := 0
	for _, c := range sender.records() {
		total += c.Count
	}
	assert.Equal(t, len(tags)*200, total)
}

func TestBufferCloseSpillsAndRehydrates(t *testing.T) {
	dir := t.TempDir()
	prefix := "spilltest"

	b, err := NewBuffer(logger.Root(), Config{
		FileBackupDir:    dir,
		FileBackupPrefix: prefix,
	})
	require.NoError(t, err)
	require.NoError(t, b.AppendRecord("my.tag", now(), map[string]interface{}{"k": "v"}))

	failing := &recordingSender{fail: true}
	require.NoError(t, b.Close(failing))

	entries, rerr := os.ReadDir(dir)
	require.NoError(t, rerr)
	assert.NotEmpty(t, entries)

	b2, err := NewBuffer(logger.Root(), Config{
		FileBackupDir:    dir,
		FileBackupPrefix: prefix,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b2.BufferedChunks())

	sender := &recordingSender{}
	require.NoError(t, b2.Flush(sender, true))
	recs := sender.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "my.tag", recs[0].Tag)
}

func TestBufferInvalidTag(t *testing.T) {
	b, err := NewBuffer(logger.Root(), Config{})
	require.NoError(t, err)
	err = b.AppendRecord("", now(), map[string]interface{}{})
	assert.ErrorIs(t, err, ErrInvalidTag)
}

func TestBufferCustomEncodeRecordInvoked(t *testing.T) {
	calls := 0
	b, err := NewBuffer(logger.Root(), Config{
		EncodeRecord: func(tag string, ts forwardprotocol.EventTime, record map[string]interface{}) ([]byte, error) {
			calls++
			return defaultEncodeRecord(tag, ts, record)
		},
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.AppendRecord("t", now(), map[string]interface{}{"i": i}))
	}
	assert.Equal(t, 5, calls)
}
