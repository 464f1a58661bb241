package buffer

import "errors"

// ErrBufferFull is returned by AppendRecord and AppendSerialized when accepting the record would push
// allocatedBytes past MaxBufferSize and an opportunistic flush did not free
// enough room. It is a backpressure signal, not a terminal failure: callers
// may retry once the flusher has drained space.
var ErrBufferFull = errors.New("buffer: full")

// ErrInvalidTag is returned for a non-empty-string violation on tag.
var ErrInvalidTag = errors.New("buffer: tag must be a non-empty string")
