package forwardprotocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v4"
)

func TestEventTimeRoundTrip(t *testing.T) {
	in := EventTime{time.Unix(1700000000, 123000000)}

	encoded, err := msgpack.Marshal(&in)
	require.NoError(t, err)

	var out EventTime
	require.NoError(t, msgpack.Unmarshal(encoded, &out))

	assert.Equal(t, in.Unix(), out.Unix())
	assert.Equal(t, in.Nanosecond(), out.Nanosecond())
}

func TestEventTimeUnmarshalRejectsShortPayload(t *testing.T) {
	var out EventTime
	err := out.UnmarshalMsgpack([]byte{1, 2, 3})
	assert.Error(t, err)
}
