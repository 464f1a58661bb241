package buffer

import (
	"bytes"

	"github.com/relex/fluentforward/protocol/forwardprotocol"
	"github.com/vmihailenco/msgpack/v4"
)

// defaultEncodeRecord packs (time, record) as the 2-element msgpack array
// the wire format expects for each PackedForward entry.
func defaultEncodeRecord(_ string, ts forwardprotocol.EventTime, record map[string]interface{}) ([]byte, error) {
	entry := forwardprotocol.EventEntry{Time: ts, Record: record}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(&entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodePreSerializedPair wraps a record that is already serialized as a
// msgpack map into a [time, record] pair without re-encoding it, for the
// "pre-serialized record bytes" emit variant.
func encodePreSerializedPair(ts forwardprotocol.EventTime, recordBytes []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(2); err != nil {
		return nil, err
	}
	if err := enc.Encode(&ts); err != nil {
		return nil, err
	}
	buf.Write(recordBytes)
	return buf.Bytes(), nil
}
