package sender

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	available bool
	sendErr   error
	sent      [][][]byte
	closed    bool
}

func (f *fakeSender) IsAvailable() bool { return f.available }

func (f *fakeSender) Send(buffers [][]byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, buffers)
	return nil
}

func (f *fakeSender) SendWithAck(buffers [][]byte, token []byte) error {
	return f.Send(buffers)
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func TestMultiSenderSkipsUnavailable(t *testing.T) {
	a := &fakeSender{available: false}
	b := &fakeSender{available: true}
	m := NewMultiSender([]Sender{a, b})

	require.NoError(t, m.Send([][]byte{[]byte("x")}))
	assert.Len(t, b.sent, 1)
	assert.Len(t, a.sent, 0)
}

func TestMultiSenderFailsOverOnError(t *testing.T) {
	a := &fakeSender{available: true, sendErr: errors.New("boom")}
	b := &fakeSender{available: true}
	m := NewMultiSender([]Sender{a, b})

	require.NoError(t, m.Send([][]byte{[]byte("x")}))
	assert.Len(t, b.sent, 1)
}

func TestMultiSenderAllUnavailable(t *testing.T) {
	a := &fakeSender{available: false}
	b := &fakeSender{available: false}
	m := NewMultiSender([]Sender{a, b})

	err := m.Send([][]byte{[]byte("x")})
	assert.ErrorIs(t, err, ErrNoAvailableSender)
}

func TestMultiSenderCloseClosesAllChildren(t *testing.T) {
	a := &fakeSender{available: true}
	b := &fakeSender{available: true}
	m := NewMultiSender([]Sender{a, b})
	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
