package sender

import (
	"sync/atomic"
)

// MultiSender fans out across an ordered list of child Senders (C4),
// round-robining between them and skipping any that report themselves
// unavailable. It returns ErrNoAvailableSender when every child is
// unavailable, and the last error seen when every child it tried failed.
type MultiSender struct {
	children []Sender

	next uint64
}

// NewMultiSender wraps children for round-robin failover. children must
// be non-empty.
func NewMultiSender(children []Sender) *MultiSender {
	cp := make([]Sender, len(children))
	copy(cp, children)
	return &MultiSender{children: cp}
}

// IsAvailable reports whether at least one child is available.
func (m *MultiSender) IsAvailable() bool {
	for _, c := range m.children {
		if c.IsAvailable() {
			return true
		}
	}
	return false
}

// Send tries each available child in round-robin order, starting from
// the hint left by the previous call, until one succeeds.
func (m *MultiSender) Send(buffers [][]byte) error {
	return m.dispatch(func(c Sender) error { return c.Send(buffers) })
}

// SendWithAck tries each available child the same way Send does.
func (m *MultiSender) SendWithAck(buffers [][]byte, token []byte) error {
	return m.dispatch(func(c Sender) error { return c.SendWithAck(buffers, token) })
}

// Close closes every child sender, returning the first error seen.
func (m *MultiSender) Close() error {
	var firstErr error
	for _, c := range m.children {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSender) dispatch(op func(Sender) error) error {
	n := len(m.children)
	if n == 0 {
		return ErrNoAvailableSender
	}
	start := int(atomic.AddUint64(&m.next, 1)-1) % n

	var lastErr error
	tried := false
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		child := m.children[idx]
		if !child.IsAvailable() {
			continue
		}
		tried = true
		if err := op(child); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if !tried {
		return ErrNoAvailableSender
	}
	return lastErr
}
