package group

import (
	"sync"

	"github.com/pkg/errors"
)

type envelope struct {
	source int
	data   []byte
}

// Mailbox queues messages that arrived for the root but were not received yet.
// Arrival order is preserved. Delivery happens on transport goroutines while
// Probe and Take run on the search goroutine.
type Mailbox struct {
	mu    sync.Mutex
	queue []envelope
}

// NewMailbox returns an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{}
}

// Deliver appends a message. The mailbox takes ownership of data.
func (m *Mailbox) Deliver(source int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, envelope{source: source, data: data})
}

// Probe describes the oldest queued message without removing it.
func (m *Mailbox) Probe() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Status{}, false
	}
	head := m.queue[0]
	return Status{Source: head.source, Count: len(head.data)}, true
}

// Take removes the oldest message and copies it into buf. st must describe
// that message, as returned by Probe.
func (m *Mailbox) Take(st Status, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return errors.New("mailbox is empty")
	}
	head := m.queue[0]
	if head.source != st.Source || len(head.data) != st.Count {
		return errors.Errorf("head message from rank %d (%d bytes) does not match probe (rank %d, %d bytes)",
			head.source, len(head.data), st.Source, st.Count)
	}
	if len(buf) < len(head.data) {
		return errors.Errorf("receive buffer of %d bytes for %d byte message", len(buf), len(head.data))
	}
	copy(buf, head.data)
	m.queue[0] = envelope{}
	m.queue = m.queue[1:]
	return nil
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
