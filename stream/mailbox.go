package stream

import (
	"context"
	"sync"
)

// Mailbox holds the most recent frame.  Publishing overwrites; a frame that
// is replaced before anyone asked for it counts as a drop.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame
	seq   uint64
	read  bool

	published uint64
	dropped   uint64

	closed bool
}

// MailboxStats are the counters of a mailbox
type MailboxStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// NewMailbox returns an empty mailbox
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish replaces the held frame and wakes every waiting reader
func (m *Mailbox) Publish(f *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.frame != nil && !m.read {
		m.dropped++
	}
	m.frame = f
	m.seq++
	m.read = false
	m.published++
	m.cond.Broadcast()
}

// Latest returns the held frame and its sequence number, or nil and 0 if
// nothing has been published
func (m *Mailbox) Latest() (*Frame, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.frame != nil {
		m.read = true
	}
	return m.frame, m.seq
}

// Next blocks until a frame newer than sequence number after is published.
// It returns ErrClosed once the mailbox is closed, or the context's error.
func (m *Mailbox) Next(ctx context.Context, after uint64) (*Frame, uint64, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for m.seq <= after && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.closed {
		return nil, 0, ErrClosed
	}
	if m.seq <= after {
		return nil, 0, ctx.Err()
	}
	m.read = true
	return m.frame, m.seq, nil
}

// Close wakes every reader; Next returns ErrClosed from then on
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Stats returns the counters
func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{Published: m.published, Dropped: m.dropped}
}
