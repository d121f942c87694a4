package device

import (
	"context"
	"log"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// DefaultEventInterval is the period of the test events
const DefaultEventInterval = 2500 * time.Millisecond

// Event is a message sent to the application over the message channel.
// Data is nil for events that carry none.
type Event struct {
	ID        uint32
	Data      []byte
	Timestamp time.Time
}

// MessageChannel delivers events to subscribers while it is open, and makes
// the data of the latest event of each id readable through the event
// features of a tree
type MessageChannel struct {
	mu       sync.Mutex
	open     bool
	subs     map[int]func(Event)
	nextSub  int
	count    uint32
	last     time.Time
	interval time.Duration
	tree     *genapi.Tree

	now func() time.Time
}

// NewMessageChannel returns a closed message channel that fires test
// events every interval once opened.  tree may be nil.
func NewMessageChannel(tree *genapi.Tree, interval time.Duration) *MessageChannel {
	if interval <= 0 {
		interval = DefaultEventInterval
	}
	return &MessageChannel{
		subs:     make(map[int]func(Event)),
		interval: interval,
		tree:     tree,
		now:      time.Now,
		last:     time.Now(),
	}
}

// Open opens the channel
func (m *MessageChannel) Open() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = true
}

// Close closes the channel.  Events fired while closed are discarded.
func (m *MessageChannel) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open = false
}

// IsOpen returns true if the channel is open
func (m *MessageChannel) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Subscribe calls fn for every event fired from now on.  The returned
// function cancels the subscription.  fn must not block.
func (m *MessageChannel) Subscribe(fn func(Event)) (cancel func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// FireEvent sends an event with optional data to the subscribers
func (m *MessageChannel) FireEvent(id uint32, data []byte) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return status.Errorf(status.NotAvailable, "message channel is closed")
	}
	e := Event{ID: id, Timestamp: m.now()}
	if data != nil {
		e.Data = append([]byte(nil), data...)
	}
	subs := make([]func(Event), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	if data != nil && m.tree != nil {
		m.tree.AttachEvent(id, data)
	}
	for _, fn := range subs {
		fn(e)
	}
	return nil
}

// FireTestEvents fires the sample event pair if the channel is open and
// the interval has passed since the last pair.  It returns true if it fired.
func (m *MessageChannel) FireTestEvents() bool {
	m.mu.Lock()
	now := m.now()
	if !m.open || now.Sub(m.last) <= m.interval {
		m.mu.Unlock()
		return false
	}
	rec := chunk.NewRecord(m.count, now)
	m.last = now
	m.count++
	m.mu.Unlock()

	if err := m.FireEvent(EventDataID, rec.Marshal()); err != nil {
		return false
	}
	if err := m.FireEvent(EventID, nil); err != nil {
		return false
	}
	log.Printf("fired event %d\n", rec.Count)
	return true
}

// Run calls FireTestEvents periodically until ctx is done
func (m *MessageChannel) Run(ctx context.Context) error {
	tick := m.interval / 25
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			m.FireTestEvents()
		}
	}
}
