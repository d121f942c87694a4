package buffer

import (
	"sync"

	"github.jpl.nasa.gov/bdube/softgev/status"
)

// Pool bounds the number of buffers outstanding at once.  Released buffers
// are kept and handed out again, memory included.
type Pool struct {
	sync.Mutex
	capacity    int
	outstanding int
	free        []*Buffer
}

// NewPool returns a pool that allows capacity buffers outstanding
func NewPool(capacity int) *Pool {
	return &Pool{capacity: capacity}
}

// Acquire returns a buffer, or status.Exhausted if capacity buffers are
// already outstanding.  It never blocks.
func (p *Pool) Acquire() (*Buffer, error) {
	p.Lock()
	defer p.Unlock()
	if p.outstanding >= p.capacity {
		return nil, status.Exhausted
	}
	p.outstanding++
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		return b, nil
	}
	return &Buffer{}, nil
}

// Release returns a buffer to the pool.  A nil buffer is ignored.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.Lock()
	defer p.Unlock()
	if p.outstanding > 0 {
		p.outstanding--
	}
	b.ResetChunks()
	p.free = append(p.free, b)
}

// Outstanding is the number of buffers currently acquired
func (p *Pool) Outstanding() int {
	p.Lock()
	defer p.Unlock()
	return p.outstanding
}

// Capacity is the maximum number of outstanding buffers
func (p *Pool) Capacity() int {
	return p.capacity
}
