package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// Driver runs the acquisition loop of one source: take a free buffer,
// submit it for capture, retrieve the paced frame, hand it to the listeners
// and return it to the pool.  Every delivered frame is also published to
// the driver's mailbox.
type Driver struct {
	ch      source.Channel
	mailbox *Mailbox

	mu        sync.Mutex
	listeners []func(*buffer.Buffer)
	cancel    context.CancelFunc
	done      chan struct{}
	errs      uint64
}

// NewDriver returns a stopped driver for ch
func NewDriver(ch source.Channel) *Driver {
	return &Driver{ch: ch, mailbox: NewMailbox()}
}

// Channel is the source the driver runs
func (d *Driver) Channel() source.Channel {
	return d.ch
}

// Mailbox holds the latest frame the driver delivered
func (d *Driver) Mailbox() *Mailbox {
	return d.mailbox
}

// OnFrame adds a listener.  Listeners run on the driver goroutine and must
// not keep b, which goes back to the pool when they return.
func (d *Driver) OnFrame(fn func(b *buffer.Buffer)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Start starts streaming.  It is a no-op if the driver is running.
func (d *Driver) Start() error {
	d.mu.Lock()
	running, prev := d.cancel != nil, d.done
	d.mu.Unlock()
	if running {
		return nil
	}
	if prev != nil {
		<-prev
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
	return nil
}

// Stop stops streaming and waits for the loop to return its buffers
func (d *Driver) Stop() error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Running returns true while the loop is running
func (d *Driver) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancel != nil
}

// Errors is the number of unexpected errors the loop has logged
func (d *Driver) Errors() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errs
}

func (d *Driver) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	d.ch.OnStreamingStart()
	defer func() {
		d.ch.OnStreamingStop()
		for _, b := range d.ch.AbortQueued() {
			d.ch.FreeBuffer(b)
		}
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 0
	bo.Reset()

	for ctx.Err() == nil {
		err := d.step(ctx)
		if err == nil {
			bo.Reset()
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if !transient(err) {
			d.mu.Lock()
			d.errs++
			d.mu.Unlock()
			log.Printf("streaming channel %d: %v\n", d.ch.ID(), err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// step runs one pass of the loop
func (d *Driver) step(ctx context.Context) error {
	b, err := d.ch.AllocBuffer()
	if err != nil {
		return err
	}
	if err := d.ch.SubmitForCapture(b); err != nil {
		d.ch.FreeBuffer(b)
		if !errors.Is(err, status.Busy) {
			return errors.Wrap(err, "submit")
		}
	}
	out, err := d.ch.RetrieveCaptured(ctx)
	if err != nil {
		return err
	}
	d.deliver(out)
	d.ch.FreeBuffer(out)
	return nil
}

func (d *Driver) deliver(b *buffer.Buffer) {
	d.mu.Lock()
	ls := append([](func(*buffer.Buffer))(nil), d.listeners...)
	d.mu.Unlock()
	for _, fn := range ls {
		fn(b)
	}
	d.mailbox.Publish(NewFrame(d.ch.ID(), b))
}

// transient returns true for the codes the loop expects while the slot
// and pool cycle
func transient(err error) bool {
	c, ok := status.Of(err)
	if !ok {
		return false
	}
	switch c {
	case status.Busy, status.NoDataAvailable, status.Exhausted, status.Aborted:
		return true
	}
	return false
}
