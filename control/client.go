package control

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.jpl.nasa.gov/bdube/softgev/status"
)

var (
	// ErrNotConnected is generated when a request is made before Open
	ErrNotConnected = errors.New("control channel is not open")

	// ErrTimeout is generated when the device does not answer in time
	ErrTimeout = errors.New("control channel request timed out")
)

// Event is an event received from the device
type Event struct {
	ID   uint32
	Data []byte
}

// Client is the application side of the control channel
type Client struct {
	// Addr is host:port, or the name of a serial port when Serial is true
	Addr   string
	Serial bool
	Baud   int

	// Timeout bounds connecting and each request, 3 s if zero
	Timeout time.Duration

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	seq     byte
	resp    chan Telegram
	events  chan Event
	done    chan struct{}
	readErr error
}

// NewClient returns a client for the device at addr
func NewClient(addr string, serial bool) *Client {
	return &Client{Addr: addr, Serial: serial, events: make(chan Event, 64)}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout == 0 {
		return 3 * time.Second
	}
	return c.Timeout
}

// Open connects to the device, retrying with an exponential backoff
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	var conn io.ReadWriteCloser
	op := func() error {
		var err error
		if c.Serial {
			conn, err = serial.OpenPort(MakeSerConf(c.Addr, c.Baud))
		} else {
			conn, err = net.DialTimeout("tcp", c.Addr, c.timeout())
		}
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      c.timeout(),
		Clock:               backoff.SystemClock})
	if err != nil {
		return errors.Wrapf(err, "control channel %s", c.Addr)
	}
	c.conn = conn
	c.resp = make(chan Telegram, 1)
	c.done = make(chan struct{})
	c.readErr = nil
	go c.read(conn, c.resp, c.done)
	return nil
}

// read dispatches telegrams from the device until the connection fails
func (c *Client) read(conn io.Reader, resp chan Telegram, done chan struct{}) {
	defer close(done)
	rd := bufio.NewReader(conn)
	for {
		frame, err := rd.ReadBytes(telEnd)
		if err != nil {
			c.readErr = err
			return
		}
		t, err := Decode(frame)
		if err != nil {
			continue
		}
		if t.Type == Datagram {
			select {
			case c.events <- Event{ID: t.Addr, Data: t.Data}:
			default:
			}
			continue
		}
		select {
		case resp <- t:
		default:
			// nobody is waiting; drop the stale answer
			select {
			case <-resp:
			default:
			}
			resp <- t
		}
	}
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	<-c.done
	c.conn = nil
	return err
}

// Events delivers the events of the device while this client holds control.
// Events are dropped when the channel is full.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) do(req Telegram) (Telegram, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return Telegram{}, ErrNotConnected
	}
	c.seq++
	req.Seq = c.seq
	b, err := req.Encode()
	if err != nil {
		return Telegram{}, err
	}
	if _, err := c.conn.Write(b); err != nil {
		return Telegram{}, errors.Wrap(err, "control channel write")
	}
	timer := time.NewTimer(c.timeout())
	defer timer.Stop()
	for {
		select {
		case t := <-c.resp:
			if t.Type != CRCError && t.Seq != req.Seq {
				continue
			}
			switch t.Type {
			case Ack:
				return t, nil
			case Nack:
				return t, nackError(t)
			case Busy:
				return t, status.Errorf(status.Busy, "device is busy")
			case CRCError:
				return t, ErrCRC
			}
			return t, errors.Errorf("unexpected %v answer to %v", t.Type, req.Type)
		case <-c.done:
			if c.readErr != nil {
				return Telegram{}, errors.Wrap(c.readErr, "control channel read")
			}
			return Telegram{}, ErrNotConnected
		case <-timer.C:
			return Telegram{}, ErrTimeout
		}
	}
}

// Connect takes control of the device
func (c *Client) Connect() error {
	_, err := c.do(Telegram{Type: Connect})
	return err
}

// Disconnect releases control of the device
func (c *Client) Disconnect() error {
	_, err := c.do(Telegram{Type: Disconnect})
	return err
}

// Reset resets the device, kind is ResetFull or ResetNetwork
func (c *Client) Reset(kind uint32) error {
	_, err := c.do(Telegram{Type: Reset, Addr: kind})
	return err
}

// Read reads n bytes at addr
func (c *Client) Read(addr uint32, n int) ([]byte, error) {
	if n < 0 || n > MaxData {
		return nil, status.Errorf(status.InvalidParameter, "cannot read %d bytes", n)
	}
	t, err := c.do(Telegram{Type: Read, Addr: addr, Length: uint16(n)})
	if err != nil {
		return nil, err
	}
	return t.Data, nil
}

// Write writes data at addr
func (c *Client) Write(addr uint32, data []byte) error {
	_, err := c.do(Telegram{Type: Write, Addr: addr, Data: data})
	return err
}

// ReadUint32 reads a big endian 32-bit register
func (c *Client) ReadUint32(addr uint32) (uint32, error) {
	b, err := c.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, errors.Errorf("read of 4 bytes returned %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteUint32 writes a big endian 32-bit register
func (c *Client) WriteUint32(addr uint32, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return c.Write(addr, b[:])
}

// ReadFloat32 reads a big endian float32 register
func (c *Client) ReadFloat32(addr uint32) (float32, error) {
	u, err := c.ReadUint32(addr)
	return math.Float32frombits(u), err
}

// WriteFloat32 writes a big endian float32 register
func (c *Client) WriteFloat32(addr uint32, v float32) error {
	return c.WriteUint32(addr, math.Float32bits(v))
}
