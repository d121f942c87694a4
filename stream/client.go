package stream

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// Client receives the frames of one streaming channel
type Client struct {
	conn    net.Conn
	rd      *bufio.Reader
	session string

	mu     sync.Mutex
	closed bool
}

// Dial connects to the stream server at addr and opens channel, retrying
// the connection with an exponential backoff for up to timeout.  multiPart
// declares that the caller accepts multi-part payloads.
func Dial(addr string, channel int, multiPart bool, timeout time.Duration) (*Client, error) {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	var conn net.Conn
	op := func() error {
		var err error
		conn, err = net.DialTimeout("tcp", addr, timeout)
		return err
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      timeout,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, errors.Wrapf(err, "stream channel %s", addr)
	}
	if err := writeMessage(conn, Hello{Channel: channel, MultiPart: multiPart}); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "sending hello")
	}
	rd := bufio.NewReader(conn)
	var w Welcome
	conn.SetReadDeadline(time.Now().Add(timeout))
	if err := readMessage(rd, &w); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "reading welcome")
	}
	conn.SetReadDeadline(time.Time{})
	if w.Error != "" {
		conn.Close()
		return nil, errors.New(w.Error)
	}
	return &Client{conn: conn, rd: rd, session: w.Session}, nil
}

// Session is the id the server gave the stream
func (c *Client) Session() string {
	return c.session
}

// Next blocks until the next frame arrives.  A zero timeout waits forever.
func (c *Client) Next(timeout time.Duration) (*Frame, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		c.conn.SetReadDeadline(time.Time{})
	}
	f, session, err := ReadFrame(c.rd)
	if err != nil {
		return nil, err
	}
	if session != c.session {
		return nil, errors.Errorf("stream: frame of session %s on session %s", session, c.session)
	}
	return f, nil
}

// Close closes the stream
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
