package stream

import (
	"bufio"
	"context"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// HelloTimeout bounds how long a new connection may take to say Hello
const HelloTimeout = 5 * time.Second

// multiParter is a source that negotiates multi-part payloads
type multiParter interface {
	SetMultiPartAllowed(bool)
}

// Server sends the frames of its drivers to TCP clients.  A channel streams
// to at most one client at a time.
type Server struct {
	drivers map[int]*Driver

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	open  map[int]string
}

// NewServer returns a server for the given drivers, keyed by the channel
// number of their source
func NewServer(drivers ...*Driver) *Server {
	s := &Server{
		drivers: make(map[int]*Driver),
		conns:   make(map[net.Conn]struct{}),
		open:    make(map[int]string),
	}
	for _, d := range drivers {
		s.drivers[d.Channel().ID()] = d
	}
	return s
}

// Sessions returns the session id of each channel with a client
func (s *Server) Sessions() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string, len(s.open))
	for k, v := range s.open {
		out[k] = v
	}
	return out
}

// ListenAndServe listens on addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "stream channel")
	}
	return s.Serve(ctx, l)
}

// Serve serves connections accepted from l until ctx is done.  l is closed
// on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "stream channel accept")
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				s.mu.Lock()
				delete(s.conns, conn)
				s.mu.Unlock()
				conn.Close()
			}()
			if err := s.handle(ctx, conn); err != nil {
				log.Printf("stream client %s: %v\n", conn.RemoteAddr(), err)
			}
		}()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) error {
	var h Hello
	conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	if err := readMessage(conn, &h); err != nil {
		return errors.Wrap(err, "reading hello")
	}
	conn.SetReadDeadline(time.Time{})

	d, ok := s.drivers[h.Channel]
	if !ok {
		return refuse(conn, "no streaming channel "+strconv.Itoa(h.Channel))
	}
	mp, isMulti := d.Channel().(multiParter)
	if isMulti && !h.MultiPart {
		return refuse(conn, "channel "+strconv.Itoa(h.Channel)+" sends multi-part payloads")
	}
	session := uuid.New().String()
	s.mu.Lock()
	if _, busy := s.open[h.Channel]; busy {
		s.mu.Unlock()
		return refuse(conn, "channel "+strconv.Itoa(h.Channel)+" is already open")
	}
	s.open[h.Channel] = session
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.open, h.Channel)
		s.mu.Unlock()
	}()

	if isMulti {
		mp.SetMultiPartAllowed(true)
	}
	host, port := splitAddr(conn.RemoteAddr())
	d.Channel().OnOpen(host, port)
	defer d.Channel().OnClose()
	if err := writeMessage(conn, Welcome{Session: session}); err != nil {
		return err
	}

	// a read returning means the client went away
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		var b [1]byte
		conn.Read(b[:])
		cancel()
	}()

	w := bufio.NewWriter(conn)
	_, seq := d.Mailbox().Latest()
	for {
		f, next, err := d.Mailbox().Next(ctx, seq)
		if err != nil {
			if err == ErrClosed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		seq = next
		if err := WriteFrame(w, session, f); err != nil {
			return err
		}
		if err := w.Flush(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func refuse(conn net.Conn, msg string) error {
	writeMessage(conn, Welcome{Error: msg})
	return errors.New(msg)
}

func splitAddr(a net.Addr) (string, int) {
	host, p, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}
