// Package control implements the register access channel of the emulator.
//
// A remote application talks to the device with framed, CRC checked
// telegrams over TCP or a serial line.  It reads and writes registers by
// address, takes and releases control of the device, and receives the
// events of the message channel as Datagram telegrams while it holds
// control.
package control

import (
	"bufio"
	"context"
	"io"
	"log"
	"net"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/tarm/serial"

	"github.jpl.nasa.gov/bdube/softgev/device"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// MakeSerConf makes a serial config for the control channel
func MakeSerConf(name string, baud int) *serial.Config {
	if baud == 0 {
		baud = 115200
	}
	return &serial.Config{
		Name:        name,
		Baud:        baud,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: 0}
}

// Server serves the control channel of a device
type Server struct {
	dev *device.Device

	mu    sync.Mutex
	conns map[io.Closer]struct{}
}

// NewServer returns a server for d
func NewServer(d *device.Device) *Server {
	return &Server{dev: d, conns: make(map[io.Closer]struct{})}
}

// ListenAndServe listens on addr and serves connections until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "control channel")
	}
	return s.Serve(ctx, l)
}

// Serve serves connections accepted from l until ctx is done.  l is closed
// on return.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	host, port := splitAddr(l.Addr())
	s.dev.ControlChannelStarted(host, port)
	defer s.dev.ControlChannelStopped()

	go func() {
		<-ctx.Done()
		l.Close()
		s.closeAll()
	}()
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "control channel accept")
		}
		host, port := splitAddr(conn.RemoteAddr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(conn, host, port)
		}()
	}
}

// ServeSerial serves the control channel on a serial port until ctx is done
func (s *Server) ServeSerial(ctx context.Context, name string, baud int) error {
	port, err := serial.OpenPort(MakeSerConf(name, baud))
	if err != nil {
		return errors.Wrapf(err, "control channel on %s", name)
	}
	s.dev.ControlChannelStarted(name, 0)
	defer s.dev.ControlChannelStopped()
	go func() {
		<-ctx.Done()
		port.Close()
	}()
	s.handle(port, name, 0)
	return nil
}

func splitAddr(a net.Addr) (string, int) {
	host, p, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String(), 0
	}
	port, _ := strconv.Atoi(p)
	return host, port
}

func (s *Server) track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c] = struct{}{}
}

func (s *Server) untrack(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// session is one connected client
type session struct {
	s    *Server
	rw   io.ReadWriteCloser
	host string
	port int

	wmu        sync.Mutex
	controller bool
	unsub      func()
}

func (ss *session) send(t Telegram) error {
	b, err := t.Encode()
	if err != nil {
		return err
	}
	ss.wmu.Lock()
	defer ss.wmu.Unlock()
	_, err = ss.rw.Write(b)
	return err
}

func (s *Server) handle(rw io.ReadWriteCloser, host string, port int) {
	s.track(rw)
	defer s.untrack(rw)
	defer rw.Close()
	ss := &session{s: s, rw: rw, host: host, port: port}
	defer ss.release()

	rd := bufio.NewReader(rw)
	for {
		frame, err := rd.ReadBytes(telEnd)
		if err != nil {
			if err != io.EOF {
				log.Printf("control channel %s:%d: %v\n", host, port, err)
			}
			return
		}
		req, err := Decode(frame)
		if err != nil {
			log.Printf("control channel %s:%d: %v\n", host, port, err)
			if err == ErrCRC {
				ss.send(Telegram{Type: CRCError})
			}
			continue
		}
		if err := ss.send(ss.serve(req)); err != nil {
			log.Printf("control channel %s:%d: %v\n", host, port, err)
			return
		}
	}
}

// serve answers one request
func (ss *session) serve(req Telegram) Telegram {
	d := ss.s.dev
	ack := Telegram{Type: Ack, Seq: req.Seq, Addr: req.Addr}
	switch req.Type {
	case Read:
		b, err := d.Registers().Read(req.Addr, int(req.Length))
		if err != nil {
			return nack(req, err)
		}
		ack.Data = b
	case Write:
		if !ss.controller {
			return nack(req, status.Errorf(status.AccessDenied, "writes need control of the device"))
		}
		if err := d.Registers().Write(req.Addr, req.Data); err != nil {
			return nack(req, err)
		}
		d.Tree().InvalidateAll()
	case Connect:
		if err := d.ConnectApplication(ss.host, ss.port); err != nil {
			if errors.Is(err, status.Busy) {
				return Telegram{Type: Busy, Seq: req.Seq}
			}
			return nack(req, err)
		}
		if !ss.controller {
			ss.controller = true
			ss.unsub = d.Messages().Subscribe(func(e device.Event) {
				if err := ss.send(Telegram{Type: Datagram, Addr: e.ID, Data: e.Data}); err != nil {
					log.Printf("control channel %s:%d: event %#x: %v\n", ss.host, ss.port, e.ID, err)
				}
			})
		}
	case Disconnect:
		ss.release()
	case Reset:
		if !ss.controller {
			return nack(req, status.Errorf(status.AccessDenied, "reset needs control of the device"))
		}
		// the reset drops the controlling application, this session included
		ss.dropSubscription()
		ss.controller = false
		switch req.Addr {
		case ResetFull:
			if err := d.ResetFull(); err != nil {
				return nack(req, err)
			}
		case ResetNetwork:
			d.ResetNetwork()
		default:
			return nack(req, status.Errorf(status.InvalidParameter, "unknown reset kind %d", req.Addr))
		}
	default:
		return nack(req, status.Errorf(status.NotSupported, "telegram type %v", req.Type))
	}
	return ack
}

func (ss *session) dropSubscription() {
	if ss.unsub != nil {
		ss.unsub()
		ss.unsub = nil
	}
}

// release gives up control of the device if this session holds it
func (ss *session) release() {
	ss.dropSubscription()
	if ss.controller {
		ss.controller = false
		ss.s.dev.DisconnectApplication()
	}
}

// nack answers req with the result code of err followed by its message
func nack(req Telegram, err error) Telegram {
	code := byte(0xFF)
	if c, ok := status.Of(err); ok {
		code = byte(c)
	}
	msg := err.Error()
	if len(msg) > MaxData-1 {
		msg = msg[:MaxData-1]
	}
	return Telegram{Type: Nack, Seq: req.Seq, Addr: req.Addr, Data: append([]byte{code}, msg...)}
}

// nackError recovers the error carried by a Nack
func nackError(t Telegram) error {
	if len(t.Data) == 0 {
		return errors.New("request refused")
	}
	code, msg := status.Code(t.Data[0]), string(t.Data[1:])
	if _, ok := status.Codes[code]; ok && code != status.OK {
		return status.Errorf(code, "%s", msg)
	}
	return errors.New(msg)
}
