package stream

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"github.com/snksoft/crc"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

// A packet is
//
//	[MAGIC 4][LEADER LEN 4][LEADER][PAYLOAD][CHUNK TRAILER][CRC 4]
//
// The leader is CBOR.  The payload is the image bytes, parts back to back.
// Each chunk in the trailer is its data padded to four bytes followed by its
// id and unpadded length, so a reader walks the trailer from the end.  The
// CRC-32 covers everything between the magic and the CRC.  Integers are big
// endian.

const (
	// MaxLeader bounds the size of a leader a reader will accept
	MaxLeader = 1 << 16

	// MaxPacket bounds the payload plus trailer a reader will accept
	MaxPacket = 64 << 20
)

var (
	packetMagic = []byte("SGVF")

	crcTable = crc.NewTable(crc.CRC32)

	// ErrMagic is returned when a packet does not start with the magic bytes
	ErrMagic = errors.New("stream: bad packet magic")

	// ErrCRC is returned when a packet fails its CRC check
	ErrCRC = errors.New("stream: packet CRC mismatch")

	// ErrTrailer is returned when the chunk trailer is malformed
	ErrTrailer = errors.New("stream: malformed chunk trailer")

	// ErrClosed is returned by a closed mailbox or client
	ErrClosed = errors.New("stream: closed")
)

type partInfo struct {
	DataType  buffer.PartType `cbor:"type"`
	Width     int             `cbor:"w"`
	Height    int             `cbor:"h"`
	PixelType pixel.Type      `cbor:"pf"`
	Size      int             `cbor:"size"`
}

type leader struct {
	Session       string             `cbor:"session"`
	Channel       int                `cbor:"channel"`
	BlockID       uint64             `cbor:"block"`
	Timestamp     int64              `cbor:"ts"`
	Payload       buffer.PayloadType `cbor:"payload"`
	Width         int                `cbor:"w,omitempty"`
	Height        int                `cbor:"h,omitempty"`
	PixelType     pixel.Type         `cbor:"pf,omitempty"`
	Parts         []partInfo         `cbor:"parts,omitempty"`
	PayloadSize   int                `cbor:"size"`
	ChunkLayoutID uint32             `cbor:"layout"`
	TrailerSize   int                `cbor:"trailer"`
}

func trailerSize(chunks []buffer.Chunk) int {
	n := 0
	for _, c := range chunks {
		n += padded(len(c.Data)) + 8
	}
	return n
}

func padded(n int) int {
	if r := n % 4; r != 0 {
		return n + 4 - r
	}
	return n
}

func crcOf(b []byte) uint32 {
	c := crcTable.InitCrc()
	c = crcTable.UpdateCrc(c, b)
	return crcTable.CRC32(c)
}

// EncodeFrame packs f into a packet tagged with a session id
func EncodeFrame(session string, f *Frame) ([]byte, error) {
	l := leader{
		Session:       session,
		Channel:       f.Channel,
		BlockID:       f.BlockID,
		Timestamp:     f.Timestamp.UnixNano(),
		Payload:       f.Payload,
		PayloadSize:   f.PayloadSize(),
		ChunkLayoutID: f.ChunkLayoutID,
		TrailerSize:   trailerSize(f.Chunks),
	}
	if f.Payload == buffer.PayloadMultiPart {
		for _, p := range f.Parts {
			l.Parts = append(l.Parts, partInfo{DataType: p.DataType, Width: p.Width, Height: p.Height, PixelType: p.PixelType, Size: len(p.Data)})
		}
	} else {
		l.Width, l.Height, l.PixelType = f.Width, f.Height, f.PixelType
	}
	lb, err := cbor.Marshal(l)
	if err != nil {
		return nil, errors.Wrap(err, "stream: encoding leader")
	}

	var buf bytes.Buffer
	buf.Grow(len(packetMagic) + 8 + len(lb) + l.PayloadSize + l.TrailerSize)
	buf.Write(packetMagic)
	var u [4]byte
	binary.BigEndian.PutUint32(u[:], uint32(len(lb)))
	buf.Write(u[:])
	buf.Write(lb)
	if f.Payload == buffer.PayloadMultiPart {
		for _, p := range f.Parts {
			buf.Write(p.Data)
		}
	} else {
		buf.Write(f.Data)
	}
	for _, c := range f.Chunks {
		buf.Write(c.Data)
		buf.Write(make([]byte, padded(len(c.Data))-len(c.Data)))
		binary.BigEndian.PutUint32(u[:], c.ID)
		buf.Write(u[:])
		binary.BigEndian.PutUint32(u[:], uint32(len(c.Data)))
		buf.Write(u[:])
	}
	binary.BigEndian.PutUint32(u[:], crcOf(buf.Bytes()[len(packetMagic):]))
	buf.Write(u[:])
	return buf.Bytes(), nil
}

// WriteFrame writes f to w as one packet
func WriteFrame(w io.Writer, session string, f *Frame) error {
	b, err := EncodeFrame(session, f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadFrame reads one packet from r and returns the frame and the session
// it was tagged with
func ReadFrame(r io.Reader) (*Frame, string, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, "", err
	}
	if !bytes.Equal(hdr[:4], packetMagic) {
		return nil, "", ErrMagic
	}
	n := binary.BigEndian.Uint32(hdr[4:])
	if n > MaxLeader {
		return nil, "", errors.Errorf("stream: leader of %d bytes exceeds %d", n, MaxLeader)
	}
	lb := make([]byte, n)
	if _, err := io.ReadFull(r, lb); err != nil {
		return nil, "", errors.Wrap(err, "stream: reading leader")
	}
	var l leader
	if err := cbor.Unmarshal(lb, &l); err != nil {
		return nil, "", errors.Wrap(err, "stream: decoding leader")
	}
	if l.PayloadSize < 0 || l.TrailerSize < 0 || l.PayloadSize+l.TrailerSize > MaxPacket {
		return nil, "", errors.Errorf("stream: packet of %d+%d bytes exceeds %d", l.PayloadSize, l.TrailerSize, MaxPacket)
	}
	body := make([]byte, l.PayloadSize+l.TrailerSize+4)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, "", errors.Wrap(err, "stream: reading payload")
	}
	sum := crcTable.InitCrc()
	sum = crcTable.UpdateCrc(sum, hdr[4:])
	sum = crcTable.UpdateCrc(sum, lb)
	sum = crcTable.UpdateCrc(sum, body[:len(body)-4])
	if crcTable.CRC32(sum) != binary.BigEndian.Uint32(body[len(body)-4:]) {
		return nil, "", ErrCRC
	}

	f := &Frame{
		Channel:       l.Channel,
		BlockID:       l.BlockID,
		Timestamp:     time.Unix(0, l.Timestamp),
		Payload:       l.Payload,
		ChunkLayoutID: l.ChunkLayoutID,
	}
	payload := body[:l.PayloadSize]
	if l.Payload == buffer.PayloadMultiPart {
		off := 0
		for _, p := range l.Parts {
			if p.Size < 0 || off+p.Size > len(payload) {
				return nil, "", errors.Errorf("stream: part of %d bytes overruns payload of %d", p.Size, len(payload))
			}
			f.Parts = append(f.Parts, Part{DataType: p.DataType, Width: p.Width, Height: p.Height, PixelType: p.PixelType, Data: payload[off : off+p.Size]})
			off += p.Size
		}
	} else {
		f.Width, f.Height, f.PixelType = l.Width, l.Height, l.PixelType
		f.Data = payload
	}
	chunks, err := decodeTrailer(body[l.PayloadSize : len(body)-4])
	if err != nil {
		return nil, "", err
	}
	f.Chunks = chunks
	return f, l.Session, nil
}

func decodeTrailer(t []byte) ([]buffer.Chunk, error) {
	var rev []buffer.Chunk
	end := len(t)
	for end > 0 {
		if end < 8 {
			return nil, ErrTrailer
		}
		id := binary.BigEndian.Uint32(t[end-8:])
		n := int(binary.BigEndian.Uint32(t[end-4:]))
		start := end - 8 - padded(n)
		if n < 0 || start < 0 {
			return nil, ErrTrailer
		}
		rev = append(rev, buffer.Chunk{ID: id, Data: t[start : start+n]})
		end = start
	}
	out := make([]buffer.Chunk, len(rev))
	for i, c := range rev {
		out[len(rev)-1-i] = c
	}
	return out, nil
}

// Hello opens a stream connection
type Hello struct {
	Channel   int  `cbor:"channel"`
	MultiPart bool `cbor:"multipart"`
}

// Welcome answers a Hello.  Error is empty when the stream was opened.
type Welcome struct {
	Session string `cbor:"session"`
	Error   string `cbor:"error,omitempty"`
}

// writeMessage writes v as a length prefixed CBOR message
func writeMessage(w io.Writer, v interface{}) error {
	b, err := cbor.Marshal(v)
	if err != nil {
		return err
	}
	out := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	_, err = w.Write(out)
	return err
}

// readMessage reads a length prefixed CBOR message into v
func readMessage(r io.Reader, v interface{}) error {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return err
	}
	size := binary.BigEndian.Uint32(n[:])
	if size > MaxLeader {
		return errors.Errorf("stream: message of %d bytes exceeds %d", size, MaxLeader)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}
	return cbor.Unmarshal(b, v)
}
