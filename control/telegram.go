package control

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/snksoft/crc"
)

// a telegram is [SOT] escape([TYPE][SEQ][ADDR x4][LEN x2][DATA...][CRC x2]) [EOT]
// with ADDR, LEN and CRC big endian.  CRC is CRC-16/XMODEM over the
// unescaped body.

const (
	// telStart is the start of telegram byte
	telStart = 0x0D

	// telEnd is the end of telegram byte
	telEnd = 0x0A

	// escape precedes a special byte, which is then shifted up by escapeShift
	escape      = 0x5E
	escapeShift = 0x40

	// headerLen is the length of the fields before DATA
	headerLen = 8

	// MaxData is the largest data field of a telegram
	MaxData = 0xFFFF
)

var (
	specialChars = []byte{telEnd, telStart, escape}

	crcTable = crc.NewTable(crc.XMODEM)

	// ErrNoStart is generated when a frame has no start of telegram byte
	ErrNoStart = errors.New("telegram start byte not found")

	// ErrNoEnd is generated when a frame has no end of telegram byte
	ErrNoEnd = errors.New("telegram end byte not found")

	// ErrCRC is generated when the CRC of a telegram does not match its body
	ErrCRC = errors.New("CRC mismatch, telegram corrupted in transmission")

	// ErrShort is generated when a telegram is shorter than its header and CRC
	ErrShort = errors.New("telegram too short")
)

// Type is the type of a telegram
type Type byte

const (
	// Nack refuses a request.  Its data is the result code followed by a message.
	Nack Type = iota

	// CRCError answers a request that arrived corrupted
	CRCError

	// Busy answers a request the device cannot serve now
	Busy

	// Ack answers a request.  It carries the data of a read.
	Ack

	// Read reads Length bytes at Addr
	Read

	// Write writes Data at Addr
	Write

	_
	_

	// Datagram is an unsolicited event from the device; Addr holds the event id
	Datagram

	_

	// Connect takes control of the device
	Connect

	// Disconnect releases control of the device
	Disconnect

	// Reset resets the device; Addr is ResetFull or ResetNetwork
	Reset
)

// reset kinds, in the Addr field of a Reset telegram
const (
	ResetFull    = 0
	ResetNetwork = 1
)

// TypeNames maps telegram types to their names
var TypeNames = map[Type]string{
	Nack:       "Nack",
	CRCError:   "CRC Error",
	Busy:       "Busy",
	Ack:        "Ack",
	Read:       "Read",
	Write:      "Write",
	Datagram:   "Datagram",
	Connect:    "Connect",
	Disconnect: "Disconnect",
	Reset:      "Reset",
}

func (t Type) String() string {
	if s, ok := TypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// Telegram is one message of the control protocol
type Telegram struct {
	Type Type

	// Seq pairs a response with its request
	Seq byte

	Addr uint32

	// Length is the number of bytes a Read asks for; for every other type
	// it is the length of Data and is filled in by Encode
	Length uint16

	Data []byte
}

func crcHelper(buf []byte) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, crcTable.CRC16(crcTable.UpdateCrc(crcTable.InitCrc(), buf)))
	return out
}

func sanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if bytes.IndexByte(specialChars, b) >= 0 {
			out = append(out, escape, b+escapeShift)
		} else {
			out = append(out, b)
		}
	}
	return out
}

func reverseSanitize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	shift := false
	for _, b := range data {
		if b == escape {
			shift = true
			continue
		}
		if shift {
			b -= escapeShift
			shift = false
		}
		out = append(out, b)
	}
	return out
}

// Encode frames a telegram
func (t Telegram) Encode() ([]byte, error) {
	if len(t.Data) > MaxData {
		return nil, fmt.Errorf("telegram data of %d bytes exceeds %d", len(t.Data), MaxData)
	}
	n := t.Length
	if t.Type != Read {
		n = uint16(len(t.Data))
	}
	body := make([]byte, headerLen, headerLen+len(t.Data)+2)
	body[0] = byte(t.Type)
	body[1] = t.Seq
	binary.BigEndian.PutUint32(body[2:], t.Addr)
	binary.BigEndian.PutUint16(body[6:], n)
	body = append(body, t.Data...)
	body = append(body, crcHelper(body)...)

	out := make([]byte, 0, len(body)+8)
	out = append(out, telStart)
	out = append(out, sanitize(body)...)
	out = append(out, telEnd)
	return out, nil
}

// Decode renders a frame into a Telegram.  Bytes before the start byte are
// ignored.
func Decode(frame []byte) (Telegram, error) {
	iStart := bytes.IndexByte(frame, telStart)
	if iStart < 0 {
		return Telegram{}, ErrNoStart
	}
	iEnd := bytes.IndexByte(frame[iStart:], telEnd)
	if iEnd < 0 {
		return Telegram{}, ErrNoEnd
	}
	body := reverseSanitize(frame[iStart+1 : iStart+iEnd])
	if len(body) < headerLen+2 {
		return Telegram{}, ErrShort
	}
	fidx := len(body) - 2
	if !bytes.Equal(body[fidx:], crcHelper(body[:fidx])) {
		return Telegram{}, ErrCRC
	}
	t := Telegram{
		Type:   Type(body[0]),
		Seq:    body[1],
		Addr:   binary.BigEndian.Uint32(body[2:]),
		Length: binary.BigEndian.Uint16(body[6:]),
	}
	if data := body[headerLen:fidx]; len(data) > 0 {
		t.Data = data
	}
	if t.Type != Read && int(t.Length) != len(t.Data) {
		return Telegram{}, fmt.Errorf("telegram declares %d data bytes and carries %d", t.Length, len(t.Data))
	}
	return t, nil
}
