// Package stream moves frames out of an acquisition source.
//
// A Driver runs the submit and retrieve loop of one source and hands each
// delivered buffer to its listeners.  A Mailbox keeps the latest frame for
// consumers that only care about the newest one, and a Server sends every
// frame of a channel to a TCP client as a CRC checked packet.
package stream

import (
	"time"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

// Part is one plane of a multi-part frame
type Part struct {
	DataType  buffer.PartType
	Width     int
	Height    int
	PixelType pixel.Type
	Data      []byte
}

// Frame is a delivered buffer copied out of the pool, so it may be kept
// after the buffer has been recycled
type Frame struct {
	Channel   int
	BlockID   uint64
	Timestamp time.Time
	Payload   buffer.PayloadType

	// Width, Height, PixelType and Data describe a single part payload
	Width     int
	Height    int
	PixelType pixel.Type
	Data      []byte

	Parts []Part

	ChunkLayoutID uint32
	Chunks        []buffer.Chunk
}

// NewFrame copies b
func NewFrame(channel int, b *buffer.Buffer) *Frame {
	f := &Frame{
		Channel:       channel,
		BlockID:       b.BlockID,
		Timestamp:     b.Timestamp,
		Payload:       b.Payload,
		ChunkLayoutID: b.ChunkLayoutID(),
	}
	if b.Payload == buffer.PayloadMultiPart {
		f.Parts = make([]Part, len(b.Parts))
		for i, p := range b.Parts {
			f.Parts[i] = Part{
				DataType:  p.DataType,
				Width:     p.Width,
				Height:    p.Height,
				PixelType: p.PixelType,
				Data:      append([]byte(nil), p.Data...),
			}
		}
	} else {
		f.Width = b.Image.Width
		f.Height = b.Image.Height
		f.PixelType = b.Image.PixelType
		f.Data = append([]byte(nil), b.Image.Data...)
	}
	for _, c := range b.Chunks() {
		f.Chunks = append(f.Chunks, buffer.Chunk{ID: c.ID, Data: append([]byte(nil), c.Data...)})
	}
	return f
}

// Chunk returns the data of the first chunk with the given id
func (f *Frame) Chunk(id uint32) ([]byte, bool) {
	for _, c := range f.Chunks {
		if c.ID == id {
			return c.Data, true
		}
	}
	return nil, false
}

// PayloadSize is the number of image bytes in the frame, summed over parts
func (f *Frame) PayloadSize() int {
	if f.Payload == buffer.PayloadMultiPart {
		n := 0
		for _, p := range f.Parts {
			n += len(p.Data)
		}
		return n
	}
	return len(f.Data)
}

// Image returns the first image plane of the frame, which for a multi-part
// frame is its first part
func (f *Frame) Image() (w, h int, pt pixel.Type, data []byte) {
	if f.Payload == buffer.PayloadMultiPart {
		if len(f.Parts) == 0 {
			return 0, 0, 0, nil
		}
		p := f.Parts[0]
		return p.Width, p.Height, p.PixelType, p.Data
	}
	return f.Width, f.Height, f.PixelType, f.Data
}
