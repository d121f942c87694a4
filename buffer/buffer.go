// Package buffer holds the frame buffers a source fills and the pool that
// bounds how many of them may be outstanding at once.
package buffer

import (
	"time"

	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// PayloadType is the layout of a buffer's payload
type PayloadType int

const (
	// PayloadImage is a single image
	PayloadImage PayloadType = iota

	// PayloadMultiPart is a list of parts, each an image plane
	PayloadMultiPart
)

// chunkHeader is the trailer overhead of one chunk, id + length
const chunkHeader = 8

// Image is a single image plane and the memory that backs it
type Image struct {
	Width, Height  int
	PixelType      pixel.Type
	MaxChunkLength int

	// Data is the pixel memory, row-major with no padding
	Data []byte
}

// Matches returns true if the image is already laid out for these parameters
func (im *Image) Matches(width, height int, pt pixel.Type, maxChunk int) bool {
	return im.Data != nil &&
		im.Width == width &&
		im.Height == height &&
		im.PixelType == pt &&
		im.MaxChunkLength == maxChunk
}

// Alloc (re)allocates the image memory for a new layout.  Memory is reused
// when it is already large enough.
func (im *Image) Alloc(width, height int, pt pixel.Type, maxChunk int) {
	n := pt.ImageSize(width, height)
	if cap(im.Data) >= n {
		im.Data = im.Data[:n]
	} else {
		im.Data = make([]byte, n)
	}
	im.Width = width
	im.Height = height
	im.PixelType = pt
	im.MaxChunkLength = maxChunk
}

// Part is one plane of a multi-part buffer
type Part struct {
	DataType PartType
	Image
}

// PartType is the meaning of a part in a multi-part payload
type PartType int

const (
	// Part3DImage is a plane of 3D coordinates
	Part3DImage PartType = iota

	// PartConfidenceMap is a plane of per-pixel confidence
	PartConfidenceMap
)

func (p PartType) String() string {
	switch p {
	case Part3DImage:
		return "3DImage"
	case PartConfidenceMap:
		return "ConfidenceMap"
	default:
		return "Unknown"
	}
}

// Chunk is one chunk appended to a buffer
type Chunk struct {
	ID   uint32
	Data []byte
}

// footprint is the number of bytes the chunk occupies in the trailer
func (c Chunk) footprint() int {
	n := len(c.Data) + chunkHeader
	if r := n % 4; r != 0 {
		n += 4 - r
	}
	return n
}

// Buffer is a frame buffer.  It is owned by exactly one of the pool, the
// acquisition slot, or the consumer at any time.
type Buffer struct {
	// Payload is the payload layout
	Payload PayloadType

	// Image is the payload when Payload == PayloadImage
	Image Image

	// Parts are the payload when Payload == PayloadMultiPart
	Parts []Part

	// PartsChunkLength is the chunk capacity of a multi-part buffer
	PartsChunkLength int

	// BlockID is the sequence number of the frame within its stream
	BlockID uint64

	// Timestamp is when the frame was produced
	Timestamp time.Time

	layoutID uint32
	chunks   []Chunk
}

// MaxChunkLength is the number of trailer bytes available for chunks
func (b *Buffer) MaxChunkLength() int {
	if b.Payload == PayloadMultiPart {
		return b.PartsChunkLength
	}
	return b.Image.MaxChunkLength
}

// ResetChunks removes every chunk from the buffer
func (b *Buffer) ResetChunks() {
	b.chunks = b.chunks[:0]
	b.layoutID = 0
}

// SetChunkLayoutID sets the chunk layout id
func (b *Buffer) SetChunkLayoutID(id uint32) {
	b.layoutID = id
}

// ChunkLayoutID returns the chunk layout id
func (b *Buffer) ChunkLayoutID() uint32 {
	return b.layoutID
}

// AddChunk appends a chunk.  The data is copied.  status.InvalidParameter is
// returned if the chunk would not fit in the buffer's chunk capacity.
func (b *Buffer) AddChunk(id uint32, data []byte) error {
	c := Chunk{ID: id, Data: append([]byte(nil), data...)}
	if b.ChunksSize()+c.footprint() > b.MaxChunkLength() {
		return status.Errorf(status.InvalidParameter, "chunk 0x%X of %d bytes does not fit in %d", id, len(data), b.MaxChunkLength())
	}
	b.chunks = append(b.chunks, c)
	return nil
}

// Chunks returns the chunks of the buffer in the order they were added
func (b *Buffer) Chunks() []Chunk {
	return b.chunks
}

// Chunk returns the data of the first chunk with the given id
func (b *Buffer) Chunk(id uint32) ([]byte, bool) {
	for _, c := range b.chunks {
		if c.ID == id {
			return c.Data, true
		}
	}
	return nil, false
}

// ChunksSize is the number of trailer bytes used by chunks
func (b *Buffer) ChunksSize() int {
	n := 0
	for _, c := range b.chunks {
		n += c.footprint()
	}
	return n
}

// PayloadSize is the number of image bytes in the buffer, summed over parts
func (b *Buffer) PayloadSize() int {
	if b.Payload == PayloadMultiPart {
		n := 0
		for i := range b.Parts {
			n += len(b.Parts[i].Data)
		}
		return n
	}
	return len(b.Image.Data)
}
