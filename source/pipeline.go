package source

import (
	"context"
	"log"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/pattern"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// SupportedPixelTypes are the formats a single part source can produce
var SupportedPixelTypes = []pixel.Type{
	pixel.Mono8,
	pixel.RGB8,
	pixel.RGBa8,
	pixel.BGR8,
	pixel.BGRa8,
	pixel.YCbCr422_8_CbYCrY,
	pixel.YCbCr8_CbYCr,
}

// layout is what differs between single part and multi-part sources:
// how a buffer is shaped and how it is filled
type layout interface {
	// fits returns true if b is already shaped for the source's settings
	fits(b *buffer.Buffer, w, h int, pt pixel.Type, chunkLen int) bool

	// shape (re)allocates b for the source's settings
	shape(b *buffer.Buffer, w, h int, pt pixel.Type, chunkLen int)

	// prime prepares the generator at stream start
	prime(g *pattern.Generator, w, h int, pt pixel.Type) error

	// fill writes the next frame into b
	fill(g *pattern.Generator, b *buffer.Buffer) error
}

// Pipeline is an acquisition source.  Its methods are safe for concurrent
// use; the one-slot discipline is what orders frames.
type Pipeline struct {
	mu sync.Mutex

	id        int
	width     int
	height    int
	pt        pixel.Type
	supported []pixel.Type

	layout     layout
	chunks     chunk.Appender
	pool       *buffer.Pool
	gen        *pattern.Generator
	stabilizer *Stabilizer

	// slot is the one-deep acquisition pipeline
	slot *buffer.Buffer

	// slotGen changes whenever the slot is emptied, so a paced retrieve can
	// tell that the buffer it waited for was taken away
	slotGen uint64

	// cancelWait interrupts a paced retrieve
	cancelWait context.CancelFunc

	frameCount uint32
	stats      Stats

	// now is the clock used to stamp frames
	now func() time.Time
}

func newPipeline(reg *Registry, l layout, poolSize int, supported []pixel.Type) *Pipeline {
	id := 0
	if reg != nil {
		id = reg.NextID()
	}
	return &Pipeline{
		id:         id,
		width:      WidthDefault,
		height:     HeightDefault,
		pt:         supported[0],
		supported:  supported,
		layout:     l,
		pool:       buffer.NewPool(poolSize),
		gen:        pattern.NewGenerator(0),
		stabilizer: NewStabilizer(DefaultFPS),
		now:        time.Now,
	}
}

// NewPipeline returns a single part source numbered by reg.  reg may be
// nil, in which case the source is channel 0.
func NewPipeline(reg *Registry) *Pipeline {
	p := newPipeline(reg, imageLayout{}, BufferCount, SupportedPixelTypes)
	if reg != nil {
		reg.Register(p)
	}
	return p
}

// ID is the streaming channel number
func (p *Pipeline) ID() int {
	return p.id
}

// Width returns the image width
func (p *Pipeline) Width() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.width
}

// WidthInfo returns the min, max and increment of the width
func (p *Pipeline) WidthInfo() (int, int, int) {
	return WidthMin, WidthMax, WidthInc
}

// SetWidth sets the image width.  Widths outside the bounds or off the
// increment return status.InvalidParameter.
func (p *Pipeline) SetWidth(w int) error {
	if w < WidthMin || w > WidthMax || (w-WidthMin)%WidthInc != 0 {
		return status.Errorf(status.InvalidParameter, "width %d not in [%d, %d] step %d", w, WidthMin, WidthMax, WidthInc)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = w
	return nil
}

// Height returns the image height
func (p *Pipeline) Height() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.height
}

// HeightInfo returns the min, max and increment of the height
func (p *Pipeline) HeightInfo() (int, int, int) {
	return HeightMin, HeightMax, HeightInc
}

// SetHeight sets the image height
func (p *Pipeline) SetHeight(h int) error {
	if h < HeightMin || h > HeightMax || (h-HeightMin)%HeightInc != 0 {
		return status.Errorf(status.InvalidParameter, "height %d not in [%d, %d] step %d", h, HeightMin, HeightMax, HeightInc)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.height = h
	return nil
}

// OffsetX is always zero
func (p *Pipeline) OffsetX() int { return 0 }

// OffsetY is always zero
func (p *Pipeline) OffsetY() int { return 0 }

// SetOffsetX returns status.NotSupported
func (p *Pipeline) SetOffsetX(int) error {
	return status.Errorf(status.NotSupported, "offset x is fixed at 0")
}

// SetOffsetY returns status.NotSupported
func (p *Pipeline) SetOffsetY(int) error {
	return status.Errorf(status.NotSupported, "offset y is fixed at 0")
}

// PixelType returns the pixel format
func (p *Pipeline) PixelType() pixel.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pt
}

// SetPixelType sets the pixel format, which must be one of the supported ones
func (p *Pipeline) SetPixelType(pt pixel.Type) error {
	for _, s := range p.supported {
		if s == pt {
			p.mu.Lock()
			p.pt = pt
			p.mu.Unlock()
			return nil
		}
	}
	return status.Errorf(status.InvalidParameter, "pixel type %v is not supported", pt)
}

// SupportedPixelType returns the i'th supported pixel format
func (p *Pipeline) SupportedPixelType(i int) (pixel.Type, error) {
	if i < 0 || i >= len(p.supported) {
		return 0, status.Errorf(status.InvalidParameter, "no supported pixel type at index %d", i)
	}
	return p.supported[i], nil
}

// ChunkModeActive returns true if chunk mode is active
func (p *Pipeline) ChunkModeActive() bool {
	return p.chunks.ModeActive()
}

// SetChunkModeActive sets chunk mode
func (p *Pipeline) SetChunkModeActive(b bool) error {
	p.chunks.SetModeActive(b)
	return nil
}

// ChunkEnabled returns true if the chunk is enabled
func (p *Pipeline) ChunkEnabled(id uint32) (bool, error) {
	return p.chunks.Enabled(id)
}

// SetChunkEnabled enables or disables a chunk
func (p *Pipeline) SetChunkEnabled(id uint32, b bool) error {
	return p.chunks.SetEnabled(id, b)
}

// SupportedChunk returns the id and name of the i'th supported chunk
func (p *Pipeline) SupportedChunk(i int) (uint32, string, error) {
	return p.chunks.Supported(i)
}

// RequiredChunkSize is the chunk capacity buffers need for the current
// chunk settings, 0 when chunks are off
func (p *Pipeline) RequiredChunkSize() int {
	return p.chunks.RequiredSize()
}

// ChunksSize is the same as RequiredChunkSize
func (p *Pipeline) ChunksSize() int {
	return p.chunks.RequiredSize()
}

// PayloadSize is 0; the payload size follows from the geometry
func (p *Pipeline) PayloadSize() int { return 0 }

// ScanType is always ScanArea
func (p *Pipeline) ScanType() ScanType { return ScanArea }

// FrameRate returns the target frame rate
func (p *Pipeline) FrameRate() float64 {
	return p.stabilizer.FPS()
}

// SetFrameRate sets the target frame rate
func (p *Pipeline) SetFrameRate(fps float64) error {
	if fps < FPSMin || fps > FPSMax {
		return status.Errorf(status.InvalidParameter, "frame rate %g not in [%g, %g]", fps, FPSMin, FPSMax)
	}
	p.stabilizer.SetFPS(fps)
	return nil
}

// AllocBuffer takes a buffer from the pool, or returns status.Exhausted
func (p *Pipeline) AllocBuffer() (*buffer.Buffer, error) {
	return p.pool.Acquire()
}

// FreeBuffer returns a buffer to the pool
func (p *Pipeline) FreeBuffer(b *buffer.Buffer) {
	p.pool.Release(b)
}

// OnOpen is called when a streaming channel is opened to the source
func (p *Pipeline) OnOpen(destIP string, destPort int) {
	log.Printf("streaming channel %d opened to %s:%d\n", p.id, destIP, destPort)
}

// OnClose is called when the streaming channel is closed
func (p *Pipeline) OnClose() {
	log.Printf("streaming channel %d closed\n", p.id)
}

// OnStreamingStart resets the stabilizer and frame counter and primes the
// test pattern
func (p *Pipeline) OnStreamingStart() {
	log.Printf("streaming channel %d start\n", p.id)
	p.stabilizer.Reset()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameCount = 0
	p.stats.Streaming = true
	if err := p.layout.prime(p.gen, p.width, p.height, p.pt); err != nil {
		log.Printf("streaming channel %d: priming test pattern: %v\n", p.id, err)
	}
}

// OnStreamingStop is called when streaming stops.  A buffer left in the
// slot remains there until AbortQueued or RetrieveCaptured.
func (p *Pipeline) OnStreamingStop() {
	log.Printf("streaming channel %d stop\n", p.id)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Streaming = false
}

// SubmitForCapture captures a frame into b and holds it in the slot.  If
// the slot already holds a frame status.Busy is returned and b is left as
// it was; the caller keeps ownership of b.
func (p *Pipeline) SubmitForCapture(b *buffer.Buffer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slot != nil {
		p.stats.Dropped++
		return status.Busy
	}
	chunkLen := p.chunks.RequiredSize()
	if !p.layout.fits(b, p.width, p.height, p.pt, chunkLen) {
		p.layout.shape(b, p.width, p.height, p.pt, chunkLen)
	}
	if err := p.layout.fill(p.gen, b); err != nil {
		return err
	}
	p.frameCount++
	t := p.now()
	if err := p.chunks.Append(b, p.frameCount, t); err != nil {
		return err
	}
	b.BlockID = uint64(p.frameCount)
	b.Timestamp = t
	p.slot = b
	p.stats.Captured++
	return nil
}

// RetrieveCaptured returns the captured frame once the stabilizer allows.
// It returns status.NoDataAvailable at once if the slot is empty, and also
// if the slot is emptied by AbortQueued during the wait.  If ctx is done
// during the wait status.Aborted is returned and the frame stays in the
// slot.
func (p *Pipeline) RetrieveCaptured(ctx context.Context) (*buffer.Buffer, error) {
	p.mu.Lock()
	if p.slot == nil {
		p.mu.Unlock()
		return nil, status.NoDataAvailable
	}
	gen := p.slotGen
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancelWait = cancel
	p.mu.Unlock()

	err := p.stabilizer.Wait(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelWait = nil
	if p.slot == nil || p.slotGen != gen {
		return nil, status.NoDataAvailable
	}
	if err != nil {
		return nil, status.Errorf(status.Aborted, "paced retrieve: %v", err)
	}
	b := p.slot
	p.slot = nil
	p.slotGen++
	p.stats.Delivered++
	return b, nil
}

// AbortQueued empties the slot without delivering it and returns what it
// held to the caller.  A paced RetrieveCaptured in progress returns
// status.NoDataAvailable.
func (p *Pipeline) AbortQueued() []*buffer.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*buffer.Buffer
	if p.slot != nil {
		out = append(out, p.slot)
		p.slot = nil
		p.stats.Aborted++
	}
	p.slotGen++
	if p.cancelWait != nil {
		p.cancelWait()
	}
	return out
}

// Stats returns the running counters
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// FrameCount is the number of frames captured since streaming started
func (p *Pipeline) FrameCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frameCount
}

type imageLayout struct{}

func (imageLayout) fits(b *buffer.Buffer, w, h int, pt pixel.Type, chunkLen int) bool {
	return b.Payload == buffer.PayloadImage && b.Image.Matches(w, h, pt, chunkLen)
}

func (imageLayout) shape(b *buffer.Buffer, w, h int, pt pixel.Type, chunkLen int) {
	b.Payload = buffer.PayloadImage
	b.Parts = nil
	b.Image.Alloc(w, h, pt, chunkLen)
}

func (imageLayout) prime(g *pattern.Generator, w, h int, pt pixel.Type) error {
	return g.Prime(w, h, pt)
}

func (imageLayout) fill(g *pattern.Generator, b *buffer.Buffer) error {
	im := &b.Image
	return g.Fill(im.Data, im.Width, im.Height, im.PixelType)
}
