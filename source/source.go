// Package source implements the acquisition sources of the emulated camera.
//
// A source is a one-slot pipeline: the consumer submits a free buffer, the
// source fills it with the test pattern and holds it, and the consumer
// retrieves it no sooner than the frame interval after the previous
// retrieval.  Submitting while the slot is full drops the frame with
// status.Busy; retrieving from an empty slot returns status.NoDataAvailable
// without blocking.
package source

import (
	"context"
	"fmt"
	"sync"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

const (
	// BufferCount is the pool capacity of a single part source
	BufferCount = 16

	// MultiPartBufferCount is the pool capacity of a multi-part source
	MultiPartBufferCount = 50

	// DefaultFPS is the frame rate sources start with
	DefaultFPS = 30

	WidthMin     = 64
	WidthMax     = 1920
	WidthInc     = 4
	WidthDefault = 640

	HeightMin     = 4
	HeightMax     = 1080
	HeightInc     = 1
	HeightDefault = 480

	// FPSMin and FPSMax bound the frame rate
	FPSMin = 1.
	FPSMax = 120.
)

// ScanType is the sensor scan type
type ScanType int

const (
	// ScanArea is an area scan sensor
	ScanArea ScanType = iota
)

func (s ScanType) String() string {
	if s == ScanArea {
		return "Area"
	}
	return "Unknown"
}

// Channel is an acquisition source as seen by a streaming channel
type Channel interface {
	// ID is the streaming channel number of the source
	ID() int

	Width() int
	SetWidth(int) error
	WidthInfo() (min, max, inc int)

	Height() int
	SetHeight(int) error
	HeightInfo() (min, max, inc int)

	OffsetX() int
	OffsetY() int
	SetOffsetX(int) error
	SetOffsetY(int) error

	PixelType() pixel.Type
	SetPixelType(pixel.Type) error
	SupportedPixelType(i int) (pixel.Type, error)

	ChunkModeActive() bool
	SetChunkModeActive(bool) error
	ChunkEnabled(id uint32) (bool, error)
	SetChunkEnabled(id uint32, enabled bool) error
	SupportedChunk(i int) (id uint32, name string, err error)
	RequiredChunkSize() int
	ChunksSize() int

	PayloadSize() int
	ScanType() ScanType

	FrameRate() float64
	SetFrameRate(float64) error

	AllocBuffer() (*buffer.Buffer, error)
	FreeBuffer(*buffer.Buffer)
	SubmitForCapture(*buffer.Buffer) error
	RetrieveCaptured(context.Context) (*buffer.Buffer, error)
	AbortQueued() []*buffer.Buffer

	OnOpen(destIP string, destPort int)
	OnClose()
	OnStreamingStart()
	OnStreamingStop()

	Stats() Stats
}

// Stats are the running counters of a source
type Stats struct {
	Captured  uint64 `json:"captured"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Aborted   uint64 `json:"aborted"`
	Streaming bool   `json:"streaming"`
}

// Registry hands out sequential channel numbers and keeps the sources it
// numbered.  The zero value is ready to use.
type Registry struct {
	mu       sync.Mutex
	channels []Channel
}

// NextID returns the channel number the next registered source will get
func (r *Registry) NextID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

// Register adds a source, whose ID must be NextID()
func (r *Registry) Register(c Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID() != len(r.channels) {
		return fmt.Errorf("source: channel %d registered out of order, expected %d", c.ID(), len(r.channels))
	}
	r.channels = append(r.channels, c)
	return nil
}

// Channels returns the sources in channel order
func (r *Registry) Channels() []Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Channel(nil), r.channels...)
}

// Channel returns the source with the given number
func (r *Registry) Channel(id int) (Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.channels) {
		return nil, status.Errorf(status.InvalidParameter, "no streaming channel %d", id)
	}
	return r.channels[id], nil
}
