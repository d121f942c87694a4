// Package chunk packs the sample metadata record that is appended to frames
// as chunk data and sent with message channel events.
package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

const (
	// ID is the chunk id of the sample record
	ID uint32 = 0x4001

	// LayoutID is the chunk layout id set on buffers carrying the sample record
	LayoutID uint32 = 0x12345678

	// Name is the name of the sample chunk, as listed by the chunk selector
	Name = "Sample"

	// TimeLength is the fixed width of the time field
	TimeLength = 32

	// RecordSize is the packed size of a Record
	RecordSize = 4 + TimeLength

	// RequiredSize is the chunk capacity a buffer needs to carry the record
	RequiredSize = 64
)

// Record is the sample record, a frame or event counter and the wall time
type Record struct {
	Count uint32
	Time  string
}

// NewRecord returns a record for a counter at time t.  The time is formatted
// the way C's asctime does.
func NewRecord(count uint32, t time.Time) Record {
	return Record{Count: count, Time: t.Format(time.ANSIC)}
}

// Marshal packs the record, little endian counter then the time padded with
// NULs or truncated to TimeLength bytes
func (r Record) Marshal() []byte {
	out := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(out, r.Count)
	copy(out[4:], r.Time)
	return out
}

// Decode unpacks a record
func Decode(b []byte) (Record, error) {
	if len(b) < RecordSize {
		return Record{}, fmt.Errorf("chunk: record of %d bytes is shorter than %d", len(b), RecordSize)
	}
	t := b[4:RecordSize]
	if i := bytes.IndexByte(t, 0); i >= 0 {
		t = t[:i]
	}
	return Record{Count: binary.LittleEndian.Uint32(b), Time: string(t)}, nil
}

// Appender attaches the sample record to buffers while chunk mode is
// active and the sample chunk is enabled.
type Appender struct {
	mu            sync.Mutex
	modeActive    bool
	sampleEnabled bool
}

// SetModeActive sets chunk mode
func (a *Appender) SetModeActive(b bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.modeActive = b
}

// ModeActive returns true if chunk mode is active
func (a *Appender) ModeActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.modeActive
}

// SetEnabled enables or disables a chunk by id.  Only ID is supported.
func (a *Appender) SetEnabled(id uint32, b bool) error {
	if id != ID {
		return status.Errorf(status.InvalidParameter, "unsupported chunk id 0x%X", id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sampleEnabled = b
	return nil
}

// Enabled returns if a chunk is enabled
func (a *Appender) Enabled(id uint32) (bool, error) {
	if id != ID {
		return false, status.Errorf(status.InvalidParameter, "unsupported chunk id 0x%X", id)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sampleEnabled, nil
}

// Supported returns the id and name of the i'th supported chunk
func (a *Appender) Supported(i int) (uint32, string, error) {
	if i != 0 {
		return 0, "", status.Errorf(status.InvalidParameter, "no supported chunk at index %d", i)
	}
	return ID, Name, nil
}

// RequiredSize is the chunk capacity buffers must have for the current
// settings
func (a *Appender) RequiredSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.modeActive && a.sampleEnabled {
		return RequiredSize
	}
	return 0
}

// Append attaches the record for count and t to b.  It is a no-op unless
// chunk mode is active and the sample chunk is enabled.
func (a *Appender) Append(b *buffer.Buffer, count uint32, t time.Time) error {
	if a.RequiredSize() == 0 {
		return nil
	}
	b.ResetChunks()
	b.SetChunkLayoutID(LayoutID)
	return b.AddChunk(ID, NewRecord(count, t).Marshal())
}
