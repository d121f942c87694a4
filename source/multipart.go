package source

import (
	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pattern"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// MultiPartPipeline is a source whose frames have two parts, a 3D image
// plane and a confidence map, each filled with its own test pattern
type MultiPartPipeline struct {
	*Pipeline
	layout *multiPartLayout
}

// NewMultiPartPipeline returns a multi-part source numbered by reg
func NewMultiPartPipeline(reg *Registry) *MultiPartPipeline {
	l := &multiPartLayout{}
	m := &MultiPartPipeline{
		Pipeline: newPipeline(reg, l, MultiPartBufferCount, []pixel.Type{pixel.Mono8}),
		layout:   l,
	}
	if reg != nil {
		reg.Register(m)
	}
	return m
}

// SetMultiPartAllowed is called when the receiver negotiates whether it
// accepts multi-part payloads.  Captures fail with status.NotSupported
// while it is false.
func (m *MultiPartPipeline) SetMultiPartAllowed(b bool) {
	m.Pipeline.mu.Lock()
	defer m.Pipeline.mu.Unlock()
	m.layout.allowed = b
}

// MultiPartAllowed returns true if the receiver accepts multi-part payloads
func (m *MultiPartPipeline) MultiPartAllowed() bool {
	m.Pipeline.mu.Lock()
	defer m.Pipeline.mu.Unlock()
	return m.layout.allowed
}

// PartTypes are the data and pixel types of the parts, in order
var PartTypes = []struct {
	DataType  buffer.PartType
	PixelType pixel.Type
}{
	{buffer.Part3DImage, pixel.Coord3D_A8},
	{buffer.PartConfidenceMap, pixel.Confidence8},
}

type multiPartLayout struct {
	allowed bool
}

func (multiPartLayout) fits(b *buffer.Buffer, w, h int, _ pixel.Type, chunkLen int) bool {
	if b.Payload != buffer.PayloadMultiPart || len(b.Parts) != len(PartTypes) || b.PartsChunkLength != chunkLen {
		return false
	}
	for i, pt := range PartTypes {
		if !b.Parts[i].Matches(w, h, pt.PixelType, 0) {
			return false
		}
	}
	return true
}

func (multiPartLayout) shape(b *buffer.Buffer, w, h int, _ pixel.Type, chunkLen int) {
	b.Payload = buffer.PayloadMultiPart
	if len(b.Parts) != len(PartTypes) {
		b.Parts = make([]buffer.Part, len(PartTypes))
	}
	for i, pt := range PartTypes {
		b.Parts[i].DataType = pt.DataType
		b.Parts[i].Alloc(w, h, pt.PixelType, 0)
	}
	b.PartsChunkLength = chunkLen
}

func (multiPartLayout) prime(g *pattern.Generator, w, h int, _ pixel.Type) error {
	g.PrimePlanes(w, h)
	return nil
}

func (l *multiPartLayout) fill(g *pattern.Generator, b *buffer.Buffer) error {
	if !l.allowed {
		return status.Errorf(status.NotSupported, "receiver does not accept multi-part payloads")
	}
	w, h := b.Parts[0].Width, b.Parts[0].Height
	if !g.PlanesPrimed(w, h) {
		g.PrimePlanes(w, h)
	}
	return g.FillPlanes(b.Parts[0].Data, b.Parts[1].Data)
}
