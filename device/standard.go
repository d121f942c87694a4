package device

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"

	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/source"
)

// Offsets of the standard registers within a source block.  Each register
// is 4 bytes, big endian; AcquisitionFrameRate holds a float32.
const (
	RegWidth            = 0x00
	RegHeight           = 0x04
	RegOffsetX          = 0x08
	RegOffsetY          = 0x0C
	RegPixelFormat      = 0x10
	RegPayloadSize      = 0x14
	RegChunkModeActive  = 0x18
	RegChunkSelector    = 0x1C
	RegChunkEnable      = 0x20
	RegAcquisitionStart = 0x24
	RegAcquisitionStop  = 0x28
	RegFrameRate        = 0x2C
)

// categories of the standard features
const (
	ImageFormatCategory = "ImageFormatControl"
	AcquisitionCategory = "AcquisitionControl"
)

var standardRegisters = []struct {
	name   string
	off    uint32
	access genapi.Access
}{
	{"Width", RegWidth, genapi.ReadWrite},
	{"Height", RegHeight, genapi.ReadWrite},
	{"OffsetX", RegOffsetX, genapi.ReadOnly},
	{"OffsetY", RegOffsetY, genapi.ReadOnly},
	{"PixelFormat", RegPixelFormat, genapi.ReadWrite},
	{"PayloadSize", RegPayloadSize, genapi.ReadOnly},
	{"ChunkModeActive", RegChunkModeActive, genapi.ReadWrite},
	{"ChunkSelector", RegChunkSelector, genapi.ReadWrite},
	{"ChunkEnable", RegChunkEnable, genapi.ReadWrite},
	{"AcquisitionStart", RegAcquisitionStart, genapi.ReadWrite},
	{"AcquisitionStop", RegAcquisitionStop, genapi.ReadWrite},
	{"AcquisitionFrameRate", RegFrameRate, genapi.ReadWrite},
}

// SourceAddr returns the address of the register block of a source
func SourceAddr(id int) uint32 {
	return BaseAddr + uint32(id)*SourceBlock
}

// SourceName returns the name of a standard feature of a source.  Source 0
// uses the bare name; the others are prefixed with Source<n>.
func SourceName(id int, name string) string {
	if id == 0 {
		return name
	}
	return fmt.Sprintf("Source%d%s", id, name)
}

// PayloadSize is the number of bytes a frame of ch occupies, chunk data
// included
func PayloadSize(ch source.Channel) int {
	w, h := ch.Width(), ch.Height()
	if _, ok := ch.(*source.MultiPartPipeline); ok {
		n := 0
		for _, p := range source.PartTypes {
			n += p.PixelType.ImageSize(w, h)
		}
		return n + ch.RequiredChunkSize()
	}
	return ch.PixelType().ImageSize(w, h) + ch.RequiredChunkSize()
}

// sourceSink mirrors the standard registers of one source.  Reads pull the
// live value from the source; writes are applied to the source and
// rejected if it refuses them.
type sourceSink struct {
	d        *Device
	ch       source.Channel
	base     uint32
	selector uint32
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (s *sourceSink) PreRead(r *genapi.Register) error {
	switch r.Address() - s.base {
	case RegWidth:
		r.SetUint32(uint32(s.ch.Width()))
	case RegHeight:
		r.SetUint32(uint32(s.ch.Height()))
	case RegOffsetX:
		r.SetUint32(uint32(s.ch.OffsetX()))
	case RegOffsetY:
		r.SetUint32(uint32(s.ch.OffsetY()))
	case RegPixelFormat:
		r.SetUint32(uint32(s.ch.PixelType()))
	case RegPayloadSize:
		r.SetUint32(uint32(PayloadSize(s.ch)))
	case RegChunkModeActive:
		r.SetUint32(b2u(s.ch.ChunkModeActive()))
	case RegChunkSelector:
		r.SetUint32(s.selector)
	case RegChunkEnable:
		en, err := s.ch.ChunkEnabled(s.selector)
		if err != nil {
			return err
		}
		r.SetUint32(b2u(en))
	case RegFrameRate:
		r.SetFloat(float32(s.ch.FrameRate()))
	}
	log.Printf("%s PreRead\n", r.Name())
	return nil
}

func (s *sourceSink) PostRead(r *genapi.Register) {
	log.Printf("%s PostRead\n", r.Name())
}

func (s *sourceSink) ValidateWrite(r *genapi.Register, off int, data []byte) error {
	b := r.Bytes()
	copy(b[off:], data)
	v := binary.BigEndian.Uint32(b)
	switch r.Address() - s.base {
	case RegWidth:
		return s.ch.SetWidth(int(int32(v)))
	case RegHeight:
		return s.ch.SetHeight(int(int32(v)))
	case RegPixelFormat:
		return s.ch.SetPixelType(pixel.Type(v))
	case RegChunkModeActive:
		return s.ch.SetChunkModeActive(v != 0)
	case RegChunkSelector:
		if _, err := s.ch.ChunkEnabled(v); err != nil {
			return err
		}
		s.selector = v
	case RegChunkEnable:
		return s.ch.SetChunkEnabled(s.selector, v != 0)
	case RegAcquisitionStart:
		if v != 0 {
			return s.d.StartAcquisition(s.ch.ID())
		}
	case RegAcquisitionStop:
		if v != 0 {
			return s.d.StopAcquisition(s.ch.ID())
		}
	case RegFrameRate:
		return s.ch.SetFrameRate(float64(math.Float32frombits(v)))
	}
	return nil
}

func (s *sourceSink) PreWrite(r *genapi.Register) error {
	log.Printf("%s PreWrite\n", r.Name())
	return nil
}

func (s *sourceSink) PostWrite(r *genapi.Register) {
	switch r.Address() - s.base {
	case RegAcquisitionStart, RegAcquisitionStop:
		r.SetUint32(0)
	}
	log.Printf("%s PostWrite\n", r.Name())
}

// addSourceRegisters adds the standard register block of ch to m
func addSourceRegisters(d *Device, m *genapi.RegisterMap, ch source.Channel) error {
	s := &sourceSink{d: d, ch: ch, base: SourceAddr(ch.ID()), selector: chunk.ID}
	for _, r := range standardRegisters {
		name := SourceName(ch.ID(), r.name)
		if _, err := m.AddRegister(name, s.base+r.off, 4, r.access, s); err != nil {
			return err
		}
	}
	return nil
}

// createSourceFeatures creates the standard features of ch.  None of them
// are cached, as the source may change underneath the registers.
func createSourceFeatures(f *genapi.Factory, m *genapi.RegisterMap, ch source.Channel) error {
	id := ch.ID()
	base := SourceAddr(id)
	reg := func(off uint32) *genapi.Register {
		r, _ := m.ByAddress(base + off)
		return r
	}
	name := func(s string) string { return SourceName(id, s) }

	min, max, inc := ch.WidthInfo()
	f.SetName(name("Width"))
	f.SetDescription("Width of the image provided by the device, in pixels.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	f.CreateInteger(reg(RegWidth), int64(min), int64(max), int64(inc))

	min, max, inc = ch.HeightInfo()
	f.SetName(name("Height"))
	f.SetDescription("Height of the image provided by the device, in pixels.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	f.CreateInteger(reg(RegHeight), int64(min), int64(max), int64(inc))

	f.SetName(name("OffsetX"))
	f.SetDescription("Horizontal offset from the origin to the region of interest, in pixels.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	f.CreateInteger(reg(RegOffsetX), 0, 0, 0)

	f.SetName(name("OffsetY"))
	f.SetDescription("Vertical offset from the origin to the region of interest, in pixels.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	f.CreateInteger(reg(RegOffsetY), 0, 0, 0)

	f.SetName(name("PixelFormat"))
	f.SetDescription("Format of the pixels provided by the device.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	for i := 0; ; i++ {
		pt, err := ch.SupportedPixelType(i)
		if err != nil {
			break
		}
		f.AddEnumEntry(pt.String(), int64(pt))
	}
	f.CreateEnum(reg(RegPixelFormat))

	f.SetName(name("PayloadSize"))
	f.SetDescription("Number of bytes transferred for each image, chunk data included.")
	f.SetCategory(ImageFormatCategory)
	f.SetCache(genapi.NoCache)
	f.SetUnit("B")
	f.CreateInteger(reg(RegPayloadSize), 0, 0, 0)

	f.SetName(name("AcquisitionStart"))
	f.SetDescription("Starts the acquisition of the device.")
	f.SetCategory(AcquisitionCategory)
	f.CreateCommand(reg(RegAcquisitionStart))

	f.SetName(name("AcquisitionStop"))
	f.SetDescription("Stops the acquisition of the device at the end of the current frame.")
	f.SetCategory(AcquisitionCategory)
	f.CreateCommand(reg(RegAcquisitionStop))

	f.SetName(name("AcquisitionFrameRate"))
	f.SetDescription("Rate at which frames are delivered.")
	f.SetCategory(AcquisitionCategory)
	f.SetCache(genapi.NoCache)
	f.SetUnit("Hz")
	f.CreateFloat(reg(RegFrameRate), source.FPSMin, source.FPSMax)

	f.SetName(name("ChunkModeActive"))
	f.SetDescription("Activates the inclusion of chunk data in the payload of the image.")
	f.SetCategory(ChunkCategory)
	f.SetCache(genapi.NoCache)
	f.CreateBoolean(reg(RegChunkModeActive))

	f.SetName(name("ChunkSelector"))
	f.SetDescription("Selects which chunk to enable or control.")
	f.SetCategory(ChunkCategory)
	f.SetCache(genapi.NoCache)
	for i := 0; ; i++ {
		cid, cname, err := ch.SupportedChunk(i)
		if err != nil {
			break
		}
		f.AddEnumEntry(cname, int64(cid))
	}
	f.AddSelected(name("ChunkEnable"))
	f.CreateEnum(reg(RegChunkSelector))

	f.SetName(name("ChunkEnable"))
	f.SetDescription("Sends the selected chunk data with the payload of the image.")
	f.SetCategory(ChunkCategory)
	f.SetCache(genapi.NoCache)
	f.CreateBoolean(reg(RegChunkEnable))

	return f.Err()
}
