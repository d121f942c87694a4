// Package pattern synthesizes the test images of the emulated camera.
//
// Every format is a diagonal ramp: the value of pixel (x, y) is seed+y+x,
// and each frame advances the seed by one.  How the value is mapped to the
// channels of a pixel depends on the format.
package pattern

import (
	"fmt"

	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

// Render writes the pattern for the given seed into dst, which must hold at
// least pt.ImageSize(width, height) bytes.
func Render(dst []byte, width, height int, pt pixel.Type, seed int) error {
	bpp := pt.BytesPerPixel()
	if len(dst) < width*height*bpp {
		return fmt.Errorf("pattern: destination of %d bytes too small for %dx%d %v", len(dst), width, height, pt)
	}
	switch pt {
	case pixel.Mono8, pixel.Coord3D_A8, pixel.Confidence8:
		for y := 0; y < height; y++ {
			base := byte(seed + y)
			row := dst[y*width : (y+1)*width]
			for x := range row {
				row[x] = base
				base++
			}
		}
	case pixel.RGB8, pixel.BGR8, pixel.RGBa8, pixel.BGRa8:
		for y := 0; y < height; y++ {
			value := seed + y
			for x := 0; x < width; x++ {
				px := dst[(y*width+x)*bpp:]
				px[0] = byte((value << 4) & 0xFF)
				px[1] = byte((value << 2) & 0xFF)
				px[2] = byte(value & 0xFF)
				if bpp == 4 {
					px[3] = 0
				}
				value++
			}
		}
	case pixel.YCbCr8_CbYCr:
		for y := 0; y < height; y++ {
			value := seed + y
			for x := 0; x < width; x++ {
				px := dst[(y*width+x)*3:]
				px[0] = byte((value << 1) & 0xFF)
				px[1] = byte(value & 0xFF)
				px[2] = 255 - byte((value<<2)&0xFF)
				value++
			}
		}
	case pixel.YCbCr422_8_CbYCrY:
		for y := 0; y < height; y++ {
			value := seed + y
			for x := 0; x < width; x++ {
				px := dst[(y*width+x)*2:]
				if x&1 == 0 {
					px[0] = byte((value << 1) & 0xFF)
				} else {
					px[0] = 255 - byte((value<<2)&0xFF)
				}
				px[1] = byte(value & 0xFF)
				value++
			}
		}
	default:
		return fmt.Errorf("pattern: no test pattern for pixel type %v", pt)
	}
	return nil
}

// Generator produces successive frames of the test pattern.
//
// Mono8 and the planes of a multi-part frame are produced by copying a
// pre-rendered master and then incrementing every byte of the master, which
// wraps at 8 bits.  The other formats are re-rendered with the next seed.
// Either way frame N after Prime equals Render with the primed seed + N.
//
// The seed is kept across Prime calls, so a new stream does not repeat the
// first frame of the previous one.
type Generator struct {
	seed int

	width, height int
	pt            pixel.Type
	primed        bool

	seed0  int
	frame  int
	master []byte

	planes         [2][]byte
	planeW, planeH int
}

// NewGenerator returns a generator that will prime with the given seed
func NewGenerator(seed int) *Generator {
	return &Generator{seed: seed}
}

// Seed is the seed the next Prime will use
func (g *Generator) Seed() int {
	return g.seed
}

// Prime renders the master frame for a geometry and resets the frame phase.
func (g *Generator) Prime(width, height int, pt pixel.Type) error {
	master := make([]byte, pt.ImageSize(width, height))
	if err := Render(master, width, height, pt, g.seed); err != nil {
		return err
	}
	g.master = master
	g.width, g.height, g.pt = width, height, pt
	g.seed0 = g.seed
	g.seed++
	g.frame = 0
	g.primed = true
	return nil
}

// Primed returns true if the generator is primed for the geometry
func (g *Generator) Primed(width, height int, pt pixel.Type) bool {
	return g.primed && g.width == width && g.height == height && g.pt == pt
}

// Fill writes the next frame into dst and advances the phase.  The
// generator is primed first if it is not primed for the geometry.
func (g *Generator) Fill(dst []byte, width, height int, pt pixel.Type) error {
	if !g.Primed(width, height, pt) {
		if err := g.Prime(width, height, pt); err != nil {
			return err
		}
	}
	switch pt {
	case pixel.Mono8:
		if len(dst) < len(g.master) {
			return fmt.Errorf("pattern: destination of %d bytes too small for %d", len(dst), len(g.master))
		}
		copy(dst, g.master)
		advance(g.master)
	default:
		if err := Render(dst, width, height, pt, g.seed0+g.frame); err != nil {
			return err
		}
	}
	g.frame++
	return nil
}

// PrimePlanes renders the two master planes of a multi-part frame.  The
// first plane uses the current seed, the second the one after it.
func (g *Generator) PrimePlanes(width, height int) {
	for i := range g.planes {
		p := make([]byte, width*height)
		Render(p, width, height, pixel.Mono8, g.seed)
		g.planes[i] = p
		g.seed++
	}
	g.planeW, g.planeH = width, height
}

// PlanesPrimed returns true if the planes are primed for the geometry
func (g *Generator) PlanesPrimed(width, height int) bool {
	return g.planes[0] != nil && g.planeW == width && g.planeH == height
}

// FillPlanes copies the master planes into dst0 and dst1 and advances both
func (g *Generator) FillPlanes(dst0, dst1 []byte) error {
	if g.planes[0] == nil {
		return fmt.Errorf("pattern: planes not primed")
	}
	for i, dst := range [][]byte{dst0, dst1} {
		if len(dst) < len(g.planes[i]) {
			return fmt.Errorf("pattern: plane %d destination of %d bytes too small for %d", i, len(dst), len(g.planes[i]))
		}
		copy(dst, g.planes[i])
		advance(g.planes[i])
	}
	return nil
}

func advance(b []byte) {
	for i := range b {
		b[i]++
	}
}
