package pattern_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/pattern"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

func TestMono8Determinism(t *testing.T) {
	const (
		w  = 64
		h  = 4
		s0 = 250 // crosses the 8-bit wrap within five frames
	)
	g := pattern.NewGenerator(s0)
	if err := g.Prime(w, h, pixel.Mono8); err != nil {
		t.Fatal(err)
	}
	dst := make([]byte, w*h)
	for n := 0; n < 5; n++ {
		if err := g.Fill(dst, w, h, pixel.Mono8); err != nil {
			t.Fatal(err)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				want := byte((s0 + n + y + x) % 256)
				if got := dst[y*w+x]; got != want {
					t.Fatalf("frame %d pixel (%d,%d): expected %d got %d", n, x, y, want, got)
				}
			}
		}
	}
}

func TestRGBFrameNMatchesFormula(t *testing.T) {
	const w, h = 64, 4
	for _, pt := range []pixel.Type{pixel.RGB8, pixel.BGRa8, pixel.YCbCr8_CbYCr, pixel.YCbCr422_8_CbYCrY} {
		g := pattern.NewGenerator(7)
		g.Prime(w, h, pt)
		dst := make([]byte, pt.ImageSize(w, h))
		want := make([]byte, pt.ImageSize(w, h))
		for n := 0; n < 3; n++ {
			if err := g.Fill(dst, w, h, pt); err != nil {
				t.Fatal(err)
			}
			pattern.Render(want, w, h, pt, 7+n)
			if !bytes.Equal(dst, want) {
				t.Errorf("%v frame %d does not match the formula at seed %d", pt, n, 7+n)
			}
		}
	}
}

func TestRGBChannels(t *testing.T) {
	dst := make([]byte, 3*64)
	pattern.Render(dst, 64, 1, pixel.RGB8, 5)
	// pixel 1 has value 6
	if dst[3] != 96 || dst[4] != 24 || dst[5] != 6 {
		t.Errorf("expected [96 24 6] got %v", dst[3:6])
	}
}

func TestYUV422Channels(t *testing.T) {
	dst := make([]byte, 2*64)
	pattern.Render(dst, 64, 1, pixel.YCbCr422_8_CbYCrY, 0)
	// even column 0, value 0; odd column 1, value 1
	if dst[0] != 0 || dst[1] != 0 {
		t.Errorf("column 0: expected [0 0] got %v", dst[0:2])
	}
	if dst[2] != 251 || dst[3] != 1 {
		t.Errorf("column 1: expected [251 1] got %v", dst[2:4])
	}
}

func TestFillPrimesOnGeometryChange(t *testing.T) {
	g := pattern.NewGenerator(0)
	g.Prime(64, 4, pixel.Mono8)
	dst := make([]byte, 128*4)
	if err := g.Fill(dst, 128, 4, pixel.Mono8); err != nil {
		t.Fatal(err)
	}
	if !g.Primed(128, 4, pixel.Mono8) {
		t.Error("generator should have re-primed for the new geometry")
	}
}

func TestPlanesAdvanceIndependently(t *testing.T) {
	g := pattern.NewGenerator(10)
	g.PrimePlanes(64, 4)
	p0 := make([]byte, 64*4)
	p1 := make([]byte, 64*4)
	for n := 0; n < 3; n++ {
		if err := g.FillPlanes(p0, p1); err != nil {
			t.Fatal(err)
		}
		if p0[0] != byte(10+n) || p1[0] != byte(11+n) {
			t.Errorf("frame %d: expected plane origins %d, %d got %d, %d", n, 10+n, 11+n, p0[0], p1[0])
		}
	}
}

func ExampleRender() {
	dst := make([]byte, 64*2)
	pattern.Render(dst, 64, 2, pixel.Mono8, 254)
	fmt.Println(dst[0:3], dst[64:67])
	// Output: [254 255 0] [255 0 1]
}
