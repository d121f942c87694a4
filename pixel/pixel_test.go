package pixel_test

import (
	"fmt"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

func ExampleType_BytesPerPixel() {
	fmt.Println(pixel.Mono8.BytesPerPixel(), pixel.RGB8.BytesPerPixel(), pixel.BGRa8.BytesPerPixel(), pixel.YCbCr422_8_CbYCrY.BytesPerPixel())
	// Output: 1 3 4 2
}

func TestParseRoundTrip(t *testing.T) {
	for _, typ := range []pixel.Type{pixel.Mono8, pixel.RGB8, pixel.RGBa8, pixel.BGR8, pixel.BGRa8, pixel.YCbCr422_8_CbYCrY, pixel.YCbCr8_CbYCr} {
		got, err := pixel.Parse(typ.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != typ {
			t.Errorf("expected %v got %v", typ, got)
		}
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := pixel.Parse("Bayer12"); err == nil {
		t.Error("expected an error parsing an unknown format")
	}
}

func TestImageSize(t *testing.T) {
	if s := pixel.RGBa8.ImageSize(640, 480); s != 640*480*4 {
		t.Errorf("expected %d got %d", 640*480*4, s)
	}
}
