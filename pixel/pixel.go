// Package pixel enumerates the pixel formats the emulator can produce, using
// their GenICam PFNC codes.
package pixel

import (
	"fmt"
	"strings"
)

// Type is a PFNC pixel format code.
// Bits 16..23 of the code hold the number of bits per pixel.
type Type uint32

const (
	// Mono8 is 8-bit monochrome
	Mono8 Type = 0x01080001

	// RGB8 is packed 8-bit red, green, blue
	RGB8 Type = 0x02180014

	// RGBa8 is packed 8-bit red, green, blue, alpha
	RGBa8 Type = 0x02200016

	// BGR8 is packed 8-bit blue, green, red
	BGR8 Type = 0x02180015

	// BGRa8 is packed 8-bit blue, green, red, alpha
	BGRa8 Type = 0x02200017

	// YCbCr422_8_CbYCrY is 4:2:2 subsampled YUV, two bytes per pixel
	YCbCr422_8_CbYCrY Type = 0x02100043

	// YCbCr8_CbYCr is 4:4:4 YUV, three bytes per pixel
	YCbCr8_CbYCr Type = 0x0218003A

	// Coord3D_A8 is the 8-bit 3D coordinate plane of a multi-part payload
	Coord3D_A8 Type = 0x010800AF

	// Confidence8 is the 8-bit confidence plane of a multi-part payload
	Confidence8 Type = 0x010800C6
)

var names = map[Type]string{
	Mono8:             "Mono8",
	RGB8:              "RGB8",
	RGBa8:             "RGBa8",
	BGR8:              "BGR8",
	BGRa8:             "BGRa8",
	YCbCr422_8_CbYCrY: "YCbCr422_8_CbYCrY",
	YCbCr8_CbYCr:      "YCbCr8_CbYCr",
	Coord3D_A8:        "Coord3D_A8",
	Confidence8:       "Confidence8",
}

// String returns the PFNC name of the format
func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return fmt.Sprintf("PixelType(0x%08X)", uint32(t))
}

// BitsPerPixel is the effective number of bits per pixel
func (t Type) BitsPerPixel() int {
	return int((uint32(t) >> 16) & 0xFF)
}

// BytesPerPixel is the number of bytes one pixel occupies.
func (t Type) BytesPerPixel() int {
	return (t.BitsPerPixel() + 7) / 8
}

// ImageSize is the number of bytes of a width x height image of this type
func (t Type) ImageSize(width, height int) int {
	return width * height * t.BytesPerPixel()
}

// Known returns true if the type is one this package names
func (t Type) Known() bool {
	_, ok := names[t]
	return ok
}

// Parse converts a PFNC name (case insensitive) into a Type
func Parse(s string) (Type, error) {
	for k, v := range names {
		if strings.EqualFold(v, s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("pixel: unknown pixel format %q", s)
}
