package imgrec

import (
	"fmt"
	"image"
	"image/color"

	"github.jpl.nasa.gov/bdube/softgev/pixel"
)

// ToImage wraps or converts a packed image plane into an image.Image.
// Monochrome planes share data; color planes are converted to RGBA.
func ToImage(width, height int, pt pixel.Type, data []byte) (image.Image, error) {
	if n := pt.ImageSize(width, height); len(data) < n {
		return nil, fmt.Errorf("imgrec: %dx%d %s image needs %d bytes, have %d", width, height, pt, n, len(data))
	}
	rect := image.Rect(0, 0, width, height)
	switch pt {
	case pixel.Mono8, pixel.Coord3D_A8, pixel.Confidence8:
		return &image.Gray{Pix: data[:width*height], Stride: width, Rect: rect}, nil
	case pixel.RGB8, pixel.BGR8, pixel.RGBa8, pixel.BGRa8:
		bpp := pt.BytesPerPixel()
		swap := pt == pixel.BGR8 || pt == pixel.BGRa8
		im := image.NewRGBA(rect)
		for i := 0; i < width*height; i++ {
			src := data[i*bpp : i*bpp+bpp]
			dst := im.Pix[i*4 : i*4+4]
			if swap {
				dst[0], dst[1], dst[2] = src[2], src[1], src[0]
			} else {
				dst[0], dst[1], dst[2] = src[0], src[1], src[2]
			}
			dst[3] = 0xFF
		}
		return im, nil
	case pixel.YCbCr8_CbYCr:
		im := image.NewRGBA(rect)
		for i := 0; i < width*height; i++ {
			cb, y, cr := data[i*3], data[i*3+1], data[i*3+2]
			setYCbCr(im.Pix[i*4:], y, cb, cr)
		}
		return im, nil
	case pixel.YCbCr422_8_CbYCrY:
		im := image.NewRGBA(rect)
		for i := 0; i+1 < width*height; i += 2 {
			q := data[i*2 : i*2+4]
			cb, y0, cr, y1 := q[0], q[1], q[2], q[3]
			setYCbCr(im.Pix[i*4:], y0, cb, cr)
			setYCbCr(im.Pix[(i+1)*4:], y1, cb, cr)
		}
		return im, nil
	}
	return nil, fmt.Errorf("imgrec: no image conversion for %s", pt)
}

func setYCbCr(dst []byte, y, cb, cr uint8) {
	r, g, b := color.YCbCrToRGB(y, cb, cr)
	dst[0], dst[1], dst[2], dst[3] = r, g, b, 0xFF
}
