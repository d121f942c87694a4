package imgrec

import (
	"io"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

// HeaderVersion is the version of the FITS header layout
const HeaderVersion = "1"

// FrameCards returns the header cards describing a frame
func FrameCards(f *stream.Frame) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: HeaderVersion, Comment: "header version"},
		{Name: "CHANNEL", Value: f.Channel, Comment: "streaming channel"},
		{Name: "BLOCKID", Value: int64(f.BlockID), Comment: "frame number within the stream"},
		{Name: "DATE-OBS", Value: f.Timestamp.UTC().Format("2006-01-02T15:04:05.000000"), Comment: "frame timestamp, UTC"},
	}
	if raw, ok := f.Chunk(chunk.ID); ok {
		if rec, err := chunk.Decode(raw); err == nil {
			cards = append(cards,
				fitsio.Card{Name: "CHKCOUNT", Value: int64(rec.Count), Comment: "sample chunk counter"},
				fitsio.Card{Name: "CHKTIME", Value: rec.Time, Comment: "sample chunk time"})
		}
	}
	return cards
}

func planeImage(w, h int, bpp int, data []byte, cards []fitsio.Card) (fitsio.Image, error) {
	dims := []int{w, h}
	if bpp > 1 {
		// interleaved samples make the fastest axis
		dims = []int{bpp, w, h}
	}
	im := fitsio.NewImage(8, dims)
	if err := im.Header().Append(cards...); err != nil {
		im.Close()
		return nil, err
	}
	if err := im.Write(data); err != nil {
		im.Close()
		return nil, err
	}
	return im, nil
}

// WriteFits streams a frame to w as a FITS file.  A single part frame is
// one image; a multi-part frame has one image per part, in order.
func WriteFits(w io.Writer, metadata []fitsio.Card, f *stream.Frame) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()

	cards := append(FrameCards(f), metadata...)
	if f.Payload != buffer.PayloadMultiPart {
		cards = append(cards, fitsio.Card{Name: "PIXFMT", Value: f.PixelType.String(), Comment: "pixel format"})
		im, err := planeImage(f.Width, f.Height, f.PixelType.BytesPerPixel(), f.Data, cards)
		if err != nil {
			return err
		}
		defer im.Close()
		return fits.Write(im)
	}
	for i, p := range f.Parts {
		c := []fitsio.Card{
			{Name: "PIXFMT", Value: p.PixelType.String(), Comment: "pixel format"},
			{Name: "PARTTYPE", Value: p.DataType.String(), Comment: "part data type"},
		}
		if i == 0 {
			c = append(cards, c...)
		}
		im, err := planeImage(p.Width, p.Height, p.PixelType.BytesPerPixel(), p.Data, c)
		if err != nil {
			return err
		}
		err = fits.Write(im)
		im.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
