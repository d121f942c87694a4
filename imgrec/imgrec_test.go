package imgrec

import (
	"fmt"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/astrogo/fitsio"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/generichttp"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

func testFrame(id uint64) *stream.Frame {
	ts := time.Date(2021, 7, 9, 1, 2, 3, 0, time.UTC)
	return &stream.Frame{
		BlockID:   id,
		Timestamp: ts,
		Payload:   buffer.PayloadImage,
		Width:     4,
		Height:    2,
		PixelType: pixel.Mono8,
		Data:      []byte{0, 1, 2, 3, 4, 5, 6, 7},
		Chunks:    []buffer.Chunk{{ID: chunk.ID, Data: chunk.NewRecord(uint32(id), ts).Marshal()}},
	}
}

func TestRecorderSave(t *testing.T) {
	root := t.TempDir()
	r := &Recorder{Root: root, Prefix: "cam", Enabled: true, now: func() time.Time {
		return time.Date(2021, 7, 9, 0, 0, 0, 0, time.UTC)
	}}
	if !r.Active() {
		t.Error("recorder with a root and enabled is not active")
	}
	var names []string
	for i := uint64(1); i <= 2; i++ {
		fn, err := r.Save(testFrame(i), []fitsio.Card{{Name: "EXTRA", Value: "yes"}})
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, fn)
	}
	want := []string{
		filepath.Join(root, "2021-07-09", "cam000000.fits"),
		filepath.Join(root, "2021-07-09", "cam000001.fits"),
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected file %s got %s", want[i], names[i])
		}
	}

	fid, err := os.Open(want[1])
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	f, err := fitsio.Open(fid)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	hdr := f.HDU(0).Header()
	if c := hdr.Get("BLOCKID"); c == nil || fmt.Sprint(c.Value) != "2" {
		t.Errorf("expected BLOCKID 2 got %v", c)
	}
	if c := hdr.Get("CHKCOUNT"); c == nil || fmt.Sprint(c.Value) != "2" {
		t.Errorf("expected CHKCOUNT 2 got %v", c)
	}
	if c := hdr.Get("EXTRA"); c == nil || c.Value != "yes" {
		t.Errorf("metadata card missing, got %v", c)
	}
	axes := hdr.Axes()
	if len(axes) != 2 || axes[0] != 4 || axes[1] != 2 {
		t.Errorf("expected axes [4 2] got %v", axes)
	}
}

func TestWriteFitsMultiPart(t *testing.T) {
	f := &stream.Frame{
		Payload: buffer.PayloadMultiPart,
		Parts: []stream.Part{
			{DataType: buffer.Part3DImage, Width: 2, Height: 2, PixelType: pixel.Coord3D_A8, Data: []byte{1, 2, 3, 4}},
			{DataType: buffer.PartConfidenceMap, Width: 2, Height: 2, PixelType: pixel.Confidence8, Data: []byte{5, 6, 7, 8}},
		},
	}
	fn := filepath.Join(t.TempDir(), "mp.fits")
	fid, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFits(fid, nil, f); err != nil {
		t.Fatal(err)
	}
	fid.Close()

	fid, err = os.Open(fn)
	if err != nil {
		t.Fatal(err)
	}
	defer fid.Close()
	ff, err := fitsio.Open(fid)
	if err != nil {
		t.Fatal(err)
	}
	defer ff.Close()
	if n := len(ff.HDUs()); n != 2 {
		t.Fatalf("expected 2 HDUs got %d", n)
	}
	if c := ff.HDU(1).Header().Get("PARTTYPE"); c == nil || c.Value != "ConfidenceMap" {
		t.Errorf("expected the second HDU to be the confidence map, got %v", c)
	}
}

func TestToImage(t *testing.T) {
	im, err := ToImage(2, 1, pixel.Mono8, []byte{10, 20})
	if err != nil {
		t.Fatal(err)
	}
	if g, ok := im.(*image.Gray); !ok || g.GrayAt(1, 0).Y != 20 {
		t.Errorf("expected a gray image with 20 at (1, 0), got %T", im)
	}

	im, err = ToImage(1, 1, pixel.BGR8, []byte{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	r, g, b, a := im.At(0, 0).RGBA()
	if r>>8 != 3 || g>>8 != 2 || b>>8 != 1 || a>>8 != 0xFF {
		t.Errorf("BGR8 pixel converted to %d %d %d %d", r>>8, g>>8, b>>8, a>>8)
	}

	im, err = ToImage(2, 1, pixel.YCbCr422_8_CbYCrY, []byte{128, 100, 128, 200})
	if err != nil {
		t.Fatal(err)
	}
	r0, _, _, _ := im.At(0, 0).RGBA()
	r1, _, _, _ := im.At(1, 0).RGBA()
	if r0>>8 != 100 || r1>>8 != 200 {
		t.Errorf("neutral chroma should give gray levels 100 and 200, got %d and %d", r0>>8, r1>>8)
	}

	if _, err := ToImage(4, 4, pixel.Mono8, []byte{1}); err == nil {
		t.Error("a short plane was accepted")
	}
}

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestHTTPWrapper(t *testing.T) {
	r := &Recorder{}
	tbl := table{rt: generichttp.RouteTable{}}
	NewHTTPWrapper(r).Inject(tbl)

	h := tbl.rt[generichttp.MethodPath{Method: http.MethodPost, Path: "/autowrite/prefix"}]
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/autowrite/prefix", strings.NewReader(`{"str":"img"}`)))
	if w.Code != http.StatusOK || r.Prefix != "img" {
		t.Errorf("prefix not set, code %d prefix %q", w.Code, r.Prefix)
	}

	h = tbl.rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/enabled"}]
	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodGet, "/autowrite/enabled", nil))
	if strings.TrimSpace(w.Body.String()) != `{"bool":false}` {
		t.Errorf("unexpected enabled payload %s", w.Body.String())
	}
}
