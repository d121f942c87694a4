package source_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

func TestGeometryRoundTrip(t *testing.T) {
	p := source.NewPipeline(nil)
	for _, w := range []int{64, 68, 640, 1916, 1920} {
		if err := p.SetWidth(w); err != nil {
			t.Fatalf("width %d: %v", w, err)
		}
		if p.Width() != w {
			t.Errorf("expected width %d got %d", w, p.Width())
		}
	}
	for _, h := range []int{4, 5, 480, 1079, 1080} {
		if err := p.SetHeight(h); err != nil {
			t.Fatalf("height %d: %v", h, err)
		}
		if p.Height() != h {
			t.Errorf("expected height %d got %d", h, p.Height())
		}
	}
}

func TestGeometryRejected(t *testing.T) {
	p := source.NewPipeline(nil)
	p.SetWidth(640)
	p.SetHeight(480)
	for _, w := range []int{0, 60, 66, 1921, 1924} {
		if err := p.SetWidth(w); !errors.Is(err, status.InvalidParameter) {
			t.Errorf("width %d: expected InvalidParameter got %v", w, err)
		}
	}
	for _, h := range []int{0, 3, 1081} {
		if err := p.SetHeight(h); !errors.Is(err, status.InvalidParameter) {
			t.Errorf("height %d: expected InvalidParameter got %v", h, err)
		}
	}
	if p.Width() != 640 || p.Height() != 480 {
		t.Errorf("rejected sets changed the geometry to %dx%d", p.Width(), p.Height())
	}
}

func TestOffsetsNotSupported(t *testing.T) {
	p := source.NewPipeline(nil)
	if err := p.SetOffsetX(4); !errors.Is(err, status.NotSupported) {
		t.Errorf("expected NotSupported got %v", err)
	}
	if err := p.SetOffsetY(4); !errors.Is(err, status.NotSupported) {
		t.Errorf("expected NotSupported got %v", err)
	}
	if p.OffsetX() != 0 || p.OffsetY() != 0 {
		t.Error("offsets should be zero")
	}
}

func TestPixelTypes(t *testing.T) {
	p := source.NewPipeline(nil)
	for i := 0; ; i++ {
		pt, err := p.SupportedPixelType(i)
		if err != nil {
			if i != len(source.SupportedPixelTypes) {
				t.Errorf("expected %d supported types, got %d", len(source.SupportedPixelTypes), i)
			}
			break
		}
		if err := p.SetPixelType(pt); err != nil {
			t.Errorf("set %v: %v", pt, err)
		}
	}
	if err := p.SetPixelType(pixel.Coord3D_A8); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter got %v", err)
	}
}

func newSmall(t *testing.T) *source.Pipeline {
	t.Helper()
	p := source.NewPipeline(nil)
	p.SetWidth(64)
	p.SetHeight(4)
	p.SetFrameRate(source.FPSMax)
	p.OnStreamingStart()
	return p
}

func TestDoubleSubmitIsBusy(t *testing.T) {
	p := newSmall(t)
	b1, _ := p.AllocBuffer()
	b2, _ := p.AllocBuffer()
	if err := p.SubmitForCapture(b1); err != nil {
		t.Fatal(err)
	}
	before := append([]byte(nil), b1.Image.Data...)
	if err := p.SubmitForCapture(b2); !errors.Is(err, status.Busy) {
		t.Fatalf("expected Busy got %v", err)
	}
	got, err := p.RetrieveCaptured(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != b1 {
		t.Error("expected the first buffer to be delivered")
	}
	if !bytes.Equal(got.Image.Data, before) {
		t.Error("the busy submit altered the captured frame")
	}
	if p.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped frame got %d", p.Stats().Dropped)
	}
}

func TestEmptyRetrieveDoesNotBlock(t *testing.T) {
	p := newSmall(t)
	p.SetFrameRate(source.FPSMin)
	start := time.Now()
	_, err := p.RetrieveCaptured(context.Background())
	if !errors.Is(err, status.NoDataAvailable) {
		t.Fatalf("expected NoDataAvailable got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("empty retrieve blocked")
	}
}

func TestDeliverySpacing(t *testing.T) {
	const fps = 20
	p := newSmall(t)
	p.SetFrameRate(fps)
	p.OnStreamingStart()
	b, _ := p.AllocBuffer()
	var last time.Time
	for i := 0; i < 4; i++ {
		if err := p.SubmitForCapture(b); err != nil {
			t.Fatal(err)
		}
		got, err := p.RetrieveCaptured(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		now := time.Now()
		if i > 0 {
			if dt := now.Sub(last); dt < time.Second/fps-5*time.Millisecond {
				t.Errorf("deliveries %d and %d only %v apart", i-1, i, dt)
			}
		}
		last = now
		b = got
	}
}

func TestChunkCounterStartsAtOne(t *testing.T) {
	p := newSmall(t)
	p.SetChunkModeActive(true)
	p.SetChunkEnabled(chunk.ID, true)
	if p.RequiredChunkSize() != chunk.RequiredSize {
		t.Fatalf("expected required chunk size %d got %d", chunk.RequiredSize, p.RequiredChunkSize())
	}
	p.OnStreamingStart()
	b, _ := p.AllocBuffer()
	for want := uint32(1); want <= 3; want++ {
		if err := p.SubmitForCapture(b); err != nil {
			t.Fatal(err)
		}
		got, err := p.RetrieveCaptured(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got.Image.MaxChunkLength != chunk.RequiredSize {
			t.Errorf("buffer was not sized for chunks, max chunk length %d", got.Image.MaxChunkLength)
		}
		data, ok := got.Chunk(chunk.ID)
		if !ok {
			t.Fatal("no sample chunk attached")
		}
		r, _ := chunk.Decode(data)
		if r.Count != want {
			t.Errorf("expected frame counter %d got %d", want, r.Count)
		}
		b = got
	}

	p.SetChunkEnabled(chunk.ID, false)
	if p.RequiredChunkSize() != 0 {
		t.Errorf("expected required chunk size 0 got %d", p.RequiredChunkSize())
	}
	p.SubmitForCapture(b)
	got, _ := p.RetrieveCaptured(context.Background())
	if len(got.Chunks()) != 0 {
		t.Error("chunks attached with the sample chunk disabled")
	}
	if got.Image.MaxChunkLength != 0 {
		t.Error("buffer was not resized when the chunk length changed")
	}
}

func TestPatternAcrossFrames(t *testing.T) {
	p := newSmall(t)
	b, _ := p.AllocBuffer()
	var first byte
	for n := 0; n < 5; n++ {
		p.SubmitForCapture(b)
		got, err := p.RetrieveCaptured(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			first = got.Image.Data[0]
		}
		if got.Image.Data[0] != first+byte(n) {
			t.Errorf("frame %d: expected origin %d got %d", n, first+byte(n), got.Image.Data[0])
		}
		b = got
	}
}

func TestAbortDuringPacedRetrieve(t *testing.T) {
	p := newSmall(t)
	p.SetFrameRate(source.FPSMin)
	p.OnStreamingStart()
	b, _ := p.AllocBuffer()
	p.SubmitForCapture(b)
	if _, err := p.RetrieveCaptured(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.SubmitForCapture(b)

	errs := make(chan error, 1)
	go func() {
		_, err := p.RetrieveCaptured(context.Background())
		errs <- err
	}()
	time.Sleep(50 * time.Millisecond)
	dropped := p.AbortQueued()
	if len(dropped) != 1 || dropped[0] != b {
		t.Errorf("expected the queued buffer back from abort, got %v", dropped)
	}
	select {
	case err := <-errs:
		if !errors.Is(err, status.NoDataAvailable) {
			t.Errorf("expected NoDataAvailable got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("paced retrieve did not observe the abort")
	}
	if _, err := p.RetrieveCaptured(context.Background()); !errors.Is(err, status.NoDataAvailable) {
		t.Errorf("expected the slot to be empty after abort, got %v", err)
	}
}

func TestCancelledRetrieveKeepsFrame(t *testing.T) {
	p := newSmall(t)
	p.SetFrameRate(source.FPSMin)
	p.OnStreamingStart()
	b, _ := p.AllocBuffer()
	p.SubmitForCapture(b)
	p.RetrieveCaptured(context.Background())
	p.SubmitForCapture(b)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.RetrieveCaptured(ctx); !errors.Is(err, status.Aborted) {
		t.Errorf("expected Aborted got %v", err)
	}
	if err := p.SubmitForCapture(b); !errors.Is(err, status.Busy) {
		t.Errorf("expected the frame to remain in the slot, got %v", err)
	}
}

func TestAllocBufferExhausts(t *testing.T) {
	p := source.NewPipeline(nil)
	var bufs []*buffer.Buffer
	for i := 0; i < source.BufferCount; i++ {
		b, err := p.AllocBuffer()
		if err != nil {
			t.Fatal(err)
		}
		bufs = append(bufs, b)
	}
	if _, err := p.AllocBuffer(); !errors.Is(err, status.Exhausted) {
		t.Fatalf("expected Exhausted got %v", err)
	}
	p.FreeBuffer(bufs[3])
	if _, err := p.AllocBuffer(); err != nil {
		t.Errorf("expected alloc after free to succeed, got %v", err)
	}
}

func TestRegistryNumbersSequentially(t *testing.T) {
	var reg source.Registry
	a := source.NewPipeline(&reg)
	b := source.NewMultiPartPipeline(&reg)
	c := source.NewPipeline(&reg)
	if a.ID() != 0 || b.ID() != 1 || c.ID() != 2 {
		t.Errorf("expected ids 0 1 2 got %d %d %d", a.ID(), b.ID(), c.ID())
	}
	ch, err := reg.Channel(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ch.(*source.MultiPartPipeline); !ok {
		t.Errorf("expected channel 1 to be the multi-part source, got %T", ch)
	}
	if _, err := reg.Channel(3); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter got %v", err)
	}
}
