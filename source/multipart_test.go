package source_test

import (
	"context"
	"errors"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

func TestMultiPartNeedsNegotiation(t *testing.T) {
	m := source.NewMultiPartPipeline(nil)
	m.SetWidth(64)
	m.SetHeight(4)
	m.OnStreamingStart()
	b, _ := m.AllocBuffer()
	if err := m.SubmitForCapture(b); !errors.Is(err, status.NotSupported) {
		t.Errorf("expected NotSupported got %v", err)
	}
}

func TestMultiPartPlanes(t *testing.T) {
	m := source.NewMultiPartPipeline(nil)
	m.SetWidth(64)
	m.SetHeight(4)
	m.SetFrameRate(source.FPSMax)
	m.SetMultiPartAllowed(true)
	m.OnStreamingStart()

	b, _ := m.AllocBuffer()
	for n := 0; n < 3; n++ {
		if err := m.SubmitForCapture(b); err != nil {
			t.Fatal(err)
		}
		got, err := m.RetrieveCaptured(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if got.Payload != buffer.PayloadMultiPart || len(got.Parts) != 2 {
			t.Fatalf("expected a two part payload, got %v with %d parts", got.Payload, len(got.Parts))
		}
		p0, p1 := got.Parts[0], got.Parts[1]
		if p0.PixelType != pixel.Coord3D_A8 || p1.PixelType != pixel.Confidence8 {
			t.Errorf("unexpected part pixel types %v %v", p0.PixelType, p1.PixelType)
		}
		if p0.DataType != buffer.Part3DImage || p1.DataType != buffer.PartConfidenceMap {
			t.Errorf("unexpected part data types %v %v", p0.DataType, p1.DataType)
		}
		if p0.Data[0] != byte(n) || p1.Data[0] != byte(n+1) {
			t.Errorf("frame %d: expected plane origins %d, %d got %d, %d", n, n, n+1, p0.Data[0], p1.Data[0])
		}
		b = got
	}
}

func TestMultiPartPoolSize(t *testing.T) {
	m := source.NewMultiPartPipeline(nil)
	for i := 0; i < source.MultiPartBufferCount; i++ {
		if _, err := m.AllocBuffer(); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := m.AllocBuffer(); !errors.Is(err, status.Exhausted) {
		t.Errorf("expected Exhausted got %v", err)
	}
}
