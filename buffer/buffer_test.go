package buffer_test

import (
	"errors"
	"fmt"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

func TestPoolExhaustsAtCapacity(t *testing.T) {
	p := buffer.NewPool(16)
	var held []*buffer.Buffer
	for i := 0; i < 16; i++ {
		b, err := p.Acquire()
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		held = append(held, b)
	}
	if _, err := p.Acquire(); !errors.Is(err, status.Exhausted) {
		t.Fatalf("expected Exhausted, got %v", err)
	}
	p.Release(held[0])
	if _, err := p.Acquire(); err != nil {
		t.Fatalf("expected one more acquire to succeed, got %v", err)
	}
	if _, err := p.Acquire(); !errors.Is(err, status.Exhausted) {
		t.Errorf("expected Exhausted after re-acquire, got %v", err)
	}
	if p.Outstanding() != 16 {
		t.Errorf("expected 16 outstanding, got %d", p.Outstanding())
	}
}

func TestPoolReusesBuffers(t *testing.T) {
	p := buffer.NewPool(1)
	b, _ := p.Acquire()
	b.Image.Alloc(64, 4, pixel.Mono8, 0)
	p.Release(b)
	b2, _ := p.Acquire()
	if b2 != b {
		t.Error("expected the released buffer to be handed out again")
	}
}

func TestImageMatches(t *testing.T) {
	var im buffer.Image
	if im.Matches(640, 480, pixel.Mono8, 0) {
		t.Error("unallocated image should not match")
	}
	im.Alloc(640, 480, pixel.Mono8, 64)
	if !im.Matches(640, 480, pixel.Mono8, 64) {
		t.Error("image should match the layout it was allocated for")
	}
	if im.Matches(640, 480, pixel.RGB8, 64) {
		t.Error("image should not match a different pixel type")
	}
	if im.Matches(640, 480, pixel.Mono8, 0) {
		t.Error("image should not match a different chunk length")
	}
}

func TestAddChunkRespectsCapacity(t *testing.T) {
	var b buffer.Buffer
	b.Image.Alloc(64, 4, pixel.Mono8, 64)
	b.ResetChunks()
	b.SetChunkLayoutID(0x12345678)
	if err := b.AddChunk(0x4001, make([]byte, 36)); err != nil {
		t.Fatal(err)
	}
	if b.ChunksSize() != 44 {
		t.Errorf("expected 44 bytes of chunks, got %d", b.ChunksSize())
	}
	if err := b.AddChunk(0x4002, make([]byte, 36)); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter for an overflowing chunk, got %v", err)
	}
	if len(b.Chunks()) != 1 {
		t.Errorf("expected one chunk, got %d", len(b.Chunks()))
	}
}

func ExampleBuffer_AddChunk() {
	var b buffer.Buffer
	b.Image.Alloc(64, 4, pixel.Mono8, 64)
	b.SetChunkLayoutID(0x12345678)
	b.AddChunk(0x4001, []byte{1, 0, 0, 0})
	data, ok := b.Chunk(0x4001)
	fmt.Printf("0x%X %v %v\n", b.ChunkLayoutID(), ok, data)
	// Output: 0x12345678 true [1 0 0 0]
}
