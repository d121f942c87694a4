package chunk_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

func ExampleRecord_Marshal() {
	t := time.Date(2020, time.March, 4, 5, 6, 7, 0, time.UTC)
	b := chunk.NewRecord(1, t).Marshal()
	fmt.Println(len(b), b[:4], string(b[4:28]), b[28:])
	// Output: 36 [1 0 0 0] Wed Mar  4 05:06:07 2020 [0 0 0 0 0 0 0 0]
}

func TestDecodeStripsPadding(t *testing.T) {
	r := chunk.Record{Count: 0xDEADBEEF, Time: "Thu Jan  1 00:00:00 1970"}
	got, err := chunk.Decode(r.Marshal())
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Errorf("expected %+v got %+v", r, got)
	}
}

func TestTimeIsTruncated(t *testing.T) {
	r := chunk.Record{Time: "0123456789012345678901234567890123456789"}
	b := r.Marshal()
	if len(b) != chunk.RecordSize {
		t.Errorf("expected %d bytes got %d", chunk.RecordSize, len(b))
	}
}

func TestAppendNeedsBothFlags(t *testing.T) {
	var a chunk.Appender
	var b buffer.Buffer
	b.Image.Alloc(64, 4, pixel.Mono8, chunk.RequiredSize)

	cases := []struct{ mode, enabled bool }{{false, false}, {true, false}, {false, true}}
	for _, c := range cases {
		a.SetModeActive(c.mode)
		a.SetEnabled(chunk.ID, c.enabled)
		if a.RequiredSize() != 0 {
			t.Errorf("mode=%v enabled=%v: expected required size 0 got %d", c.mode, c.enabled, a.RequiredSize())
		}
		a.Append(&b, 1, time.Now())
		if len(b.Chunks()) != 0 {
			t.Errorf("mode=%v enabled=%v: expected no chunks", c.mode, c.enabled)
		}
	}

	a.SetModeActive(true)
	a.SetEnabled(chunk.ID, true)
	if a.RequiredSize() != chunk.RequiredSize {
		t.Errorf("expected required size %d got %d", chunk.RequiredSize, a.RequiredSize())
	}
	if err := a.Append(&b, 3, time.Now()); err != nil {
		t.Fatal(err)
	}
	data, ok := b.Chunk(chunk.ID)
	if !ok {
		t.Fatal("expected the sample chunk to be attached")
	}
	r, _ := chunk.Decode(data)
	if r.Count != 3 || b.ChunkLayoutID() != chunk.LayoutID {
		t.Errorf("expected count 3 and layout 0x%X, got %d and 0x%X", chunk.LayoutID, r.Count, b.ChunkLayoutID())
	}
}

func TestUnknownChunkID(t *testing.T) {
	var a chunk.Appender
	if err := a.SetEnabled(0x4002, true); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter, got %v", err)
	}
	if _, _, err := a.Supported(1); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter, got %v", err)
	}
}
