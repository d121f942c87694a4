package device

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

type fakeAcquirer struct {
	running       bool
	starts, stops int
}

func (f *fakeAcquirer) Start() error {
	f.running = true
	f.starts++
	return nil
}

func (f *fakeAcquirer) Stop() error {
	f.running = false
	f.stops++
	return nil
}

func (f *fakeAcquirer) Running() bool { return f.running }

func newDevice(t *testing.T, cfg Config) *Device {
	t.Helper()
	d, err := New(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestPowerOnValues(t *testing.T) {
	d := newDevice(t, Config{})
	tree := d.Tree()
	w, err := tree.GetInt("Width")
	if err != nil || w != 640 {
		t.Errorf("expected Width 640 got %d (%v)", w, err)
	}
	pf, err := tree.GetEnum("PixelFormat")
	if err != nil || pf != "Mono8" {
		t.Errorf("expected Mono8 got %s (%v)", pf, err)
	}
	ps, _ := tree.GetInt("PayloadSize")
	if ps != 640*480 {
		t.Errorf("expected PayloadSize %d got %d", 640*480, ps)
	}
	i, _ := tree.GetInt("Source0OnlyInt")
	if i != Source0IntDefault {
		t.Errorf("expected Source0OnlyInt %d got %d", Source0IntDefault, i)
	}
	b, _ := tree.GetEnum("Source0OnlyBool")
	if b != "Off" {
		t.Errorf("expected Source0OnlyBool Off got %s", b)
	}
}

func TestWidthWriteReachesSource(t *testing.T) {
	d := newDevice(t, Config{})
	ch, _ := d.Source(0)
	if err := d.Tree().SetInt("Width", 800); err != nil {
		t.Fatal(err)
	}
	if ch.Width() != 800 {
		t.Errorf("source width %d after writing 800", ch.Width())
	}
	if err := d.Tree().SetInt("Width", 63); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter got %v", err)
	}
	// straight to the register, bypassing the feature's bounds
	if err := d.Registers().WriteUint32(SourceAddr(0)+RegWidth, 801); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter got %v", err)
	}
	if ch.Width() != 800 {
		t.Errorf("a rejected write changed the width to %d", ch.Width())
	}
	if _, err := d.Tree().GetInt("OffsetX"); err != nil {
		t.Error(err)
	}
	if err := d.Tree().SetInt("OffsetX", 0); !errors.Is(err, status.AccessDenied) {
		t.Errorf("expected AccessDenied got %v", err)
	}
}

func TestChunkFeaturesGrowPayload(t *testing.T) {
	d := newDevice(t, Config{})
	tree := d.Tree()
	if err := tree.SetBool("ChunkModeActive", true); err != nil {
		t.Fatal(err)
	}
	ps, _ := tree.GetInt("PayloadSize")
	if ps != 640*480 {
		t.Errorf("payload grew with the sample chunk disabled: %d", ps)
	}
	sel, _ := tree.GetEnum("ChunkSelector")
	if sel != chunk.Name {
		t.Errorf("expected chunk selector %s got %s", chunk.Name, sel)
	}
	if err := tree.SetBool("ChunkEnable", true); err != nil {
		t.Fatal(err)
	}
	ps, _ = tree.GetInt("PayloadSize")
	if ps != 640*480+chunk.RequiredSize {
		t.Errorf("expected PayloadSize %d got %d", 640*480+chunk.RequiredSize, ps)
	}
}

func TestChunkSampleFeatures(t *testing.T) {
	d := newDevice(t, Config{})
	tree := d.Tree()
	tree.SetBool("ChunkModeActive", true)
	tree.SetBool("ChunkEnable", true)
	if ok, _ := tree.IsAvailable(ChunkCountName); ok {
		t.Error("chunk count available before any frame")
	}
	ch, _ := d.Source(0)
	ch.OnStreamingStart()
	b, err := ch.AllocBuffer()
	if err != nil {
		t.Fatal(err)
	}
	if err := ch.SubmitForCapture(b); err != nil {
		t.Fatal(err)
	}
	got, err := ch.RetrieveCaptured(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	tree.AttachChunks(got)
	n, err := tree.GetInt(ChunkCountName)
	if err != nil || n != 1 {
		t.Errorf("expected chunk count 1 got %d (%v)", n, err)
	}
	s, err := tree.GetString(ChunkTimeName)
	if err != nil || s == "" {
		t.Errorf("expected a chunk time got %q (%v)", s, err)
	}
}

func TestAcquisitionCommands(t *testing.T) {
	d := newDevice(t, Config{})
	tree := d.Tree()
	if err := tree.Execute("AcquisitionStart"); !errors.Is(err, status.NotAvailable) {
		t.Errorf("expected NotAvailable without an acquirer, got %v", err)
	}
	a := &fakeAcquirer{}
	if err := d.Bind(0, a); err != nil {
		t.Fatal(err)
	}
	if err := tree.Execute("AcquisitionStart"); err != nil {
		t.Fatal(err)
	}
	if !a.running || !d.Acquiring(0) {
		t.Error("AcquisitionStart did not start the acquirer")
	}
	done, _ := tree.IsDone("AcquisitionStart")
	if !done {
		t.Error("command register did not read back as done")
	}
	// starting twice is a no-op
	tree.Execute("AcquisitionStart")
	if a.starts != 1 {
		t.Errorf("acquirer started %d times", a.starts)
	}
	if err := tree.Execute("AcquisitionStop"); err != nil {
		t.Fatal(err)
	}
	if a.running {
		t.Error("AcquisitionStop did not stop the acquirer")
	}
	if err := d.Bind(3, a); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter binding a missing source, got %v", err)
	}
}

func TestSecondSourceIsPrefixed(t *testing.T) {
	d := newDevice(t, Config{Sources: []SourceConfig{{}, {MultiPart: true}}})
	tree := d.Tree()
	f, err := tree.Feature("Source1PixelFormat")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Entries) != 1 || f.Entries[0].Name != "Mono8" {
		t.Errorf("expected the multi-part source to offer only Mono8, got %v", f.Entries)
	}
	ps, _ := tree.GetInt("Source1PayloadSize")
	if ps != 2*640*480 {
		t.Errorf("expected two planes of payload, got %d", ps)
	}
	if _, err := tree.Feature("Source1Source0OnlyInt"); err == nil {
		t.Error("source 0 features were made for source 1")
	}
	if err := tree.SetInt("Source1Height", 100); err != nil {
		t.Fatal(err)
	}
	ch, _ := d.Source(1)
	if ch.Height() != 100 {
		t.Errorf("expected source 1 height 100 got %d", ch.Height())
	}
	ch0, _ := d.Source(0)
	if ch0.Height() != 480 {
		t.Errorf("writing source 1 changed source 0 height to %d", ch0.Height())
	}
}

func TestSourceConfigApplied(t *testing.T) {
	d := newDevice(t, Config{Sources: []SourceConfig{{Width: 128, Height: 16, PixelFormat: "rgb8", FPS: 10}}})
	ch, _ := d.Source(0)
	if ch.Width() != 128 || ch.Height() != 16 || ch.PixelType().String() != "RGB8" || ch.FrameRate() != 10 {
		t.Errorf("config not applied: %dx%d %v %g fps", ch.Width(), ch.Height(), ch.PixelType(), ch.FrameRate())
	}
	if _, err := New(Config{Sources: []SourceConfig{{Width: 65}}}, nil); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter for a bad width, got %v", err)
	}
}

func TestSource0Registers(t *testing.T) {
	d := newDevice(t, Config{})
	tree := d.Tree()
	if err := tree.SetInt("Source0OnlyInt", 200); err != nil {
		t.Fatal(err)
	}
	if err := tree.SetEnum("Source0OnlyBool", "On"); err != nil {
		t.Fatal(err)
	}
	b, i := d.Source0()
	if !b || i != 200 {
		t.Errorf("expected (true, 200) got (%v, %d)", b, i)
	}
	if err := tree.SetInt("Source0OnlyInt", 257); !errors.Is(err, status.InvalidParameter) {
		t.Errorf("expected InvalidParameter got %v", err)
	}
}

func TestUserSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usersets.yml")
	d := newDevice(t, Config{UserSetFile: path})
	tree := d.Tree()
	tree.SetInt(SampleIntegerName, 42)
	tree.SetInt("Width", 800)
	if err := d.SaveUserSet(1); err != nil {
		t.Fatal(err)
	}
	tree.SetInt(SampleIntegerName, 7)
	tree.SetInt("Width", 1024)
	if err := d.LoadUserSet(1); err != nil {
		t.Fatal(err)
	}
	i, _ := tree.GetInt(SampleIntegerName)
	w, _ := tree.GetInt("Width")
	if i != 42 || w != 800 {
		t.Errorf("expected (42, 800) after load got (%d, %d)", i, w)
	}
	if err := d.LoadUserSet(0); err != nil {
		t.Fatal(err)
	}
	w, _ = tree.GetInt("Width")
	if w != 640 {
		t.Errorf("expected the default set to restore width 640, got %d", w)
	}
	if err := d.SaveUserSet(0); !errors.Is(err, status.AccessDenied) {
		t.Errorf("expected AccessDenied saving the default set, got %v", err)
	}
	if err := d.LoadUserSet(2); !errors.Is(err, status.NoDataAvailable) {
		t.Errorf("expected NoDataAvailable loading an empty set, got %v", err)
	}

	// a second device restores the set from the file
	d2 := newDevice(t, Config{UserSetFile: path, UserSetDefault: 1})
	w, _ = d2.Tree().GetInt("Width")
	if w != 800 {
		t.Errorf("expected width 800 from the persisted set got %d", w)
	}
}

func TestUserSetNotifications(t *testing.T) {
	d := newDevice(t, Config{})
	var got []string
	bank, err := NewUserSetBank("", d.Registers(), []string{SampleIntegerName}, func(i int, s UserSetState) {
		got = append(got, s.String())
	})
	if err != nil {
		t.Fatal(err)
	}
	bank.Save(2)
	bank.Load(2)
	want := "SaveStart SaveCompleted LoadStart LoadCompleted"
	if strings.Join(got, " ") != want {
		t.Errorf("expected %s got %v", want, got)
	}
	if s := bank.Saved(); len(s) != 2 || s[0] != 0 || s[1] != 2 {
		t.Errorf("expected sets [0 2] got %v", s)
	}
}

func TestMessageChannelFiresEvents(t *testing.T) {
	d := newDevice(t, Config{EventInterval: time.Second})
	m := d.Messages()
	base := time.Date(2021, time.July, 9, 1, 2, 3, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }
	m.last = base

	var events []Event
	cancel := m.Subscribe(func(e Event) { events = append(events, e) })
	defer cancel()

	now = base.Add(2 * time.Second)
	if m.FireTestEvents() {
		t.Error("fired while closed")
	}
	m.Open()
	now = base.Add(500 * time.Millisecond)
	m.last = base
	if m.FireTestEvents() {
		t.Error("fired before the interval passed")
	}
	now = base.Add(2 * time.Second)
	if !m.FireTestEvents() {
		t.Fatal("did not fire after the interval")
	}
	if len(events) != 2 || events[0].ID != EventDataID || events[1].ID != EventID {
		t.Fatalf("expected data event then event, got %v", events)
	}
	if len(events[0].Data) != chunk.RecordSize || events[1].Data != nil {
		t.Errorf("unexpected event payloads %d, %v", len(events[0].Data), events[1].Data)
	}
	n, err := d.Tree().GetInt(EventCountName)
	if err != nil || n != 0 {
		t.Errorf("expected first event count 0 got %d (%v)", n, err)
	}
	s, _ := d.Tree().GetString(EventTimeName)
	if s != "Fri Jul  9 01:02:05 2021" {
		t.Errorf("unexpected event time %q", s)
	}
	now = base.Add(4 * time.Second)
	m.FireTestEvents()
	n, _ = d.Tree().GetInt(EventCountName)
	if n != 1 {
		t.Errorf("expected second event count 1 got %d", n)
	}
}

func TestApplicationIsExclusive(t *testing.T) {
	d := newDevice(t, Config{})
	a := &fakeAcquirer{}
	d.Bind(0, a)
	if err := d.ConnectApplication("10.0.0.1", 3956); err != nil {
		t.Fatal(err)
	}
	if !d.Messages().IsOpen() {
		t.Error("message channel closed after connect")
	}
	if err := d.ConnectApplication("10.0.0.2", 3956); !errors.Is(err, status.Busy) {
		t.Errorf("expected Busy got %v", err)
	}
	d.StartAcquisition(0)
	d.DisconnectApplication()
	if d.Messages().IsOpen() || a.running {
		t.Error("disconnect left the message channel open or the acquisition running")
	}
	if err := d.ConnectApplication("10.0.0.2", 3956); err != nil {
		t.Error(err)
	}
}

func TestResetFull(t *testing.T) {
	d := newDevice(t, Config{})
	d.Tree().SetInt(SampleIntegerName, 99)
	d.ConnectApplication("10.0.0.1", 3956)
	if err := d.ResetFull(); err != nil {
		t.Fatal(err)
	}
	i, _ := d.Tree().GetInt(SampleIntegerName)
	if i != 0 || d.Application() != "" {
		t.Errorf("reset left SampleInteger %d and application %q", i, d.Application())
	}
}

func TestConfigure(t *testing.T) {
	d := newDevice(t, Config{})
	err := d.Configure(map[string]interface{}{
		SampleIntegerName:      "12",
		"Width":                800.,
		"AcquisitionFrameRate": "15",
		"PixelFormat":          "RGB8",
		"ChunkModeActive":      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := d.Source(0)
	if ch.Width() != 800 || ch.FrameRate() != 15 || ch.PixelType().String() != "RGB8" || !ch.ChunkModeActive() {
		t.Errorf("configure not applied: %d %g %v %v", ch.Width(), ch.FrameRate(), ch.PixelType(), ch.ChunkModeActive())
	}
	if err := d.Configure(map[string]interface{}{"NoSuchFeature": 1}); err == nil {
		t.Error("expected an error for a missing feature")
	}
}

func TestDumpRegisters(t *testing.T) {
	d := newDevice(t, Config{})
	var buf bytes.Buffer
	if err := d.DumpRegisters(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"SampleInteger @ 0x10000040 4 bytes {readable} {writable}\n",
		"SampleString @ 0x10000010 16 bytes {readable} {writable}\n",
		"PayloadSize @ 0x20000014 4 bytes {readable}\n",
		"Source0Int @ 0x20000104 4 bytes {readable} {writable}\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dump is missing %q", want)
		}
	}
}
