// Package device composes the streaming sources, the register map and the
// feature tree of the emulated camera.
//
// A Device owns one source per configured streaming channel.  Each source
// gets a block of standard registers (Width, PixelFormat, AcquisitionStart,
// ...) at SourceAddr(id), source 0 additionally gets the Source0 registers,
// and an EventSink contributes the custom registers and features.  The
// transports (control channel, stream channel, HTTP) are built on top of a
// Device and bind an Acquirer to each source.
package device

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/pixel"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// SourceConfig describes one streaming source
type SourceConfig struct {
	// MultiPart selects the two plane 3D source instead of the image source
	MultiPart bool

	// Width, Height, PixelFormat and FPS override the defaults of the
	// source when not zero
	Width       int
	Height      int
	PixelFormat string
	FPS         float64
}

// Config holds the construction parameters of a Device
type Config struct {
	// Sources lists the streaming sources; an empty list makes one image source
	Sources []SourceConfig

	// UserSetFile is where user sets are persisted; empty keeps them in memory
	UserSetFile string

	// UserSetDefault is the user set loaded at startup, 0 for power-on values
	UserSetDefault int

	// EventInterval is the period of the test events, DefaultEventInterval if zero
	EventInterval time.Duration
}

// Acquirer runs the acquisition loop of one source
type Acquirer interface {
	Start() error
	Stop() error
	Running() bool
}

// Device is an emulated camera
type Device struct {
	sources  source.Registry
	regs     *genapi.RegisterMap
	tree     *genapi.Tree
	sink     EventSink
	messages *MessageChannel
	userSets *UserSetBank
	source0  *source0Sink

	mu        sync.Mutex
	acquirers map[int]Acquirer
	app       string
}

// New creates a device.  sink may be nil, in which case a SampleSink is used.
func New(cfg Config, sink EventSink) (*Device, error) {
	if sink == nil {
		sink = NewSampleSink()
	}
	d := &Device{
		sink:      sink,
		acquirers: make(map[int]Acquirer),
		source0:   &source0Sink{intVal: Source0IntDefault},
	}
	srcs := cfg.Sources
	if len(srcs) == 0 {
		srcs = []SourceConfig{{}}
	}
	for i, sc := range srcs {
		if err := newSource(&d.sources, sc); err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
	}

	d.regs = genapi.NewRegisterMap()
	for _, ch := range d.sources.Channels() {
		if err := addSourceRegisters(d, d.regs, ch); err != nil {
			return nil, err
		}
	}
	if err := addSource0Registers(d.regs, d.source0); err != nil {
		return nil, err
	}
	if err := sink.OnCreateCustomRegisters(d, d.regs); err != nil {
		return nil, fmt.Errorf("custom registers: %w", err)
	}

	d.tree = genapi.NewTree(d.regs)
	f := genapi.NewFactory(d.tree)
	for _, ch := range d.sources.Channels() {
		if err := createSourceFeatures(f, d.regs, ch); err != nil {
			return nil, err
		}
	}
	if err := createSource0Features(f, d.regs); err != nil {
		return nil, err
	}
	if err := sink.OnCreateCustomGenApiFeatures(d, f); err != nil {
		return nil, fmt.Errorf("custom features: %w", err)
	}

	d.messages = NewMessageChannel(d.tree, cfg.EventInterval)
	bank, err := NewUserSetBank(cfg.UserSetFile, d.regs, d.persistentRegisters(), LogUserSetNotify)
	if err != nil {
		return nil, err
	}
	d.userSets = bank
	if cfg.UserSetDefault != 0 {
		if err := d.LoadUserSet(cfg.UserSetDefault); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newSource(reg *source.Registry, sc SourceConfig) error {
	var ch source.Channel
	if sc.MultiPart {
		mp := source.NewMultiPartPipeline(reg)
		mp.SetMultiPartAllowed(true)
		ch = mp
	} else {
		ch = source.NewPipeline(reg)
	}
	if sc.Width != 0 {
		if err := ch.SetWidth(sc.Width); err != nil {
			return err
		}
	}
	if sc.Height != 0 {
		if err := ch.SetHeight(sc.Height); err != nil {
			return err
		}
	}
	if sc.PixelFormat != "" {
		pt, err := pixel.Parse(sc.PixelFormat)
		if err != nil {
			return err
		}
		if err := ch.SetPixelType(pt); err != nil {
			return err
		}
	}
	if sc.FPS != 0 {
		if err := ch.SetFrameRate(sc.FPS); err != nil {
			return err
		}
	}
	return nil
}

// persistentRegisters lists the registers behind writable, non-command
// features, in address order
func (d *Device) persistentRegisters() []string {
	seen := make(map[uint32]bool)
	var regs []*genapi.Register
	for _, f := range d.tree.Features() {
		s, ok := f.Source.(genapi.RegisterSource)
		if !ok || f.Kind == genapi.Command || seen[s.Address] {
			continue
		}
		r, err := d.regs.ByAddress(s.Address)
		if err != nil || !r.IsWritable() || !r.IsReadable() {
			continue
		}
		seen[s.Address] = true
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Address() < regs[j].Address() })
	names := make([]string, len(regs))
	for i, r := range regs {
		names[i] = r.Name()
	}
	return names
}

// Sources returns the streaming sources in channel order
func (d *Device) Sources() []source.Channel {
	return d.sources.Channels()
}

// Source returns the source of a streaming channel
func (d *Device) Source(id int) (source.Channel, error) {
	return d.sources.Channel(id)
}

// Registers returns the register map
func (d *Device) Registers() *genapi.RegisterMap {
	return d.regs
}

// Tree returns the feature tree
func (d *Device) Tree() *genapi.Tree {
	return d.tree
}

// Messages returns the message channel
func (d *Device) Messages() *MessageChannel {
	return d.messages
}

// UserSets returns the user set bank
func (d *Device) UserSets() *UserSetBank {
	return d.userSets
}

// Source0 returns the values behind the Source0Bool and Source0Int registers
func (d *Device) Source0() (bool, int32) {
	return d.source0.values()
}

// Bind attaches the acquisition loop of a source, replacing any previous one
func (d *Device) Bind(id int, a Acquirer) error {
	if _, err := d.sources.Channel(id); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquirers[id] = a
	return nil
}

func (d *Device) acquirer(id int) (Acquirer, error) {
	if _, err := d.sources.Channel(id); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.acquirers[id]
	if !ok {
		return nil, status.Errorf(status.NotAvailable, "no acquisition loop is bound to source %d", id)
	}
	return a, nil
}

// StartAcquisition starts the acquisition loop of a source
func (d *Device) StartAcquisition(id int) error {
	a, err := d.acquirer(id)
	if err != nil {
		return err
	}
	if a.Running() {
		return nil
	}
	return a.Start()
}

// StopAcquisition stops the acquisition loop of a source
func (d *Device) StopAcquisition(id int) error {
	a, err := d.acquirer(id)
	if err != nil {
		return err
	}
	if !a.Running() {
		return nil
	}
	return a.Stop()
}

// Acquiring returns true if the acquisition loop of a source is running
func (d *Device) Acquiring(id int) bool {
	a, err := d.acquirer(id)
	return err == nil && a.Running()
}

func (d *Device) stopAll() {
	for _, ch := range d.sources.Channels() {
		if err := d.StopAcquisition(ch.ID()); err != nil && !isUnbound(err) {
			log.Printf("stop source %d: %v\n", ch.ID(), err)
		}
	}
}

func isUnbound(err error) bool {
	c, ok := status.Of(err)
	return ok && c == status.NotAvailable
}

// ConnectApplication gives control of the device to the application at
// addr:port and opens the message channel.  A second application is
// refused with status.Busy until the first disconnects.
func (d *Device) ConnectApplication(addr string, port int) error {
	id := fmt.Sprintf("%s:%d", addr, port)
	d.mu.Lock()
	if d.app != "" && d.app != id {
		cur := d.app
		d.mu.Unlock()
		return status.Errorf(status.Busy, "device is controlled by %s", cur)
	}
	d.app = id
	d.mu.Unlock()
	d.messages.Open()
	d.sink.OnApplicationConnect(d, addr, port)
	return nil
}

// DisconnectApplication releases control of the device, closes the message
// channel and stops every acquisition
func (d *Device) DisconnectApplication() {
	d.mu.Lock()
	had := d.app != ""
	d.app = ""
	d.mu.Unlock()
	if !had {
		return
	}
	d.messages.Close()
	d.stopAll()
	d.sink.OnApplicationDisconnect(d)
}

// Application returns the address of the controlling application, or the
// empty string
func (d *Device) Application() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.app
}

// ControlChannelStarted notifies the sink that a control channel listens on addr:port
func (d *Device) ControlChannelStarted(addr string, port int) {
	d.sink.OnControlChannelStart(d, addr, port)
}

// ControlChannelStopped notifies the sink that the control channel stopped
func (d *Device) ControlChannelStopped() {
	d.sink.OnControlChannelStop(d)
}

// ResetFull returns the device to its power-on state: acquisitions are
// stopped, the application is disconnected and the default user set is
// loaded
func (d *Device) ResetFull() error {
	d.DisconnectApplication()
	d.stopAll()
	err := d.LoadUserSet(0)
	d.sink.OnDeviceResetFull(d)
	return err
}

// ResetNetwork drops the controlling application
func (d *Device) ResetNetwork() {
	d.DisconnectApplication()
	d.sink.OnDeviceResetNetwork(d)
}

// SaveUserSet saves the current configuration into user set i
func (d *Device) SaveUserSet(i int) error {
	return d.userSets.Save(i)
}

// LoadUserSet restores user set i
func (d *Device) LoadUserSet(i int) error {
	err := d.userSets.Load(i)
	d.tree.InvalidateAll()
	return err
}

// Configure sets a group of features, in name order.  Values are anything
// genapi.Tree.SetValue accepts.
func (d *Device) Configure(args map[string]interface{}) error {
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := d.tree.SetValue(n, args[n]); err != nil {
			return fmt.Errorf("configure %s: %w", n, err)
		}
	}
	return nil
}

// DumpRegisters writes one line per register to w, with the map locked
func (d *Device) DumpRegisters(w io.Writer) error {
	d.regs.Lock()
	defer d.regs.Release()
	for i := 0; i < d.regs.Count(); i++ {
		r := d.regs.ByIndex(i)
		line := fmt.Sprintf("%s @ 0x%08X %d bytes", r.Name(), r.Address(), r.Length())
		if r.IsReadable() {
			line += " {readable}"
		}
		if r.IsWritable() {
			line += " {writable}"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
