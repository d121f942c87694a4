package device

import (
	"bytes"
	"log"
	"math"

	"github.jpl.nasa.gov/bdube/softgev/chunk"
	"github.jpl.nasa.gov/bdube/softgev/genapi"
)

// EventSink receives the notifications of a device and contributes its
// custom registers and features.  The Create hooks run once, from New.
type EventSink interface {
	OnApplicationConnect(d *Device, addr string, port int)
	OnApplicationDisconnect(d *Device)
	OnControlChannelStart(d *Device, addr string, port int)
	OnControlChannelStop(d *Device)
	OnDeviceResetFull(d *Device)
	OnDeviceResetNetwork(d *Device)
	OnCreateCustomRegisters(d *Device, m *genapi.RegisterMap) error
	OnCreateCustomGenApiFeatures(d *Device, f *genapi.Factory) error
}

// SampleSink is the EventSink of the emulator.  It logs the device
// notifications and creates the sample registers and features, the chunk
// data features and the event data features.
type SampleSink struct {
	// Registers receives the accesses to the sample registers
	Registers genapi.EventSink
}

// NewSampleSink returns a SampleSink whose register sink traces every
// access and treats SampleCommand as a command
func NewSampleSink() *SampleSink {
	return &SampleSink{Registers: genapi.NewRegisterSink(SampleCommandAddr)}
}

// OnApplicationConnect logs the connection
func (s *SampleSink) OnApplicationConnect(d *Device, addr string, port int) {
	log.Printf("Application connected from %s:%d\n", addr, port)
}

// OnApplicationDisconnect logs the disconnection
func (s *SampleSink) OnApplicationDisconnect(d *Device) {
	log.Println("Application disconnected")
}

// OnControlChannelStart logs the listening address and dumps the register map
func (s *SampleSink) OnControlChannelStart(d *Device, addr string, port int) {
	log.Printf("Control channel started on %s:%d\n", addr, port)
	var buf bytes.Buffer
	if err := d.DumpRegisters(&buf); err != nil {
		log.Println(err)
		return
	}
	log.Print(buf.String())
}

// OnControlChannelStop logs the event
func (s *SampleSink) OnControlChannelStop(d *Device) {
	log.Println("Control channel stopped")
}

// OnDeviceResetFull logs the event
func (s *SampleSink) OnDeviceResetFull(d *Device) {
	log.Println("Device reset")
}

// OnDeviceResetNetwork logs the event
func (s *SampleSink) OnDeviceResetNetwork(d *Device) {
	log.Println("Network reset")
}

// OnCreateCustomRegisters adds the sample registers to m
func (s *SampleSink) OnCreateCustomRegisters(d *Device, m *genapi.RegisterMap) error {
	regs := []struct {
		name string
		addr uint32
		n    int
	}{
		{SampleIntegerName, SampleIntegerAddr, 4},
		{SampleFloatName, SampleFloatAddr, 4},
		{SampleStringName, SampleStringAddr, SampleStringLength},
		{SampleBooleanName, SampleBooleanAddr, 4},
		{SampleCommandName, SampleCommandAddr, 4},
		{SampleEnumName, SampleEnumAddr, 4},
	}
	for _, r := range regs {
		if _, err := m.AddRegister(r.name, r.addr, r.n, genapi.ReadWrite, s.Registers); err != nil {
			return err
		}
	}
	return nil
}

// OnCreateCustomGenApiFeatures creates the sample, chunk and event features
func (s *SampleSink) OnCreateCustomGenApiFeatures(d *Device, f *genapi.Factory) error {
	m := d.Registers()
	reg := func(addr uint32) *genapi.Register {
		r, err := m.ByAddress(addr)
		if err != nil {
			// Create reports the missing register through the factory
			return nil
		}
		return r
	}

	f.SetName(SampleEnumName)
	f.SetDescription(SampleEnumDescription)
	f.SetToolTip(SampleEnumToolTip)
	f.SetCategory(SampleCategory)
	f.AddEnumEntry("EnumEntry1", 0)
	f.AddEnumEntry("EnumEntry2", 1)
	f.AddEnumEntry("EnumEntry3", 2)
	f.AddSelected(SampleStringName)
	f.AddSelected(SampleBooleanName)
	f.CreateEnum(reg(SampleEnumAddr))

	f.SetName(SampleStringName)
	f.SetDescription(SampleStringDescription)
	f.SetToolTip(SampleStringToolTip)
	f.SetCategory(SampleCategory)
	f.AddInvalidator(SampleCommandName)
	f.CreateString(reg(SampleStringAddr))

	f.SetName(SampleBooleanName)
	f.SetDescription(SampleBooleanDescription)
	f.SetToolTip(SampleBooleanToolTip)
	f.SetCategory(SampleCategory)
	f.CreateBoolean(reg(SampleBooleanAddr))

	f.SetName(SampleCommandName)
	f.SetDescription(SampleCommandDescription)
	f.SetToolTip(SampleCommandToolTip)
	f.SetCategory(SampleCategory)
	f.CreateCommand(reg(SampleCommandAddr))

	f.SetName(SampleIntegerName)
	f.SetDescription(SampleIntegerDescription)
	f.SetToolTip(SampleIntegerToolTip)
	f.SetCategory(SampleCategory)
	f.SetRepresentation(genapi.Linear)
	f.SetUnit(SampleIntegerUnits)
	f.CreateInteger(reg(SampleIntegerAddr), -10000, 10000, 1)

	f.SetName(SampleFloatName)
	f.SetDescription(SampleFloatDescription)
	f.SetToolTip(SampleFloatToolTip)
	f.SetCategory(SampleCategory)
	f.SetRepresentation(genapi.PureNumber)
	f.SetUnit(SampleFloatUnits)
	f.CreateFloat(reg(SampleFloatAddr), -100, 100)

	f.SetName(SamplePValueName)
	f.SetDisplayName(SamplePValueDisplayName)
	f.SetDescription(SamplePValueDescription)
	f.SetToolTip(SamplePValueToolTip)
	f.SetCategory(SampleCategory)
	f.SetPValue(SampleIntegerName)
	f.SetUnit(SamplePValueUnits)
	f.CreateInteger(nil, 0, 0, 0)

	f.SetName(SampleIntSwissKnifeName)
	f.SetDescription(SampleIntSwissKnifeDescription)
	f.SetToolTip(SampleIntSwissKnifeToolTip)
	f.SetCategory(SampleCategory)
	f.AddVariable(SampleIntegerName)
	f.SetUnit(SampleIntSwissKnifeUnits)
	f.CreateIntSwissKnife(SampleIntegerName + " * 1000")

	f.SetName(SampleFloatSwissKnifeName)
	f.SetDescription(SampleFloatSwissKnifeDescription)
	f.SetToolTip(SampleFloatSwissKnifeToolTip)
	f.SetCategory(SampleCategory)
	f.AddVariable(SampleFloatName)
	f.SetUnit(SampleFloatSwissKnifeUnits)
	f.CreateFloatSwissKnife(SampleFloatName + " * 2.54")

	f.SetName(SampleIntConverterName)
	f.SetDescription(SampleIntConverterDescription)
	f.SetToolTip(SampleIntConverterToolTip)
	f.SetCategory(SampleCategory)
	f.SetUnit(SampleIntConverterUnits)
	f.CreateIntConverter(SampleIntegerName, "TO * 1000", "FROM / 1000")

	f.SetName(SampleFloatConverterName)
	f.SetDescription(SampleFloatConverterDescription)
	f.SetToolTip(SampleFloatConverterToolTip)
	f.SetCategory(SampleCategory)
	f.SetUnit(SampleFloatConverterUnits)
	f.CreateFloatConverter(SampleFloatName, "TO * 2.54", "FROM * 0.3937")

	// no category, so it is not shown
	f.SetName(SampleHiddenSwissKnifeName)
	f.AddVariable(SampleIntegerName)
	f.CreateIntSwissKnife(SampleIntegerName + " > 5")

	f.SetName(SamplePIsAvailableName)
	f.SetDisplayName(SamplePIsAvailableDisplayName)
	f.SetDescription(SamplePIsAvailableDescription)
	f.SetToolTip(SamplePIsAvailableToolTip)
	f.SetCategory(SampleCategory)
	f.SetPIsAvailable(SampleHiddenSwissKnifeName)
	f.SetPValue(SampleEnumName)
	f.CreateInteger(nil, 0, 0, 0)

	createChunkFeatures(f)
	createEventFeatures(f)
	return f.Err()
}

func createChunkFeatures(f *genapi.Factory) {
	f.SetName(ChunkCountName)
	f.SetDescription(ChunkCountDescription)
	f.SetToolTip(ChunkCountToolTip)
	f.SetCategory(ChunkCategory)
	f.MapChunk(chunk.ID, 0, 4, true)
	f.CreateInteger(nil, 0, math.MaxUint32, 1)

	f.SetName(ChunkTimeName)
	f.SetDescription(ChunkTimeDescription)
	f.SetToolTip(ChunkTimeToolTip)
	f.SetCategory(ChunkCategory)
	f.MapChunk(chunk.ID, 4, chunk.TimeLength, true)
	f.CreateString(nil)
}

func createEventFeatures(f *genapi.Factory) {
	f.SetName(EventCountName)
	f.SetDescription(EventCountDescription)
	f.SetToolTip(EventCountToolTip)
	f.SetCategory(EventCategory)
	f.MapEvent(EventDataID, 0, 4, true)
	f.CreateInteger(nil, 0, math.MaxUint32, 1)

	f.SetName(EventTimeName)
	f.SetDescription(EventTimeDescription)
	f.SetToolTip(EventTimeToolTip)
	f.SetCategory(EventCategory)
	f.MapEvent(EventDataID, 4, chunk.TimeLength, true)
	f.CreateString(nil)
}
