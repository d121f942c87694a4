package device

// base of the per-source register blocks
const (
	BaseAddr = 0x20000000

	// SourceBlock is the address stride between per-source register blocks
	SourceBlock = 0x1000
)

// custom sample registers
const (
	SampleCategory = "SampleCategory"

	SampleEnumAddr        = 0x10000000
	SampleEnumName        = "SampleEnum"
	SampleEnumDescription = "Sample enum description. Selects both sample integer and sample float."
	SampleEnumToolTip     = "Sample enum."

	SampleStringAddr        = 0x10000010
	SampleStringLength      = 16
	SampleStringName        = "SampleString"
	SampleStringDescription = "Sample string description. Invalidated by sample command."
	SampleStringToolTip     = "Sample string."

	SampleBooleanAddr        = 0x10000020
	SampleBooleanName        = "SampleBoolean"
	SampleBooleanDescription = "Sample Boolean description."
	SampleBooleanToolTip     = "Sample Boolean."

	SampleCommandAddr        = 0x10000030
	SampleCommandName        = "SampleCommand"
	SampleCommandDescription = "Sample command description. Invalidates sample string."
	SampleCommandToolTip     = "Sample command."

	SampleIntegerAddr        = 0x10000040
	SampleIntegerName        = "SampleInteger"
	SampleIntegerDescription = "Sample integer defined as milliseconds. Selected by sample enum."
	SampleIntegerToolTip     = "Sample integer."
	SampleIntegerUnits       = "ms"

	SampleFloatAddr        = 0x10000050
	SampleFloatName        = "SampleFloat"
	SampleFloatDescription = "Sample float defined as inches. Selected by sample enum."
	SampleFloatToolTip     = "Sample float."
	SampleFloatUnits       = "inches"

	SamplePValueName        = "SamplePValue"
	SamplePValueDisplayName = "pValue"
	SamplePValueDescription = "Sample pValue pointing to integer sample feature."
	SamplePValueToolTip     = "Sample pValue to sample integer."
	SamplePValueUnits       = "ms"

	SampleIntSwissKnifeName        = "SampleIntSwissKnife"
	SampleIntSwissKnifeDescription = "Sample integer SwissKnife which allows reading the sample integer as nanoseconds."
	SampleIntSwissKnifeToolTip     = "Sample integer SwissKnife."
	SampleIntSwissKnifeUnits       = "ns"

	SampleFloatSwissKnifeName        = "SampleFloatSwissKnife"
	SampleFloatSwissKnifeDescription = "Sample float SwissKnife which allows reading the sample float as centimeters."
	SampleFloatSwissKnifeToolTip     = "Sample float SwissKnife."
	SampleFloatSwissKnifeUnits       = "cm"

	SampleIntConverterName        = "SampleIntConverter"
	SampleIntConverterDescription = "Integer converter linked to sample integer. Exposes the millisecond sample integer as nanosecond."
	SampleIntConverterToolTip     = "Sample integer converter."
	SampleIntConverterUnits       = "ns"

	SampleFloatConverterName        = "SampleFloatConverter"
	SampleFloatConverterDescription = "Float converter linked to sample float . Exposes the inches sample float as centimeters."
	SampleFloatConverterToolTip     = "Sample float converter."
	SampleFloatConverterUnits       = "cm"

	SampleHiddenSwissKnifeName = "SampleHiddenSwissKnife"

	SamplePIsAvailableName        = "SamplePIsAvailable"
	SamplePIsAvailableDisplayName = "pIsAvailable"
	SamplePIsAvailableDescription = "Sample pIsAvailable example: points to sample enumeration (as integer) but is only available when sample integer is greater than 5 (through sample hidden SwissKnife)"
	SamplePIsAvailableToolTip     = "Sample pIsAvailable example."
)

// source 0 only registers
const (
	Source0BoolAddr = BaseAddr + 0x100
	Source0IntAddr  = BaseAddr + 0x104

	Source0Category = "Source0Only"

	// Source0IntDefault is the power-on value of Source0OnlyInt
	Source0IntDefault = 50
)

// chunk features
const (
	ChunkCategory = "ChunkDataControl"

	ChunkCountName        = "ChunkSampleCount"
	ChunkCountDescription = "Counter keeping track of images with chunks generated."
	ChunkCountToolTip     = "Chunk count."

	ChunkTimeName        = "ChunkSampleTime"
	ChunkTimeDescription = "String representation of the time when the chunk data was generated."
	ChunkTimeToolTip     = "Chunk time."
)

// events
const (
	EventID     = 0x9006
	EventDataID = 0x9005

	EventCategory = `EventControl\EventSample`

	EventCountName        = "EventSampleCount"
	EventCountDescription = "Counter keeping track of events generated."
	EventCountToolTip     = "Event count."

	EventTimeName        = "EventSampleTime"
	EventTimeDescription = "String representation of the time when the event was generated."
	EventTimeToolTip     = "Event time."
)
