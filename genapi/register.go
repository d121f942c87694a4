package genapi

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.jpl.nasa.gov/bdube/softgev/status"
)

// Access is the access mode of a register or feature
type Access int

const (
	// ReadWrite may be read and written
	ReadWrite Access = iota

	// ReadOnly may only be read
	ReadOnly

	// WriteOnly may only be written
	WriteOnly
)

func (a Access) String() string {
	switch a {
	case ReadWrite:
		return "RW"
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	default:
		return "NA"
	}
}

// Readable returns true if the mode allows reads
func (a Access) Readable() bool { return a != WriteOnly }

// Writable returns true if the mode allows writes
func (a Access) Writable() bool { return a != ReadOnly }

// EventSink receives the accesses made to the registers it owns.  The hooks
// run with the register map locked; they may use the raw accessors of the
// register but must not call back into the map.
//
// A non-nil error from PreRead or PreWrite rejects the access.
type EventSink interface {
	PreRead(r *Register) error
	PostRead(r *Register)
	PreWrite(r *Register) error
	PostWrite(r *Register)
}

// WriteValidator may be implemented by an EventSink to reject a write by
// the value being written, or to apply it to the state the register
// mirrors.  It runs before PreWrite; data is what will be stored at offset
// off of the register.  An error leaves the register untouched.
type WriteValidator interface {
	ValidateWrite(r *Register, off int, data []byte) error
}

// Register is a block of device memory.  Values are stored big endian.
type Register struct {
	name   string
	addr   uint32
	length int
	access Access
	sink   EventSink
	data   []byte
}

// Name is the name of the register
func (r *Register) Name() string { return r.name }

// Address is the address of the first byte of the register
func (r *Register) Address() uint32 { return r.addr }

// Length is the size of the register in bytes
func (r *Register) Length() int { return r.length }

// Access is the access mode of the register
func (r *Register) Access() Access { return r.access }

// IsReadable returns true if the register may be read
func (r *Register) IsReadable() bool { return r.access.Readable() }

// IsWritable returns true if the register may be written
func (r *Register) IsWritable() bool { return r.access.Writable() }

// Bytes returns a copy of the register contents
func (r *Register) Bytes() []byte {
	return append([]byte(nil), r.data...)
}

// SetBytes overwrites the register contents from b, which is truncated or
// zero padded to the register length
func (r *Register) SetBytes(b []byte) {
	n := copy(r.data, b)
	for i := n; i < len(r.data); i++ {
		r.data[i] = 0
	}
}

// Uint32 returns the first four bytes of the register
func (r *Register) Uint32() uint32 {
	if len(r.data) < 4 {
		return 0
	}
	return binary.BigEndian.Uint32(r.data)
}

// SetUint32 sets the first four bytes of the register
func (r *Register) SetUint32(v uint32) {
	if len(r.data) >= 4 {
		binary.BigEndian.PutUint32(r.data, v)
	}
}

// Int returns the register as a signed 32-bit integer
func (r *Register) Int() int32 { return int32(r.Uint32()) }

// SetInt sets the register from a signed 32-bit integer
func (r *Register) SetInt(v int32) { r.SetUint32(uint32(v)) }

// Float returns the register as a 32-bit float
func (r *Register) Float() float32 { return math.Float32frombits(r.Uint32()) }

// SetFloat sets the register from a 32-bit float
func (r *Register) SetFloat(v float32) { r.SetUint32(math.Float32bits(v)) }

// contains returns true if [addr, addr+n) lies within the register
func (r *Register) contains(addr uint32, n int) bool {
	return addr >= r.addr && uint64(addr)+uint64(n) <= uint64(r.addr)+uint64(r.length)
}

// RegisterMap is the register space of a device.
//
// Read and Write take the map lock themselves.  Count and ByIndex do not;
// hold the lock with Lock and Release while iterating.
type RegisterMap struct {
	mu   sync.Mutex
	regs []*Register
}

// NewRegisterMap returns an empty register map
func NewRegisterMap() *RegisterMap {
	return &RegisterMap{}
}

// AddRegister adds a register.  It is an error for registers to overlap or
// share a name.
func (m *RegisterMap) AddRegister(name string, addr uint32, length int, access Access, sink EventSink) (*Register, error) {
	if length <= 0 {
		return nil, status.Errorf(status.InvalidParameter, "register %s has length %d", name, length)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.name == name {
			return nil, status.Errorf(status.InvalidParameter, "register %s already exists", name)
		}
		if uint64(addr) < uint64(r.addr)+uint64(r.length) && uint64(r.addr) < uint64(addr)+uint64(length) {
			return nil, status.Errorf(status.InvalidParameter, "register %s at 0x%08X overlaps %s", name, addr, r.name)
		}
	}
	r := &Register{name: name, addr: addr, length: length, access: access, sink: sink, data: make([]byte, length)}
	m.regs = append(m.regs, r)
	return r, nil
}

// Lock locks the map
func (m *RegisterMap) Lock() { m.mu.Lock() }

// Release unlocks the map
func (m *RegisterMap) Release() { m.mu.Unlock() }

// Count is the number of registers
func (m *RegisterMap) Count() int { return len(m.regs) }

// ByIndex returns the i'th register in the order they were added
func (m *RegisterMap) ByIndex(i int) *Register {
	if i < 0 || i >= len(m.regs) {
		return nil
	}
	return m.regs[i]
}

// ByAddress returns the register starting at addr
func (m *RegisterMap) ByAddress(addr uint32) (*Register, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.addr == addr {
			return r, nil
		}
	}
	return nil, status.Errorf(status.InvalidParameter, "no register at 0x%08X", addr)
}

// ByName returns the register with the given name
func (m *RegisterMap) ByName(name string) (*Register, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regs {
		if r.name == name {
			return r, nil
		}
	}
	return nil, status.Errorf(status.InvalidParameter, "no register named %s", name)
}

// Sorted returns the registers ordered by address
func (m *RegisterMap) Sorted() []*Register {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*Register(nil), m.regs...)
	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

func (m *RegisterMap) find(addr uint32, n int) (*Register, error) {
	for _, r := range m.regs {
		if r.contains(addr, n) {
			return r, nil
		}
	}
	return nil, status.Errorf(status.InvalidParameter, "no register spans [0x%08X, +%d)", addr, n)
}

// Read reads n bytes at addr, which must lie within one register
func (m *RegisterMap) Read(addr uint32, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(addr, n)
	if err != nil {
		return nil, err
	}
	if !r.IsReadable() {
		return nil, status.Errorf(status.AccessDenied, "register %s is not readable", r.name)
	}
	if r.sink != nil {
		if err := r.sink.PreRead(r); err != nil {
			return nil, err
		}
	}
	off := int(addr - r.addr)
	out := append([]byte(nil), r.data[off:off+n]...)
	if r.sink != nil {
		r.sink.PostRead(r)
	}
	return out, nil
}

// Write writes data at addr, which must lie within one register.  A
// rejected write leaves the register as it was.
func (m *RegisterMap) Write(addr uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.find(addr, len(data))
	if err != nil {
		return err
	}
	if !r.IsWritable() {
		return status.Errorf(status.AccessDenied, "register %s is not writable", r.name)
	}
	off := int(addr - r.addr)
	if v, ok := r.sink.(WriteValidator); ok {
		if err := v.ValidateWrite(r, off, data); err != nil {
			return err
		}
	}
	if r.sink != nil {
		if err := r.sink.PreWrite(r); err != nil {
			return err
		}
	}
	copy(r.data[off:], data)
	if r.sink != nil {
		r.sink.PostWrite(r)
	}
	return nil
}

// ReadUint32 reads a big endian 32-bit value at addr
func (m *RegisterMap) ReadUint32(addr uint32) (uint32, error) {
	b, err := m.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// WriteUint32 writes a big endian 32-bit value at addr
func (m *RegisterMap) WriteUint32(addr uint32, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return m.Write(addr, b[:])
}
