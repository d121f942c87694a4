package device

import (
	"log"
	"sync"

	"github.jpl.nasa.gov/bdube/softgev/genapi"
)

// source0Sink backs the Source0Bool and Source0Int registers with plain
// values.  Reads copy the value into the register, writes copy it back.
type source0Sink struct {
	mu      sync.Mutex
	boolVal bool
	intVal  int32
}

func (s *source0Sink) PreRead(r *genapi.Register) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Address() {
	case Source0BoolAddr:
		r.SetUint32(b2u(s.boolVal))
	case Source0IntAddr:
		r.SetInt(s.intVal)
	}
	log.Printf("%s PreRead\n", r.Name())
	return nil
}

func (s *source0Sink) PostRead(r *genapi.Register) {}

func (s *source0Sink) PreWrite(r *genapi.Register) error { return nil }

func (s *source0Sink) PostWrite(r *genapi.Register) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Address() {
	case Source0BoolAddr:
		s.boolVal = r.Uint32() != 0
	case Source0IntAddr:
		s.intVal = r.Int()
	}
	log.Printf("%s PostWrite\n", r.Name())
}

func (s *source0Sink) values() (bool, int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boolVal, s.intVal
}

func addSource0Registers(m *genapi.RegisterMap, s *source0Sink) error {
	if _, err := m.AddRegister("Source0Bool", Source0BoolAddr, 4, genapi.ReadWrite, s); err != nil {
		return err
	}
	_, err := m.AddRegister("Source0Int", Source0IntAddr, 4, genapi.ReadWrite, s)
	return err
}

func createSource0Features(f *genapi.Factory, m *genapi.RegisterMap) error {
	b, err := m.ByAddress(Source0BoolAddr)
	if err != nil {
		return err
	}
	i, err := m.ByAddress(Source0IntAddr)
	if err != nil {
		return err
	}

	f.SetName("Source0OnlyBool")
	f.SetDescription("Example of source only boolean.")
	f.SetCategory(Source0Category)
	f.AddEnumEntry("Off", 0)
	f.AddEnumEntry("On", 1)
	f.CreateEnum(b)

	f.SetName("Source0OnlyInt")
	f.SetDescription("Example of source only integer")
	f.SetCategory(Source0Category)
	f.CreateInteger(i, 0, 256, 1)
	return f.Err()
}
