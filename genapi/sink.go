package genapi

import "log"

// RegisterSink is an EventSink that traces every access and returns
// command registers to 0 after they are written, so that a command reads
// as done once it has run.
type RegisterSink struct {
	commands map[uint32]struct{}
}

// NewRegisterSink returns a sink that treats the registers at the given
// addresses as commands
func NewRegisterSink(commands ...uint32) *RegisterSink {
	s := &RegisterSink{commands: make(map[uint32]struct{})}
	for _, c := range commands {
		s.commands[c] = struct{}{}
	}
	return s
}

// AddCommand marks the register at addr as a command
func (s *RegisterSink) AddCommand(addr uint32) {
	s.commands[addr] = struct{}{}
}

// PreRead logs the access
func (s *RegisterSink) PreRead(r *Register) error {
	log.Printf("%s PreRead\n", r.Name())
	return nil
}

// PostRead logs the access
func (s *RegisterSink) PostRead(r *Register) {
	log.Printf("%s PostRead\n", r.Name())
}

// PreWrite logs the access
func (s *RegisterSink) PreWrite(r *Register) error {
	log.Printf("%s PreWrite\n", r.Name())
	return nil
}

// PostWrite resets command registers and logs the access
func (s *RegisterSink) PostWrite(r *Register) {
	if _, ok := s.commands[r.Address()]; ok {
		r.SetUint32(0)
	}
	log.Printf("%s PostWrite\n", r.Name())
}
