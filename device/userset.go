package device

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"

	"github.com/go-yaml/yaml"

	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// UserSetCount is the number of user sets, not counting the default set 0
const UserSetCount = 4

// UserSetState is the progress of a user set operation
type UserSetState int

const (
	// SaveStart is notified before a set is saved
	SaveStart UserSetState = iota

	// SaveCompleted is notified after a set is saved
	SaveCompleted

	// LoadStart is notified before a set is loaded
	LoadStart

	// LoadCompleted is notified after a set is loaded
	LoadCompleted
)

func (s UserSetState) String() string {
	switch s {
	case SaveStart:
		return "SaveStart"
	case SaveCompleted:
		return "SaveCompleted"
	case LoadStart:
		return "LoadStart"
	case LoadCompleted:
		return "LoadCompleted"
	}
	return "Unknown"
}

// UserSetNotify is called as user sets are saved and loaded
type UserSetNotify func(index int, state UserSetState)

// LogUserSetNotify logs the state changes
func LogUserSetNotify(index int, state UserSetState) {
	log.Printf("Userset %d : %s\n", index, state)
}

// userSetFile is the on-disk format of a bank.  Register contents are
// hex encoded, keyed by register name.
type userSetFile struct {
	Sets map[int]map[string]string `yaml:"sets"`
}

// UserSetBank saves and restores the contents of a list of registers.  Set
// 0 is the default, captured when the bank is made, and cannot be
// overwritten.  Sets 1..UserSetCount are persisted to a YAML file when
// the bank has one.
type UserSetBank struct {
	mu     sync.Mutex
	path   string
	regs   *genapi.RegisterMap
	names  []string
	sets   map[int]map[string]string
	notify UserSetNotify
}

// NewUserSetBank returns a bank over the named registers of m.  The
// registers are captured into set 0 immediately.  When path names an
// existing file, the sets it holds are restored into the bank, but not
// loaded into the registers.
func NewUserSetBank(path string, m *genapi.RegisterMap, names []string, notify UserSetNotify) (*UserSetBank, error) {
	if notify == nil {
		notify = func(int, UserSetState) {}
	}
	u := &UserSetBank{
		path:   path,
		regs:   m,
		names:  append([]string(nil), names...),
		sets:   make(map[int]map[string]string),
		notify: notify,
	}
	def, err := u.capture()
	if err != nil {
		return nil, err
	}
	u.sets[0] = def
	if path == "" {
		return u, nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return u, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()
	var uf userSetFile
	if err := yaml.NewDecoder(f).Decode(&uf); err != nil {
		return nil, fmt.Errorf("user sets %s: %w", path, err)
	}
	for i, set := range uf.Sets {
		if i < 1 || i > UserSetCount {
			continue
		}
		u.sets[i] = set
	}
	return u, nil
}

func (u *UserSetBank) capture() (map[string]string, error) {
	set := make(map[string]string, len(u.names))
	for _, n := range u.names {
		r, err := u.regs.ByName(n)
		if err != nil {
			return nil, err
		}
		b, err := u.regs.Read(r.Address(), r.Length())
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", n, err)
		}
		set[n] = hex.EncodeToString(b)
	}
	return set, nil
}

// Save captures the registers into set i
func (u *UserSetBank) Save(i int) error {
	if i == 0 {
		return status.Errorf(status.AccessDenied, "the default user set cannot be overwritten")
	}
	if i < 0 || i > UserSetCount {
		return status.Errorf(status.InvalidParameter, "user set %d not in [0, %d]", i, UserSetCount)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notify(i, SaveStart)
	set, err := u.capture()
	if err != nil {
		return err
	}
	u.sets[i] = set
	if err := u.persist(); err != nil {
		return err
	}
	u.notify(i, SaveCompleted)
	return nil
}

// Load writes set i back into the registers, in address order.  Every
// register is attempted; the first error is returned.
func (u *UserSetBank) Load(i int) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	set, ok := u.sets[i]
	if !ok {
		return status.Errorf(status.NoDataAvailable, "user set %d has not been saved", i)
	}
	u.notify(i, LoadStart)
	var regs []*genapi.Register
	for n := range set {
		r, err := u.regs.ByName(n)
		if err != nil {
			log.Printf("user set %d: %v\n", i, err)
			continue
		}
		regs = append(regs, r)
	}
	sort.Slice(regs, func(a, b int) bool { return regs[a].Address() < regs[b].Address() })
	var first error
	for _, r := range regs {
		b, err := hex.DecodeString(set[r.Name()])
		if err == nil {
			err = u.regs.Write(r.Address(), b)
		}
		if err != nil {
			err = fmt.Errorf("user set %d: %s: %w", i, r.Name(), err)
			log.Println(err)
			if first == nil {
				first = err
			}
		}
	}
	u.notify(i, LoadCompleted)
	return first
}

// Saved returns the indices of the sets that hold data, default included
func (u *UserSetBank) Saved() []int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]int, 0, len(u.sets))
	for i := range u.sets {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// persist writes the user sets to the bank's file, if it has one
func (u *UserSetBank) persist() error {
	if u.path == "" {
		return nil
	}
	uf := userSetFile{Sets: make(map[int]map[string]string)}
	for i, s := range u.sets {
		if i != 0 {
			uf.Sets[i] = s
		}
	}
	f, err := os.Create(u.path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	if err := enc.Encode(uf); err != nil {
		return err
	}
	return enc.Close()
}
