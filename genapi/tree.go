package genapi

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.jpl.nasa.gov/bdube/softgev/buffer"
	"github.jpl.nasa.gov/bdube/softgev/genapi/expr"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// maxDepth bounds how far links and formulas are followed
const maxDepth = 16

// Tree is a feature tree over a register map.  Register backed values are
// cached according to each feature's Cache policy; the cache of a feature is
// discarded when one of its invalidators changes or when a selector that
// selects it is written.
type Tree struct {
	mu       sync.Mutex
	regs     *RegisterMap
	features map[string]*Feature
	order    []string
	cache    map[string][]byte

	// data guards chunks and events, which are attached by the streaming
	// side without taking mu
	data   sync.Mutex
	chunks map[uint32][]byte
	events map[uint32][]byte
}

// NewTree returns an empty tree over regs
func NewTree(regs *RegisterMap) *Tree {
	return &Tree{
		regs:     regs,
		features: make(map[string]*Feature),
		cache:    make(map[string][]byte),
		chunks:   make(map[uint32][]byte),
		events:   make(map[uint32][]byte),
	}
}

// Registers returns the register map of the tree
func (t *Tree) Registers() *RegisterMap {
	return t.regs
}

// Add adds a feature to the tree.  Features that are derived from others
// are read-only unless they are links or converters, which take the access
// of the feature they refer to.
func (t *Tree) Add(f Feature) error {
	if f.Name == "" {
		return status.Errorf(status.InvalidParameter, "feature has no name")
	}
	if f.Source == nil {
		return status.Errorf(status.InvalidParameter, "feature %s has no source", f.Name)
	}
	if f.Kind == Integer && f.Inc == 0 {
		f.Inc = 1
	}
	switch s := f.Source.(type) {
	case RegisterSource:
		t.regs.Lock()
		r, err := t.regs.find(s.Address, s.Length)
		t.regs.Release()
		if err != nil {
			return fmt.Errorf("feature %s: %w", f.Name, err)
		}
		switch {
		case !r.IsWritable():
			f.Access = ReadOnly
		case !r.IsReadable():
			f.Access = WriteOnly
		}
	case SwissKnifeSource, ChunkSource, EventSource:
		f.Access = ReadOnly
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.features[f.Name]; ok {
		return status.Errorf(status.InvalidParameter, "feature %s already exists", f.Name)
	}
	t.features[f.Name] = &f
	t.order = append(t.order, f.Name)
	return nil
}

// Feature returns the description of a feature
func (t *Tree) Feature(name string) (Feature, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.features[name]
	if !ok {
		return Feature{}, ErrFeatureNotFound{Feature: name}
	}
	return *f, nil
}

// Features returns the descriptions of every feature, in the order they were added
func (t *Tree) Features() []Feature {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Feature, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, *t.features[n])
	}
	return out
}

// Invalidate discards the cached value of a feature
func (t *Tree) Invalidate(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, name)
}

// InvalidateAll discards every cached value
func (t *Tree) InvalidateAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache = make(map[string][]byte)
}

// Cached returns true if the feature has a cached value
func (t *Tree) Cached(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.cache[name]
	return ok
}

// AttachChunks makes the chunks of b the data chunk features read from
func (t *Tree) AttachChunks(b *buffer.Buffer) {
	t.data.Lock()
	defer t.data.Unlock()
	t.chunks = make(map[uint32][]byte)
	for _, c := range b.Chunks() {
		t.chunks[c.ID] = append([]byte(nil), c.Data...)
	}
}

// AttachEvent makes data the event data for id
func (t *Tree) AttachEvent(id uint32, data []byte) {
	t.data.Lock()
	defer t.data.Unlock()
	t.events[id] = append([]byte(nil), data...)
}

// IsAvailable returns true if the feature may currently be accessed
func (t *Tree) IsAvailable(name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.get(name, 0)
	if err != nil {
		return false, err
	}
	return t.available(f, 0)
}

// GetInt returns the value of an Integer feature
func (t *Tree) GetInt(name string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.readable(name, Integer)
	if err != nil {
		return 0, err
	}
	return t.intValue(f, 0)
}

// SetInt sets the value of an Integer feature
func (t *Tree) SetInt(name string, v int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, Integer, 0)
	if err != nil {
		return err
	}
	return t.setInt(f, v, 0)
}

// GetFloat returns the value of a Float feature
func (t *Tree) GetFloat(name string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.readable(name, Float)
	if err != nil {
		return 0, err
	}
	return t.floatValue(f, 0)
}

// SetFloat sets the value of a Float feature
func (t *Tree) SetFloat(name string, v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, Float, 0)
	if err != nil {
		return err
	}
	return t.setFloat(f, v, 0)
}

// GetString returns the value of a String feature
func (t *Tree) GetString(name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.readable(name, String)
	if err != nil {
		return "", err
	}
	return t.stringValue(f, 0)
}

// SetString sets the value of a String feature
func (t *Tree) SetString(name string, v string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, String, 0)
	if err != nil {
		return err
	}
	return t.setString(f, v, 0)
}

// GetBool returns the value of a Boolean feature
func (t *Tree) GetBool(name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.readable(name, Boolean)
	if err != nil {
		return false, err
	}
	v, err := t.numeric(f, 0)
	return v != 0, err
}

// SetBool sets the value of a Boolean feature
func (t *Tree) SetBool(name string, v bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, Boolean, 0)
	if err != nil {
		return err
	}
	return t.setNumeric(f, b2f(v), 0)
}

// GetEnum returns the name of the current entry of an Enum feature
func (t *Tree) GetEnum(name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.readable(name, Enum)
	if err != nil {
		return "", err
	}
	v, err := t.numeric(f, 0)
	if err != nil {
		return "", err
	}
	e, ok := f.entryByValue(int64(v))
	if !ok {
		return "", status.Errorf(status.InvalidParameter, "enumeration %s holds %d, which is not an entry", name, int64(v))
	}
	return e.Name, nil
}

// SetEnum selects an entry of an Enum feature by name
func (t *Tree) SetEnum(name string, entry string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, Enum, 0)
	if err != nil {
		return err
	}
	e, ok := f.entry(entry)
	if !ok {
		return status.Errorf(status.InvalidParameter, "enumeration %s has no entry %s", name, entry)
	}
	return t.setNumeric(f, float64(e.Value), 0)
}

// Execute runs a Command feature
func (t *Tree) Execute(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.writable(name, Command, 0)
	if err != nil {
		return err
	}
	for f.Kind == Command {
		switch s := f.Source.(type) {
		case RegisterSource:
			if err := t.regs.WriteUint32(s.Address, 1); err != nil {
				return err
			}
			t.changed(f.Name)
			return nil
		case LinkSource:
			t.changed(f.Name)
			if f, err = t.get(s.Feature, 1); err != nil {
				return err
			}
		default:
			return status.Errorf(status.NotSupported, "command %s cannot be executed", f.Name)
		}
	}
	return ErrWrongKind{Feature: f.Name, Kind: f.Kind, Want: Command}
}

// IsDone returns true once a Command feature has finished
func (t *Tree) IsDone(name string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, err := t.get(name, 0)
	if err != nil {
		return false, err
	}
	if f.Kind != Command {
		return false, ErrWrongKind{Feature: name, Kind: f.Kind, Want: Command}
	}
	v, err := t.numeric(f, 0)
	return v == 0, err
}

// Value returns the value of any feature as a Go value: int64, float64,
// string, bool, the entry name of an Enum or the done state of a Command
func (t *Tree) Value(name string) (interface{}, error) {
	t.mu.Lock()
	kind := Kind(-1)
	if f, ok := t.features[name]; ok {
		kind = f.Kind
	}
	t.mu.Unlock()
	switch kind {
	case Integer:
		return t.GetInt(name)
	case Float:
		return t.GetFloat(name)
	case String:
		return t.GetString(name)
	case Boolean:
		return t.GetBool(name)
	case Enum:
		return t.GetEnum(name)
	case Command:
		return t.IsDone(name)
	}
	return nil, ErrFeatureNotFound{Feature: name}
}

// SetValue sets any feature from a Go value.  Strings are parsed according
// to the kind of the feature, numbers are converted, and a Command is
// executed when v is true.
func (t *Tree) SetValue(name string, v interface{}) error {
	f, err := t.Feature(name)
	if err != nil {
		return err
	}
	bad := func() error {
		return status.Errorf(status.InvalidParameter, "cannot set %s %s from %T %v", f.Kind, name, v, v)
	}
	switch f.Kind {
	case Integer:
		switch x := v.(type) {
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(x), 0, 64)
			if err != nil {
				return bad()
			}
			return t.SetInt(name, i)
		case float64:
			return t.SetInt(name, int64(x))
		case int:
			return t.SetInt(name, int64(x))
		case int64:
			return t.SetInt(name, x)
		}
	case Float:
		switch x := v.(type) {
		case string:
			fl, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return bad()
			}
			return t.SetFloat(name, fl)
		case float64:
			return t.SetFloat(name, x)
		case int:
			return t.SetFloat(name, float64(x))
		}
	case String:
		if s, ok := v.(string); ok {
			return t.SetString(name, s)
		}
	case Boolean:
		switch x := v.(type) {
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return bad()
			}
			return t.SetBool(name, b)
		case bool:
			return t.SetBool(name, x)
		}
	case Enum:
		if s, ok := v.(string); ok {
			return t.SetEnum(name, s)
		}
	case Command:
		switch x := v.(type) {
		case bool:
			if x {
				return t.Execute(name)
			}
			return nil
		case string:
			return t.Execute(name)
		}
	}
	return bad()
}

// Info is a snapshot of a feature and its current value
type Info struct {
	Name           string      `json:"name"`
	DisplayName    string      `json:"displayName,omitempty"`
	Kind           string      `json:"kind"`
	Category       string      `json:"category,omitempty"`
	Description    string      `json:"description,omitempty"`
	ToolTip        string      `json:"toolTip,omitempty"`
	Unit           string      `json:"unit,omitempty"`
	Representation string      `json:"representation,omitempty"`
	Access         string      `json:"access"`
	Available      bool        `json:"available"`
	Min            interface{} `json:"min,omitempty"`
	Max            interface{} `json:"max,omitempty"`
	Inc            interface{} `json:"inc,omitempty"`
	Entries        []EnumEntry `json:"entries,omitempty"`
	Value          interface{} `json:"value,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Info returns a snapshot of a feature.  A value that cannot be read is
// reported in the Error field rather than failing the call.
func (t *Tree) Info(name string) (Info, error) {
	f, err := t.Feature(name)
	if err != nil {
		return Info{}, err
	}
	avail, _ := t.IsAvailable(name)
	t.mu.Lock()
	acc := t.access(&f, 0)
	t.mu.Unlock()
	i := Info{
		Name:        f.Name,
		DisplayName: f.DisplayName,
		Kind:        f.Kind.String(),
		Category:    f.Category,
		Description: f.Description,
		ToolTip:     f.ToolTip,
		Unit:        f.Unit,
		Access:      acc.String(),
		Available:   avail,
		Entries:     f.Entries,
	}
	switch f.Kind {
	case Integer:
		i.Representation = f.Representation.String()
		if f.Min != 0 || f.Max != 0 {
			i.Min, i.Max, i.Inc = f.Min, f.Max, f.Inc
		}
	case Float:
		i.Representation = f.Representation.String()
		if f.FMin != 0 || f.FMax != 0 {
			i.Min, i.Max = f.FMin, f.FMax
		}
	}
	if avail && acc.Readable() {
		v, err := t.Value(name)
		if err != nil {
			i.Error = err.Error()
		} else {
			i.Value = v
		}
	}
	return i, nil
}

// --- internals, called with t.mu held ---

func (t *Tree) get(name string, depth int) (*Feature, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("genapi: feature %s: references nested deeper than %d", name, maxDepth)
	}
	f, ok := t.features[name]
	if !ok {
		return nil, ErrFeatureNotFound{Feature: name}
	}
	return f, nil
}

func (t *Tree) readable(name string, want Kind) (*Feature, error) {
	f, err := t.get(name, 0)
	if err != nil {
		return nil, err
	}
	if f.Kind != want {
		return nil, ErrWrongKind{Feature: name, Kind: f.Kind, Want: want}
	}
	if !t.access(f, 0).Readable() {
		return nil, status.Errorf(status.AccessDenied, "feature %s is not readable", name)
	}
	if err := t.mustBeAvailable(f, 0); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *Tree) writable(name string, want Kind, depth int) (*Feature, error) {
	f, err := t.get(name, depth)
	if err != nil {
		return nil, err
	}
	if f.Kind != want {
		return nil, ErrWrongKind{Feature: name, Kind: f.Kind, Want: want}
	}
	if !t.access(f, depth).Writable() {
		return nil, status.Errorf(status.AccessDenied, "feature %s is not writable", name)
	}
	if err := t.mustBeAvailable(f, depth); err != nil {
		return nil, err
	}
	return f, nil
}

func (t *Tree) access(f *Feature, depth int) Access {
	var target string
	switch s := f.Source.(type) {
	case LinkSource:
		target = s.Feature
	case ConverterSource:
		target = s.Feature
	default:
		return f.Access
	}
	g, err := t.get(target, depth+1)
	if err != nil {
		return f.Access
	}
	a := t.access(g, depth+1)
	if f.Access == ReadOnly && a.Readable() {
		return ReadOnly
	}
	return a
}

func (t *Tree) available(f *Feature, depth int) (bool, error) {
	switch s := f.Source.(type) {
	case ChunkSource:
		t.data.Lock()
		_, ok := t.chunks[s.ChunkID]
		t.data.Unlock()
		if !ok {
			return false, nil
		}
	case EventSource:
		t.data.Lock()
		_, ok := t.events[s.EventID]
		t.data.Unlock()
		if !ok {
			return false, nil
		}
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return false, err
		}
		if ok, err := t.available(g, depth+1); !ok || err != nil {
			return ok, err
		}
	case ConverterSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return false, err
		}
		if ok, err := t.available(g, depth+1); !ok || err != nil {
			return ok, err
		}
	}
	if f.IsAvailable == "" {
		return true, nil
	}
	g, err := t.get(f.IsAvailable, depth+1)
	if err != nil {
		return false, err
	}
	v, err := t.numeric(g, depth+1)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

func (t *Tree) mustBeAvailable(f *Feature, depth int) error {
	ok, err := t.available(f, depth)
	if err != nil {
		return err
	}
	if !ok {
		return status.Errorf(status.NotAvailable, "feature %s is not available", f.Name)
	}
	return nil
}

// changed discards the cached values that depend on a feature
func (t *Tree) changed(name string) {
	if f, ok := t.features[name]; ok {
		for _, s := range f.Selected {
			delete(t.cache, s)
		}
	}
	for _, g := range t.features {
		for _, inv := range g.Invalidators {
			if inv == name {
				delete(t.cache, g.Name)
			}
		}
	}
}

func cachable(f *Feature) bool {
	return f.Cache == WriteThrough && f.Kind != Command
}

func (t *Tree) readRegister(f *Feature, s RegisterSource) ([]byte, error) {
	if cachable(f) {
		if b, ok := t.cache[f.Name]; ok {
			return b, nil
		}
	}
	b, err := t.regs.Read(s.Address, s.Length)
	if err != nil {
		return nil, err
	}
	if cachable(f) {
		t.cache[f.Name] = b
	}
	return b, nil
}

func (t *Tree) writeRegister(f *Feature, s RegisterSource, b []byte) error {
	if err := t.regs.Write(s.Address, b); err != nil {
		return err
	}
	if cachable(f) {
		t.cache[f.Name] = b
	}
	t.changed(f.Name)
	return nil
}

func (t *Tree) field(f *Feature) ([]byte, bool, error) {
	var (
		data   []byte
		ok     bool
		off, n int
		little bool
	)
	t.data.Lock()
	defer t.data.Unlock()
	switch s := f.Source.(type) {
	case ChunkSource:
		data, ok = t.chunks[s.ChunkID]
		off, n, little = s.Offset, s.Length, s.LittleEndian
	case EventSource:
		data, ok = t.events[s.EventID]
		off, n, little = s.Offset, s.Length, s.LittleEndian
	}
	if !ok {
		return nil, false, status.Errorf(status.NotAvailable, "feature %s has no data attached", f.Name)
	}
	if off+n > len(data) {
		return nil, false, status.Errorf(status.InvalidParameter, "feature %s maps [%d, %d) of %d bytes", f.Name, off, off+n, len(data))
	}
	return data[off : off+n], little, nil
}

func decodeUint(b []byte, little bool) uint64 {
	var v uint64
	if little {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func encodeInt(v int64, n int) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// signExtend interprets the low n bytes of v as a two's complement number
func signExtend(v uint64, n int) int64 {
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift
}

func trimNul(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

type treeVars struct {
	t     *Tree
	depth int
	bound expr.Map
}

func (v treeVars) Lookup(name string) (float64, error) {
	if x, ok := v.bound[name]; ok {
		return x, nil
	}
	f, err := v.t.get(name, v.depth+1)
	if err != nil {
		return 0, err
	}
	return v.t.numeric(f, v.depth+1)
}

func (t *Tree) eval(e *expr.Expr, depth int, bound expr.Map) (float64, error) {
	return e.Eval(treeVars{t: t, depth: depth, bound: bound})
}

// numeric returns the value of any non-string feature as a number
func (t *Tree) numeric(f *Feature, depth int) (float64, error) {
	switch f.Kind {
	case Integer:
		v, err := t.intValue(f, depth)
		return float64(v), err
	case Float:
		return t.floatValue(f, depth)
	case Boolean, Enum, Command:
		switch s := f.Source.(type) {
		case RegisterSource:
			var (
				b   []byte
				err error
			)
			if f.Kind == Command {
				b, err = t.regs.Read(s.Address, s.Length)
			} else {
				b, err = t.readRegister(f, s)
			}
			if err != nil {
				return 0, err
			}
			return float64(decodeUint(b, false)), nil
		case LinkSource:
			g, err := t.get(s.Feature, depth+1)
			if err != nil {
				return 0, err
			}
			return t.numeric(g, depth+1)
		case SwissKnifeSource:
			return t.eval(s.Formula, depth, nil)
		}
	}
	return 0, status.Errorf(status.InvalidParameter, "feature %s (%s) has no numeric value", f.Name, f.Kind)
}

func (t *Tree) intValue(f *Feature, depth int) (int64, error) {
	switch s := f.Source.(type) {
	case RegisterSource:
		b, err := t.readRegister(f, s)
		if err != nil {
			return 0, err
		}
		return signExtend(decodeUint(b, false), len(b)), nil
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return 0, err
		}
		v, err := t.numeric(g, depth+1)
		return int64(v), err
	case SwissKnifeSource:
		v, err := t.eval(s.Formula, depth, nil)
		return int64(math.Trunc(v)), err
	case ConverterSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return 0, err
		}
		to, err := t.numeric(g, depth+1)
		if err != nil {
			return 0, err
		}
		v, err := t.eval(s.To, depth, expr.Map{"TO": to})
		return int64(math.Trunc(v)), err
	case ChunkSource, EventSource:
		b, little, err := t.field(f)
		if err != nil {
			return 0, err
		}
		return int64(decodeUint(b, little)), nil
	}
	return 0, status.Errorf(status.NotSupported, "integer %s has no readable source", f.Name)
}

func (t *Tree) floatValue(f *Feature, depth int) (float64, error) {
	switch s := f.Source.(type) {
	case RegisterSource:
		b, err := t.readRegister(f, s)
		if err != nil {
			return 0, err
		}
		switch len(b) {
		case 4:
			return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
		case 8:
			return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
		}
		return 0, status.Errorf(status.InvalidParameter, "float %s is backed by %d bytes", f.Name, len(b))
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return 0, err
		}
		return t.numeric(g, depth+1)
	case SwissKnifeSource:
		return t.eval(s.Formula, depth, nil)
	case ConverterSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return 0, err
		}
		to, err := t.numeric(g, depth+1)
		if err != nil {
			return 0, err
		}
		return t.eval(s.To, depth, expr.Map{"TO": to})
	}
	return 0, status.Errorf(status.NotSupported, "float %s has no readable source", f.Name)
}

func (t *Tree) stringValue(f *Feature, depth int) (string, error) {
	switch s := f.Source.(type) {
	case RegisterSource:
		b, err := t.readRegister(f, s)
		if err != nil {
			return "", err
		}
		return trimNul(b), nil
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return "", err
		}
		if g.Kind != String {
			return "", ErrWrongKind{Feature: g.Name, Kind: g.Kind, Want: String}
		}
		return t.stringValue(g, depth+1)
	case ChunkSource, EventSource:
		b, _, err := t.field(f)
		if err != nil {
			return "", err
		}
		return trimNul(b), nil
	}
	return "", status.Errorf(status.NotSupported, "string %s has no readable source", f.Name)
}

// setNumeric writes a number to any non-string feature
func (t *Tree) setNumeric(f *Feature, x float64, depth int) error {
	if !t.access(f, depth).Writable() {
		return status.Errorf(status.AccessDenied, "feature %s is not writable", f.Name)
	}
	if err := t.mustBeAvailable(f, depth); err != nil {
		return err
	}
	switch f.Kind {
	case Integer:
		return t.setInt(f, int64(math.Trunc(x)), depth)
	case Float:
		return t.setFloat(f, x, depth)
	case Boolean, Enum:
		v := int64(x)
		if f.Kind == Boolean && x != 0 {
			v = 1
		}
		if f.Kind == Enum {
			if _, ok := f.entryByValue(v); !ok {
				return status.Errorf(status.InvalidParameter, "enumeration %s has no entry with value %d", f.Name, v)
			}
		}
		switch s := f.Source.(type) {
		case RegisterSource:
			return t.writeRegister(f, s, encodeInt(v, s.Length))
		case LinkSource:
			g, err := t.get(s.Feature, depth+1)
			if err != nil {
				return err
			}
			if err := t.setNumeric(g, float64(v), depth+1); err != nil {
				return err
			}
			t.changed(f.Name)
			return nil
		}
	}
	return status.Errorf(status.NotSupported, "feature %s (%s) cannot be written as a number", f.Name, f.Kind)
}

func (t *Tree) setInt(f *Feature, v int64, depth int) error {
	if f.Min != 0 || f.Max != 0 {
		if v < f.Min || v > f.Max || (v-f.Min)%f.Inc != 0 {
			return status.Errorf(status.InvalidParameter, "%s: %d not in [%d, %d] step %d", f.Name, v, f.Min, f.Max, f.Inc)
		}
	}
	switch s := f.Source.(type) {
	case RegisterSource:
		if s.Length < 8 {
			lim := int64(1) << uint(8*s.Length-1)
			if v < -lim || v >= lim {
				return status.Errorf(status.InvalidParameter, "%s: %d does not fit in %d bytes", f.Name, v, s.Length)
			}
		}
		return t.writeRegister(f, s, encodeInt(v, s.Length))
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return err
		}
		if err := t.setNumeric(g, float64(v), depth+1); err != nil {
			return err
		}
		t.changed(f.Name)
		return nil
	case ConverterSource:
		return t.convert(f, s, float64(v), depth)
	}
	return status.Errorf(status.AccessDenied, "integer %s is read-only", f.Name)
}

func (t *Tree) setFloat(f *Feature, v float64, depth int) error {
	if f.FMin != 0 || f.FMax != 0 {
		if v < f.FMin || v > f.FMax {
			return status.Errorf(status.InvalidParameter, "%s: %g not in [%g, %g]", f.Name, v, f.FMin, f.FMax)
		}
	}
	switch s := f.Source.(type) {
	case RegisterSource:
		var b []byte
		switch s.Length {
		case 4:
			b = make([]byte, 4)
			binary.BigEndian.PutUint32(b, math.Float32bits(float32(v)))
		case 8:
			b = make([]byte, 8)
			binary.BigEndian.PutUint64(b, math.Float64bits(v))
		default:
			return status.Errorf(status.InvalidParameter, "float %s is backed by %d bytes", f.Name, s.Length)
		}
		return t.writeRegister(f, s, b)
	case LinkSource:
		g, err := t.get(s.Feature, depth+1)
		if err != nil {
			return err
		}
		if err := t.setNumeric(g, v, depth+1); err != nil {
			return err
		}
		t.changed(f.Name)
		return nil
	case ConverterSource:
		return t.convert(f, s, v, depth)
	}
	return status.Errorf(status.AccessDenied, "float %s is read-only", f.Name)
}

// convert writes through a converter, FROM bound to the written value
func (t *Tree) convert(f *Feature, s ConverterSource, v float64, depth int) error {
	from, err := t.eval(s.From, depth, expr.Map{"FROM": v})
	if err != nil {
		return err
	}
	g, err := t.get(s.Feature, depth+1)
	if err != nil {
		return err
	}
	if err := t.setNumeric(g, from, depth+1); err != nil {
		return err
	}
	t.changed(f.Name)
	return nil
}

func (t *Tree) setString(f *Feature, v string, depth int) error {
	switch s := f.Source.(type) {
	case RegisterSource:
		if len(v) > s.Length {
			return status.Errorf(status.InvalidParameter, "%s: %d characters do not fit in %d bytes", f.Name, len(v), s.Length)
		}
		b := make([]byte, s.Length)
		copy(b, v)
		return t.writeRegister(f, s, b)
	case LinkSource:
		g, err := t.writable(s.Feature, String, depth+1)
		if err != nil {
			return err
		}
		if err := t.setString(g, v, depth+1); err != nil {
			return err
		}
		t.changed(f.Name)
		return nil
	}
	return status.Errorf(status.AccessDenied, "string %s is read-only", f.Name)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
