package genapi

import (
	"github.jpl.nasa.gov/bdube/softgev/genapi/expr"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// Factory builds features one at a time.  The Set and Add methods
// accumulate the attributes of the next feature; a Create method adds it to
// the tree and clears the attributes for the one after.
type Factory struct {
	tree *Tree
	next Feature
	vars []string
	err  error
}

// NewFactory returns a factory that adds features to t
func NewFactory(t *Tree) *Factory {
	return &Factory{tree: t}
}

// SetName sets the name of the next feature
func (f *Factory) SetName(s string) { f.next.Name = s }

// SetDisplayName sets the display name of the next feature
func (f *Factory) SetDisplayName(s string) { f.next.DisplayName = s }

// SetDescription sets the description of the next feature
func (f *Factory) SetDescription(s string) { f.next.Description = s }

// SetToolTip sets the tool tip of the next feature
func (f *Factory) SetToolTip(s string) { f.next.ToolTip = s }

// SetCategory sets the category of the next feature.  Features without a
// category are not shown to users.
func (f *Factory) SetCategory(s string) { f.next.Category = s }

// SetRepresentation sets the representation of the next feature
func (f *Factory) SetRepresentation(r Representation) { f.next.Representation = r }

// SetUnit sets the unit of the next feature
func (f *Factory) SetUnit(s string) { f.next.Unit = s }

// SetAccess sets the access mode of the next feature
func (f *Factory) SetAccess(a Access) { f.next.Access = a }

// SetCache sets the caching policy of the next feature
func (f *Factory) SetCache(c Cache) { f.next.Cache = c }

// AddEnumEntry adds an entry to the next feature, which must be an Enum
func (f *Factory) AddEnumEntry(name string, value int64) {
	f.next.Entries = append(f.next.Entries, EnumEntry{Name: name, Value: value})
}

// AddSelected declares a feature selected by the next feature
func (f *Factory) AddSelected(name string) { f.next.Selected = append(f.next.Selected, name) }

// AddInvalidator declares a feature whose change invalidates the next feature
func (f *Factory) AddInvalidator(name string) {
	f.next.Invalidators = append(f.next.Invalidators, name)
}

// AddVariable declares a feature used by the formula of the next feature
func (f *Factory) AddVariable(name string) { f.vars = append(f.vars, name) }

// SetPValue makes the next feature a link to another
func (f *Factory) SetPValue(name string) { f.next.Source = LinkSource{Feature: name} }

// SetPIsAvailable gates the availability of the next feature
func (f *Factory) SetPIsAvailable(name string) { f.next.IsAvailable = name }

// MapChunk maps the next feature onto a field of chunk data
func (f *Factory) MapChunk(id uint32, offset, length int, littleEndian bool) {
	f.next.Source = ChunkSource{ChunkID: id, Offset: offset, Length: length, LittleEndian: littleEndian}
}

// MapEvent maps the next feature onto a field of event data
func (f *Factory) MapEvent(id uint32, offset, length int, littleEndian bool) {
	f.next.Source = EventSource{EventID: id, Offset: offset, Length: length, LittleEndian: littleEndian}
}

// Err returns the first error of any Create call
func (f *Factory) Err() error { return f.err }

func (f *Factory) create(k Kind, r *Register) error {
	f.next.Kind = k
	if r != nil {
		f.next.Source = RegisterSource{Address: r.Address(), Length: r.Length()}
	}
	feat := f.next
	f.next = Feature{}
	f.vars = nil
	err := f.tree.Add(feat)
	if err != nil && f.err == nil {
		f.err = err
	}
	return err
}

// CreateEnum creates an Enum backed by r, or by the pValue link when r is nil
func (f *Factory) CreateEnum(r *Register) error { return f.create(Enum, r) }

// CreateString creates a String backed by r, or by a link or chunk/event mapping when r is nil
func (f *Factory) CreateString(r *Register) error { return f.create(String, r) }

// CreateBoolean creates a Boolean
func (f *Factory) CreateBoolean(r *Register) error { return f.create(Boolean, r) }

// CreateCommand creates a Command
func (f *Factory) CreateCommand(r *Register) error { return f.create(Command, r) }

// CreateInteger creates an Integer in [min, max] by inc.  With r nil the
// value comes from the pValue link or chunk/event mapping.
func (f *Factory) CreateInteger(r *Register, min, max, inc int64) error {
	f.next.Min, f.next.Max, f.next.Inc = min, max, inc
	return f.create(Integer, r)
}

// CreateFloat creates a Float in [min, max]
func (f *Factory) CreateFloat(r *Register, min, max float64) error {
	f.next.FMin, f.next.FMax = min, max
	return f.create(Float, r)
}

func (f *Factory) swissKnife(k Kind, formula string) error {
	e, err := f.compile(formula, nil)
	if err != nil {
		return err
	}
	f.next.Source = SwissKnifeSource{Formula: e}
	return f.create(k, nil)
}

// CreateIntSwissKnife creates a read-only Integer computed by formula
func (f *Factory) CreateIntSwissKnife(formula string) error {
	return f.swissKnife(Integer, formula)
}

// CreateFloatSwissKnife creates a read-only Float computed by formula
func (f *Factory) CreateFloatSwissKnife(formula string) error {
	return f.swissKnife(Float, formula)
}

func (f *Factory) converter(k Kind, feature, to, from string) error {
	toE, err := f.compile(to, []string{"TO"})
	if err != nil {
		return err
	}
	fromE, err := f.compile(from, []string{"FROM"})
	if err != nil {
		return err
	}
	f.next.Source = ConverterSource{Feature: feature, To: toE, From: fromE}
	return f.create(k, nil)
}

// CreateIntConverter creates an Integer view of feature.  to gives the
// view from the feature's value TO; from gives the feature's value from a
// written value FROM.
func (f *Factory) CreateIntConverter(feature, to, from string) error {
	return f.converter(Integer, feature, to, from)
}

// CreateFloatConverter creates a Float view of feature
func (f *Factory) CreateFloatConverter(feature, to, from string) error {
	return f.converter(Float, feature, to, from)
}

// compile compiles a formula whose variables must be declared with
// AddVariable or be one of bound
func (f *Factory) compile(formula string, bound []string) (*expr.Expr, error) {
	e, err := expr.Compile(formula)
	if err != nil {
		err = status.Errorf(status.InvalidParameter, "feature %s: %v", f.next.Name, err)
		f.fail(err)
		return nil, err
	}
	declared := make(map[string]bool)
	for _, v := range append(append([]string(nil), f.vars...), bound...) {
		declared[v] = true
	}
	for _, v := range e.Vars() {
		if !declared[v] {
			err := status.Errorf(status.InvalidParameter, "feature %s: formula %q uses undeclared variable %s", f.next.Name, formula, v)
			f.fail(err)
			return nil, err
		}
	}
	return e, nil
}

func (f *Factory) fail(err error) {
	if f.err == nil {
		f.err = err
	}
	f.next = Feature{}
	f.vars = nil
}
