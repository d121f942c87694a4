// Package genapi is a small GenICam-style register map and feature tree.
//
// Registers are blocks of device memory whose accesses are routed through
// EventSink hooks.  Features are typed, named views onto registers, onto
// other features (pValue links, SwissKnife formulas, converters) or onto the
// chunk and event data most recently attached to the tree.
package genapi

import (
	"fmt"

	"github.jpl.nasa.gov/bdube/softgev/genapi/expr"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// Kind is the value type of a feature
type Kind int

const (
	// Integer is a signed integer
	Integer Kind = iota

	// Float is a floating point number
	Float

	// String is text
	String

	// Boolean is true or false
	Boolean

	// Command is a momentary action
	Command

	// Enum is one of a list of named entries
	Enum
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Boolean:
		return "Boolean"
	case Command:
		return "Command"
	case Enum:
		return "Enumeration"
	default:
		return "Unknown"
	}
}

// Representation is how a numeric feature is best displayed
type Representation int

const (
	// Linear is a slider
	Linear Representation = iota

	// Logarithmic is a logarithmic slider
	Logarithmic

	// PureNumber is a plain number
	PureNumber

	// HexNumber is a number shown in hex
	HexNumber

	// BooleanCheckbox is a checkbox
	BooleanCheckbox
)

func (r Representation) String() string {
	return [...]string{"Linear", "Logarithmic", "PureNumber", "HexNumber", "Boolean"}[r]
}

// Cache is the caching policy of a register backed feature
type Cache int

const (
	// WriteThrough caches values that are read or written
	WriteThrough Cache = iota

	// NoCache always reads the register
	NoCache
)

// EnumEntry is one entry of an enumeration
type EnumEntry struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// Source is where a feature's value comes from.  It is one of
// RegisterSource, LinkSource, SwissKnifeSource, ConverterSource,
// ChunkSource or EventSource.
type Source interface {
	source()
}

// RegisterSource backs a feature with a register
type RegisterSource struct {
	Address uint32
	Length  int
}

// LinkSource makes a feature an alias of another (pValue)
type LinkSource struct {
	Feature string
}

// SwissKnifeSource computes a read-only value from other features.  Each
// variable name in the formula is the name of a feature.
type SwissKnifeSource struct {
	Formula *expr.Expr
}

// ConverterSource is a read-write view of another feature.  To computes the
// displayed value from the underlying one, bound to the variable TO; From
// computes the underlying value from a written one, bound to FROM.  Other
// variables are feature names.
type ConverterSource struct {
	Feature  string
	To, From *expr.Expr
}

// ChunkSource maps a field of chunk data
type ChunkSource struct {
	ChunkID      uint32
	Offset       int
	Length       int
	LittleEndian bool
}

// EventSource maps a field of event data
type EventSource struct {
	EventID      uint32
	Offset       int
	Length       int
	LittleEndian bool
}

func (RegisterSource) source()   {}
func (LinkSource) source()       {}
func (SwissKnifeSource) source() {}
func (ConverterSource) source()  {}
func (ChunkSource) source()      {}
func (EventSource) source()      {}

// Feature describes a feature of the tree
type Feature struct {
	Name           string
	DisplayName    string
	Category       string
	Description    string
	ToolTip        string
	Unit           string
	Kind           Kind
	Representation Representation
	Access         Access
	Cache          Cache

	// Min, Max and Inc bound Integer features; Inc 0 means 1
	Min, Max, Inc int64

	// FMin and FMax bound Float features; both 0 means unbounded
	FMin, FMax float64

	// Entries are the entries of an Enum
	Entries []EnumEntry

	Source Source

	// Selected are the features whose meaning depends on this one
	Selected []string

	// Invalidators are the features whose change discards this one's cached value
	Invalidators []string

	// IsAvailable names a feature which gates availability when non-zero
	IsAvailable string
}

// entry returns the enum entry with a given name
func (f *Feature) entry(name string) (EnumEntry, bool) {
	for _, e := range f.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return EnumEntry{}, false
}

// entryByValue returns the enum entry with a given value
func (f *Feature) entryByValue(v int64) (EnumEntry, bool) {
	for _, e := range f.Entries {
		if e.Value == v {
			return e, true
		}
	}
	return EnumEntry{}, false
}

// ErrFeatureNotFound is generated when a feature is looked up in the tree
// but does not exist there
type ErrFeatureNotFound struct {
	// Feature is the specific feature not found
	Feature string
}

// Error satisfies the error interface
func (e ErrFeatureNotFound) Error() string {
	return fmt.Sprintf("feature %s not found in the feature tree", e.Feature)
}

// ErrWrongKind is generated when a feature is accessed as the wrong type
type ErrWrongKind struct {
	Feature string
	Kind    Kind
	Want    Kind
}

func (e ErrWrongKind) Error() string {
	return fmt.Sprintf("feature %s is a %s, not a %s", e.Feature, e.Kind, e.Want)
}

// Unwrap makes a wrong kind access an invalid parameter
func (e ErrWrongKind) Unwrap() error {
	return status.InvalidParameter
}
