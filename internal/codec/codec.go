package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"weaver/internal/ir"
)

// Flags tells the serializer how much derived metadata to regenerate.
// The pipeline treats the value as an opaque bitmask merged with OR.
type Flags int

const (
	// NoRewrite reports that a participant left the unit untouched.
	NoRewrite Flags = 0
	// ComputeMaxs regenerates per-method operand stack and locals sizes.
	ComputeMaxs Flags = 1
	// ComputeFrames regenerates frame checksums and implies ComputeMaxs.
	ComputeFrames Flags = 2
	// SimpleRewrite asks for re-serialization without recomputation.
	SimpleRewrite Flags = 0x100
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

var (
	ErrMalformed   = errors.New("malformed unit bytes")
	ErrInvalidUnit = errors.New("invalid unit")
)

// magic prefixes every encoded unit.
var magic = []byte{'W', 'V', 'U', 0x01}

// Codec is the parser/serializer for the structured unit representation.
type Codec interface {
	Decode(data []byte) (*ir.Unit, error)
	Encode(unit *ir.Unit, flags Flags) ([]byte, error)
	Synthesize(name string) *ir.Unit
}

// Binary is the msgpack-backed Codec.
type Binary struct{}

// NewBinary returns the default codec.
func NewBinary() *Binary {
	return &Binary{}
}

func (Binary) Decode(data []byte) (*ir.Unit, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformed)
	}
	var unit ir.Unit
	if err := msgpack.Unmarshal(data[len(magic):], &unit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if unit.Name == "" {
		return nil, fmt.Errorf("%w: unit has no name", ErrMalformed)
	}
	return &unit, nil
}

func (Binary) Encode(unit *ir.Unit, flags Flags) ([]byte, error) {
	if err := Validate(unit); err != nil {
		return nil, err
	}
	switch {
	case flags.Has(ComputeFrames):
		for _, m := range unit.Methods {
			if err := computeMaxs(m); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidUnit, unit.Name, m.Name, err)
			}
			m.FrameSum = frameSum(m)
		}
	case flags.Has(ComputeMaxs):
		for _, m := range unit.Methods {
			if err := computeMaxs(m); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidUnit, unit.Name, m.Name, err)
			}
		}
	}

	var buf bytes.Buffer
	buf.Write(magic)
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(unit); err != nil {
		return nil, fmt.Errorf("encode unit %s: %w", unit.Name, err)
	}
	return buf.Bytes(), nil
}

// Synthesize builds the minimal unit used when a unit is defined from nothing.
func (Binary) Synthesize(name string) *ir.Unit {
	return &ir.Unit{
		Version: ir.DefaultVersion,
		Access:  ir.AccPublic,
		Name:    name,
		Super:   ir.RootUnit,
		Fields:  []*ir.Field{},
		Methods: []*ir.Method{},
	}
}

// Validate rejects representations that cannot be serialized consistently.
func Validate(unit *ir.Unit) error {
	if unit == nil {
		return fmt.Errorf("%w: nil unit", ErrInvalidUnit)
	}
	if unit.Name == "" {
		return fmt.Errorf("%w: unit has no name", ErrInvalidUnit)
	}
	fields := make(map[string]struct{}, len(unit.Fields))
	for i, f := range unit.Fields {
		if f == nil || f.Name == "" {
			return fmt.Errorf("%w: %s: field %d has no name", ErrInvalidUnit, unit.Name, i)
		}
		if _, dup := fields[f.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate field %s", ErrInvalidUnit, unit.Name, f.Name)
		}
		fields[f.Name] = struct{}{}
	}
	methods := make(map[string]struct{}, len(unit.Methods))
	for i, m := range unit.Methods {
		if m == nil || m.Name == "" {
			return fmt.Errorf("%w: %s: method %d has no name", ErrInvalidUnit, unit.Name, i)
		}
		key := m.Name + m.Descriptor
		if _, dup := methods[key]; dup {
			return fmt.Errorf("%w: %s: duplicate method %s%s", ErrInvalidUnit, unit.Name, m.Name, m.Descriptor)
		}
		methods[key] = struct{}{}
	}
	return nil
}
