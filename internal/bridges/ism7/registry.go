package ism7

import (
	"fmt"
	"slices"
	"strings"
)

// ConverterKind selects the converter implementation of a template.
type ConverterKind string

// Converter kinds.
const (
	// KindBM2Time decodes one telegram as high = hours, low = minutes.
	KindBM2Time ConverterKind = "bm2time"

	// KindNumeric decodes one telegram as a scaled integer.
	KindNumeric ConverterKind = "numeric"

	// KindList decodes one telegram as a raw list option value.
	KindList ConverterKind = "list"

	// KindBit decodes one bit of the low byte as a boolean list option.
	KindBit ConverterKind = "bit"

	// KindCounter combines several telegram words into one number.
	KindCounter ConverterKind = "counter"

	// KindText decodes several telegrams as Latin-1 text.
	KindText ConverterKind = "text"
)

// Encoding is the integer layout of a single-telegram value.
type Encoding string

// Integer encodings.
const (
	// EncodingUS is an unsigned 16-bit word (low, high).
	EncodingUS Encoding = "US"

	// EncodingSS is a signed 16-bit word (low, high).
	EncodingSS Encoding = "SS"

	// EncodingUC is an unsigned byte in low; high is zero.
	EncodingUC Encoding = "UC"

	// EncodingSC is a signed byte in low; high is zero.
	EncodingSC Encoding = "SC"
)

// encodingRange holds the representable raw range of each encoding.
var encodingRange = map[Encoding][2]int{
	EncodingUS: {0, 0xFFFF},
	EncodingSS: {-0x8000, 0x7FFF},
	EncodingUC: {0, 0xFF},
	EncodingSC: {-0x80, 0x7F},
}

// decodeRaw extracts the raw integer of a single part.
func (e Encoding) decodeRaw(low, high byte) int {
	switch e {
	case EncodingSS:
		return int(int16(uint16(high)<<byteShift | uint16(low)))
	case EncodingUC:
		return int(low)
	case EncodingSC:
		return int(int8(low))
	default:
		return int(uint16(high)<<byteShift | uint16(low))
	}
}

// encodeRaw packs a raw integer into a word. ok is false when raw does not
// fit the encoding.
func (e Encoding) encodeRaw(raw int) (word uint16, ok bool) {
	r := encodingRange[e]
	if raw < r[0] || raw > r[1] {
		return 0, false
	}
	switch e {
	case EncodingUC, EncodingSC:
		return uint16(uint8(raw)), true
	default:
		return uint16(raw), true
	}
}

// ConverterTemplate describes how a parameter is laid out on the wire.
type ConverterTemplate struct {
	// CTID is the template identifier descriptors refer to.
	CTID string `yaml:"ctid"`

	// Kind selects the converter implementation.
	Kind ConverterKind `yaml:"kind"`

	// Telegrams are the telegram numbers carrying the value, in part order.
	Telegrams []uint16 `yaml:"telegrams"`

	// Encoding is the integer layout for numeric and list kinds (default US).
	Encoding Encoding `yaml:"encoding,omitempty"`

	// Divisor scales numeric and counter values (default 1).
	Divisor float64 `yaml:"divisor,omitempty"`

	// Bit is the bit index of the low byte for the bit kind.
	Bit uint8 `yaml:"bit,omitempty"`

	// Factors weight each counter part (default 1, 1000, 1000000, ...).
	Factors []float64 `yaml:"factors,omitempty"`
}

// Validate checks the template for structural errors. An unknown kind is
// not a structural error: such templates yield no converter.
func (t *ConverterTemplate) Validate() error {
	var errs []string

	if strings.TrimSpace(t.CTID) == "" {
		errs = append(errs, "ctid is required")
	}
	if len(t.Telegrams) == 0 {
		errs = append(errs, "at least one telegram is required")
	}
	if len(t.Telegrams) > maxParts {
		errs = append(errs, fmt.Sprintf("at most %d telegrams allowed, got %d", maxParts, len(t.Telegrams)))
	}
	seen := make(map[uint16]bool, len(t.Telegrams))
	for _, n := range t.Telegrams {
		if seen[n] {
			errs = append(errs, fmt.Sprintf("telegram %d listed twice", n))
		}
		seen[n] = true
	}
	if t.Encoding != "" {
		if _, ok := encodingRange[t.Encoding]; !ok {
			errs = append(errs, fmt.Sprintf("unknown encoding %q", t.Encoding))
		}
	}
	if t.Divisor < 0 {
		errs = append(errs, "divisor must not be negative")
	}
	if t.Bit > 7 {
		errs = append(errs, fmt.Sprintf("bit must be 0-7, got %d", t.Bit))
	}
	if len(t.Factors) > 0 && len(t.Factors) != len(t.Telegrams) {
		errs = append(errs, "factors must match telegrams")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidTemplate, t.CTID, strings.Join(errs, "; "))
	}
	return nil
}

// encoding returns the configured encoding or US.
func (t *ConverterTemplate) encoding() Encoding {
	if t.Encoding == "" {
		return EncodingUS
	}
	return t.Encoding
}

// divisor returns the configured divisor or 1.
func (t *ConverterTemplate) divisor() float64 {
	if t.Divisor == 0 {
		return 1
	}
	return t.Divisor
}

// factory builds a converter for a validated template and descriptor.
type factory func(tmpl ConverterTemplate, desc *ParameterDescriptor) (Converter, error)

// registration binds a converter kind to the shapes it can serve.
type registration struct {
	shapes []Shape
	build  factory
}

// registry is the static dispatch table.
var registry = map[ConverterKind]registration{
	KindBM2Time: {shapes: []Shape{ShapeOther}, build: newTimeConverter},
	KindNumeric: {shapes: []Shape{ShapeNumeric}, build: newNumericConverter},
	KindList:    {shapes: []Shape{ShapeList}, build: newListConverter},
	KindBit:     {shapes: []Shape{ShapeList}, build: newBitConverter},
	KindCounter: {shapes: []Shape{ShapeNumeric}, build: newCounterConverter},
	KindText:    {shapes: []Shape{ShapeText, ShapeOther}, build: newTextConverter},
}

// Convertible reports whether the dispatch table has an implementation
// for kind and shape.
func Convertible(kind ConverterKind, shape Shape) bool {
	reg, ok := registry[kind]
	return ok && slices.Contains(reg.shapes, shape)
}

// Kinds returns the registered converter kinds in sorted order.
func Kinds() []ConverterKind {
	kinds := make([]ConverterKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// NewConverter builds the converter for a descriptor.
//
// Parameters:
//   - tmpl: Converter template the descriptor's CTID refers to
//   - desc: Parameter descriptor
//
// Returns:
//   - Converter: Fresh converter in StateEmpty
//   - error: ErrNoConverter when no implementation serves the kind and
//     shape, ErrInvalidTemplate when the template is malformed
func NewConverter(tmpl ConverterTemplate, desc *ParameterDescriptor) (Converter, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: descriptor is nil", ErrNoConverter)
	}
	if tmpl.CTID != desc.CTID {
		return nil, fmt.Errorf("%w: template %q does not match descriptor ctid %q", ErrInvalidTemplate, tmpl.CTID, desc.CTID)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}

	reg, ok := registry[tmpl.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q (ctid %s)", ErrNoConverter, tmpl.Kind, tmpl.CTID)
	}
	if !slices.Contains(reg.shapes, desc.Shape()) {
		return nil, fmt.Errorf("%w: kind %s cannot serve %s parameter %d", ErrNoConverter, tmpl.Kind, desc.Shape(), desc.PTID)
	}
	return reg.build(tmpl, desc)
}

// requireSingle rejects multi-telegram templates for single-telegram kinds.
func requireSingle(tmpl ConverterTemplate) error {
	if len(tmpl.Telegrams) != 1 {
		return fmt.Errorf("%w: %s: kind %s takes exactly one telegram, got %d",
			ErrInvalidTemplate, tmpl.CTID, tmpl.Kind, len(tmpl.Telegrams))
	}
	return nil
}
