package ism7

import "fmt"

// State is the accumulation state of a converter.
type State int

// Converter states.
const (
	// StateEmpty means no part arrived since the last consumption.
	StateEmpty State = iota

	// StatePartial means some but not all parts arrived.
	StatePartial

	// StateComplete means a value is buffered and not yet taken.
	StateComplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePartial:
		return "partial"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Converter decodes telegrams into values and encodes values into write
// commands for one parameter instance.
//
// The set of implementations is closed; instances come from NewConverter.
// A Converter is not safe for concurrent use.
type Converter interface {
	// CTID returns the converter template identifier.
	CTID() string

	// Telegrams returns the telegram numbers this converter consumes.
	Telegrams() []uint16

	// AddTelegram stores the bytes of t. Bytes of a telegram that arrives
	// again replace the earlier ones, even when a value is buffered.
	// Returns false when t belongs to another converter.
	AddTelegram(t Telegram) bool

	// HasValue reports whether a complete, unconsumed value is buffered.
	HasValue() bool

	// State returns the accumulation state.
	State() State

	// Peek decodes the buffered value without consuming it.
	Peek() (Value, bool)

	// TakeValue returns the buffered value and clears it. It fails with
	// ErrNoValue when HasValue is false, and with ErrDecodingFailed when
	// the buffered bytes do not map to a value (the bytes are consumed
	// either way).
	TakeValue() (Value, error)

	// WriteCommands encodes value for transmission. On error no command
	// is returned.
	WriteCommands(value string) ([]WriteCommand, error)

	isConverter()
}

// accumulator carries the state shared by every converter variant.
type accumulator struct {
	ctid   string
	parts  partSet
	decode func(p *partSet) (Value, error)
}

func newAccumulator(tmpl ConverterTemplate, decode func(p *partSet) (Value, error)) accumulator {
	return accumulator{
		ctid:   tmpl.CTID,
		parts:  newPartSet(tmpl.Telegrams),
		decode: decode,
	}
}

func (a *accumulator) CTID() string {
	return a.ctid
}

func (a *accumulator) Telegrams() []uint16 {
	return append([]uint16(nil), a.parts.numbers...)
}

func (a *accumulator) AddTelegram(t Telegram) bool {
	return a.parts.add(t)
}

func (a *accumulator) HasValue() bool {
	return a.parts.complete()
}

func (a *accumulator) State() State {
	switch {
	case a.parts.complete():
		return StateComplete
	case a.parts.partial():
		return StatePartial
	default:
		return StateEmpty
	}
}

func (a *accumulator) Peek() (Value, bool) {
	if !a.parts.complete() {
		return Value{}, false
	}
	v, err := a.decode(&a.parts)
	if err != nil {
		return Value{}, false
	}
	return v, true
}

func (a *accumulator) TakeValue() (Value, error) {
	if !a.parts.complete() {
		return Value{}, fmt.Errorf("%w: CTID '%s'", ErrNoValue, a.ctid)
	}
	v, err := a.decode(&a.parts)
	a.parts.reset()
	if err != nil {
		return Value{}, fmt.Errorf("CTID '%s': %w", a.ctid, err)
	}
	return v, nil
}

func (a *accumulator) isConverter() {}

// notImplemented is the write error of read-only variants.
func (a *accumulator) notImplemented() error {
	return fmt.Errorf("%w: CTID '%s' is not yet implemented", ErrNotImplemented, a.ctid)
}
