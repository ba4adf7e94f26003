package ism7

import "errors"

// Domain errors for the ISM7 bridge package.
var (
	// ErrInvalidDescriptor is returned when a catalog entry declares an
	// inconsistent parameter shape or an unparseable mandatory constraint.
	ErrInvalidDescriptor = errors.New("ism7: invalid parameter descriptor")

	// ErrInvalidTemplate is returned when a converter template is malformed.
	ErrInvalidTemplate = errors.New("ism7: invalid converter template")

	// ErrNoConverter is returned when no converter implementation exists
	// for a template kind and descriptor shape.
	ErrNoConverter = errors.New("ism7: no converter for parameter")

	// ErrNoValue is returned when a value is taken from a converter that
	// has no complete value buffered.
	ErrNoValue = errors.New("ism7: no value available")

	// ErrNotImplemented is returned when a write is requested from a
	// converter that is read-only at protocol level.
	ErrNotImplemented = errors.New("ism7: not implemented")

	// ErrNotWritable is returned when a write targets a read-only parameter.
	ErrNotWritable = errors.New("ism7: parameter is not writable")

	// ErrInvalidValue is returned when a write value cannot be parsed.
	ErrInvalidValue = errors.New("ism7: invalid value")

	// ErrOutOfRange is returned when a write value violates a min, max or
	// step constraint, or cannot be represented on the wire.
	ErrOutOfRange = errors.New("ism7: value out of range")

	// ErrDecodingFailed is returned when buffered telegram bytes do not map
	// to a valid value.
	ErrDecodingFailed = errors.New("ism7: decoding failed")

	// ErrUnknownDevice is returned when a device ID is not configured.
	ErrUnknownDevice = errors.New("ism7: unknown device")

	// ErrUnknownParameter is returned when a parameter cannot be resolved
	// on a device.
	ErrUnknownParameter = errors.New("ism7: unknown parameter")

	// ErrInvalidTelegram is returned when a received telegram batch is malformed.
	ErrInvalidTelegram = errors.New("ism7: invalid telegram")

	// ErrBridgeStopped is returned when a request reaches a stopped bridge.
	ErrBridgeStopped = errors.New("ism7: bridge stopped")
)
