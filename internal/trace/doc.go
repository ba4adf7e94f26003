// Package trace captures the raw telegram traffic of the bridge.
//
// Every telegram received from the gateway and every write command sent to
// it is appended to a trace file as a CBOR event with integer keys. Traces
// are read back with Reader and rendered as JSON lines by Dump, which is
// what "ism7bridge trace <file>" prints. They are the input for debugging
// converters against real controller traffic.
package trace
