// Package ism7 implements the Wolf ISM7 heating-controller bridge.
//
// It converts the raw telegrams exchanged with a heating controller bus into
// typed parameter values and converts write requests back into telegrams.
// Telegrams reach the bridge through an external gateway over MQTT; the
// bridge never opens the bus itself.
//
// # Architecture
//
//	┌──────────────┐  raw rx/tx  ┌──────────────┐  state/set  ┌──────────────┐
//	│ ISM7 gateway │◄───────────►│  ISM7 Bridge │◄───────────►│  Automation  │
//	│  (bus side)  │    MQTT     │  (this pkg)  │    MQTT     │  (HA, ...)   │
//	└──────────────┘             └──────────────┘             └──────────────┘
//
// # Key Types
//
//   - ParameterDescriptor: catalog description of one controller parameter
//     (numeric, list, text or other shape)
//   - ConverterTemplate: catalog description of how a parameter is encoded
//     on the wire (CTID, telegram numbers, encoding)
//   - Converter: stateful decoder/encoder bound to one parameter instance
//   - Device: one controller with its own converter instances
//
// # Value Lifecycle
//
// A converter accumulates telegram bytes until a value is complete. The
// device runner takes the value exactly once per publish cycle, which clears
// the converter again:
//
//	Empty ──telegram──► Partial ──last part──► Complete ──TakeValue──► Empty
//
// Single-telegram converters skip Partial.
//
// # Thread Safety
//
// Converters and Devices are not safe for concurrent use. The Bridge owns
// each Device from exactly one goroutine. Bridge methods are safe for
// concurrent use.
package ism7
