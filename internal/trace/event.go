package trace

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction indicates telegram flow relative to the bridge.
type Direction uint8

const (
	// DirectionRx is a telegram received from the gateway.
	DirectionRx Direction = 0
	// DirectionTx is a write command sent to the gateway.
	DirectionTx Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionRx:
		return "rx"
	case DirectionTx:
		return "tx"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the direction by name.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// ParseDirection parses "rx" or "tx".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "rx":
		return DirectionRx, nil
	case "tx":
		return DirectionTx, nil
	default:
		return 0, fmt.Errorf("trace: unknown direction %q", s)
	}
}

// Event is one captured telegram.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the telegram was received or sent (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint" json:"timestamp"`

	// DeviceID identifies the controller.
	DeviceID string `cbor:"2,keyasint" json:"device_id"`

	// Direction indicates telegram flow.
	Direction Direction `cbor:"3,keyasint" json:"direction"`

	// Telegram is the telegram number.
	Telegram uint16 `cbor:"4,keyasint" json:"telegram"`

	// Low and High are the two data bytes.
	Low  byte `cbor:"5,keyasint" json:"low"`
	High byte `cbor:"6,keyasint" json:"high"`
}
