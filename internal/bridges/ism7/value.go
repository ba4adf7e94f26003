package ism7

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ValueKind identifies the type carried by a Value.
type ValueKind int

// Value kinds.
const (
	KindNumber ValueKind = iota + 1
	KindString
	KindEnum
	KindDuration
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindString:
		return "text"
	case KindEnum:
		return "enum"
	case KindDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// Value is a decoded parameter value.
//
// For KindEnum, Number holds the raw wire value and Text the display value.
type Value struct {
	Kind     ValueKind
	Number   float64
	Text     string
	Duration time.Duration
}

// NumberValue returns a numeric value.
func NumberValue(v float64) Value {
	return Value{Kind: KindNumber, Number: v}
}

// TextValue returns a text value.
func TextValue(s string) Value {
	return Value{Kind: KindString, Text: s}
}

// EnumValue returns an enumeration value.
func EnumValue(raw int, text string) Value {
	return Value{Kind: KindEnum, Number: float64(raw), Text: text}
}

// DurationValue returns a duration value.
func DurationValue(d time.Duration) Value {
	return Value{Kind: KindDuration, Duration: d}
}

// Raw returns the raw wire value of an enumeration.
func (v Value) Raw() int {
	return int(v.Number)
}

// Float returns the value as a number. ok is false for text and duration
// values.
func (v Value) Float() (f float64, ok bool) {
	switch v.Kind {
	case KindNumber, KindEnum:
		return v.Number, true
	default:
		return 0, false
	}
}

// String returns the display form published on state topics.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindString, KindEnum:
		return v.Text
	case KindDuration:
		return formatDuration(v.Duration)
	default:
		return ""
	}
}

// MarshalJSON encodes numbers as JSON numbers, enumerations as
// {"value":raw,"text":display} and durations as "hh:mm:ss".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Number)
	case KindString:
		return json.Marshal(v.Text)
	case KindEnum:
		return json.Marshal(struct {
			Value int    `json:"value"`
			Text  string `json:"text"`
		}{Value: v.Raw(), Text: v.Text})
	case KindDuration:
		return json.Marshal(formatDuration(v.Duration))
	default:
		return []byte("null"), nil
	}
}

// formatDuration renders hh:mm:ss. Hours are not wrapped at 24.
func formatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, total/3600, (total/60)%60, total%60)
}
