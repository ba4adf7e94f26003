package ism7

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueString(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"integer", NumberValue(50), "50"},
		{"fraction", NumberValue(21.5), "21.5"},
		{"negative", NumberValue(-0.25), "-0.25"},
		{"text", TextValue("Hallo"), "Hallo"},
		{"enum shows display text", EnumValue(1, "Ein"), "Ein"},
		{"duration", DurationValue(2*time.Hour + 5*time.Minute), "02:05:00"},
		{"duration beyond a day", DurationValue(255*time.Hour + 255*time.Minute), "259:15:00"},
		{"zero value", Value{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.String())
		})
	}
}

func TestValueKindString(t *testing.T) {
	assert.Equal(t, "number", NumberValue(1).Kind.String())
	assert.Equal(t, "text", TextValue("x").Kind.String())
	assert.Equal(t, "enum", EnumValue(0, "Aus").Kind.String())
	assert.Equal(t, "duration", DurationValue(time.Minute).Kind.String())
	assert.Equal(t, "unknown", Value{}.Kind.String())
}

func TestValueFloat(t *testing.T) {
	f, ok := NumberValue(3.5).Float()
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	f, ok = EnumValue(2, "Heizbetrieb").Float()
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)

	_, ok = TextValue("x").Float()
	assert.False(t, ok)
	_, ok = DurationValue(time.Minute).Float()
	assert.False(t, ok)
}

func TestValueMarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"number", NumberValue(21.5), `21.5`},
		{"text", TextValue("Hallo"), `"Hallo"`},
		{"enum", EnumValue(1, "Automatik"), `{"value":1,"text":"Automatik"}`},
		{"duration", DurationValue(90 * time.Minute), `"01:30:00"`},
		{"empty", Value{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestReadingMarshalJSON(t *testing.T) {
	r := Reading{
		DeviceID:  "boiler",
		PTID:      9,
		Name:      "Betriebsart",
		Path:      "Betriebsart",
		Value:     EnumValue(1, "Automatik"),
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"device_id": "boiler",
		"ptid": 9,
		"name": "Betriebsart",
		"path": "Betriebsart",
		"value": {"value": 1, "text": "Automatik"},
		"timestamp": "2026-03-01T12:00:00Z"
	}`, string(data))
}

func TestLaunder(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Kesseltemperatur", "Kesseltemperatur"},
		{"Heizkreis Status", "Heizkreis_Status"},
		{"Größe Außenfühler", "Groesse_Aussenfuehler"},
		{"Ölpumpe Übertemperatur", "Oelpumpe_Uebertemperatur"},
		{"Vorlauf (HK1) [°C]", "Vorlauf_HK1_C"},
		{"Solar-Ertrag/Tag", "SolarErtragTag"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Launder(tt.in), tt.in)
	}
}
