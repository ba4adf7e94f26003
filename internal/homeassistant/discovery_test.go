package homeassistant

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
)

const discoveryCatalogYAML = `
converters:
  - ctid: CT_TEMP
    kind: numeric
    telegrams: [12]
    encoding: SS
    divisor: 10
  - ctid: CT_SETPOINT
    kind: numeric
    telegrams: [13]
  - ctid: CT_MODE
    kind: list
    telegrams: [14]
  - ctid: CT_BURNER
    kind: bit
    telegrams: [15]
    bit: 2
  - ctid: CT_PUMP
    kind: bit
    telegrams: [16]
    bit: 0
  - ctid: CT_NAME
    kind: text
    telegrams: [30, 31, 32]
  - ctid: CT_HK1
    kind: list
    telegrams: [40]
  - ctid: CT_HK2
    kind: list
    telegrams: [41]
  - ctid: CT_PRESSURE
    kind: numeric
    telegrams: [42]
  - ctid: CT_HIDDEN
    kind: numeric
    telegrams: [43]
  - ctid: CT_BADMIN
    kind: numeric
    telegrams: [44]

parameters:
  - ptid: 7
    name: Kesseltemperatur
    ctid: CT_TEMP
    shape: numeric
    numeric:
      unit: "°C"
  - ptid: 8
    name: Warmwassersolltemperatur
    ctid: CT_SETPOINT
    shape: numeric
    writable: true
    numeric:
      min: "20"
      max: "65"
      step: "0.5"
      unit: "°C"
  - ptid: 9
    name: Betriebsart
    ctid: CT_MODE
    shape: list
    writable: true
    list:
      options:
        - {value: 0, text: Standby}
        - {value: 1, text: Automatik}
  - ptid: 10
    name: Brennerstatus
    ctid: CT_BURNER
    shape: list
    list:
      boolean: true
      options:
        - {value: 0, text: Aus}
        - {value: 1, text: Ein}
  - ptid: 14
    name: Zirkulationspumpe
    ctid: CT_PUMP
    shape: list
    writable: true
    list:
      boolean: true
      options:
        - {value: 0, text: Deaktiviert}
        - {value: 1, text: Aktiviert}
  - ptid: 13
    name: Anlagenname
    ctid: CT_NAME
    shape: text
    writable: true
  - ptid: 100
    name: Heizkreis Status
    ctid: CT_HK1
    shape: list
    list:
      options:
        - {value: 0, text: Aus}
        - {value: 1, text: Heizen}
  - ptid: 101
    name: Heizkreis Status
    ctid: CT_HK2
    shape: list
    list:
      options:
        - {value: 0, text: Aus}
        - {value: 1, text: Heizen}
  - ptid: 102
    name: Anlagendruck Solar
    ctid: CT_PRESSURE
    shape: numeric
    numeric:
      unit: bar
  - ptid: 103
    name: Interner Zaehler
    ctid: CT_HIDDEN
    shape: numeric
    control_type: VALUE_NO_DISPLAY
  - ptid: 104
    name: Raumtemperatur Grenze
    ctid: CT_BADMIN
    shape: numeric
    writable: true
    numeric:
      min: "#Raumtemp - 5"
      unit: "%"
`

type publishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockPublisher struct {
	published []publishedMessage
	err       error
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, publishedMessage{topic, payload, qos, retained})
	return nil
}

type mockLogger struct {
	debug []string
	info  []string
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.debug = append(l.debug, msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.info = append(l.info, msg) }

func newTestDevice(t *testing.T) *ism7.Device {
	t.Helper()
	cat, err := ism7.ParseCatalog([]byte(discoveryCatalogYAML))
	require.NoError(t, err)

	dev, errs := ism7.NewDevice(ism7.DeviceConfig{
		ID:           "boiler",
		Name:         "CGB-2",
		IP:           "192.168.1.50",
		WriteAddress: "0x08",
	}, "ism7", cat)
	require.Empty(t, errs)
	return dev
}

func messagesByPTID(t *testing.T, p *DiscoveryPublisher, dev *ism7.Device) map[int]Message {
	t.Helper()
	out := make(map[int]Message)
	for _, msg := range p.Messages(dev) {
		for _, param := range dev.Parameters() {
			if p.uniqueID(dev, param.Descriptor) == msg.Config.UniqueID {
				out[param.PTID()] = msg
			}
		}
	}
	return out
}

func TestComponentMapping(t *testing.T) {
	dev := newTestDevice(t)
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf"}), dev)

	tests := []struct {
		ptid      int
		component string
	}{
		{7, ComponentSensor},
		{8, ComponentNumber},
		{9, ComponentSelect},
		{10, ComponentBinarySensor},
		{14, ComponentSwitch},
		{13, ComponentText},
		{100, ComponentSensor},
	}
	for _, tt := range tests {
		msg, ok := msgs[tt.ptid]
		require.True(t, ok, "ptid %d missing", tt.ptid)
		assert.Equal(t, tt.component, msg.Component, "ptid %d", tt.ptid)
	}
}

func TestHiddenControlTypesSkipped(t *testing.T) {
	dev := newTestDevice(t)
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf"}), dev)

	_, ok := msgs[103]
	assert.False(t, ok, "NO_DISPLAY parameter must not be announced")
	assert.Len(t, msgs, len(dev.Parameters())-1)
	assert.True(t, hidden("DaySwitchTimes"))
	assert.False(t, hidden("VALUE"))
}

func TestTopicsAndUniqueID(t *testing.T) {
	dev := newTestDevice(t)
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf"}), dev)

	setpoint := msgs[8]
	assert.Equal(t, "wolf_CGB2_0x08_8_Warmwassersolltemperatur", setpoint.Config.UniqueID)
	assert.Equal(t, setpoint.Config.UniqueID, setpoint.Config.ObjectID)
	assert.Equal(t, "homeassistant/number/wolf_CGB2_0x08_8_Warmwassersolltemperatur/config", setpoint.Topic)
	assert.Equal(t, "ism7/boiler/Warmwassersolltemperatur", setpoint.Config.StateTopic)
	assert.Equal(t, "ism7/boiler/set/Warmwassersolltemperatur", setpoint.Config.CommandTopic)

	mode := msgs[9]
	assert.Equal(t, "ism7/boiler/Betriebsart/text", mode.Config.StateTopic)
	assert.Equal(t, "ism7/boiler/set/Betriebsart/text", mode.Config.CommandTopic)

	// Read-only parameters have no command topic.
	assert.Empty(t, msgs[7].Config.CommandTopic)

	// Duplicate names carry the PTID in their topics.
	assert.Equal(t, "ism7/boiler/Heizkreis_Status/100/text", msgs[100].Config.StateTopic)
	assert.Equal(t, "ism7/boiler/Heizkreis_Status/101/text", msgs[101].Config.StateTopic)
	assert.Equal(t, "wolf_CGB2_0x08_100_Heizkreis_Status", msgs[100].Config.UniqueID)
}

func TestNumericProperties(t *testing.T) {
	dev := newTestDevice(t)
	logger := &mockLogger{}
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf", Logger: logger}), dev)

	setpoint := msgs[8].Config
	require.NotNil(t, setpoint.Min)
	require.NotNil(t, setpoint.Max)
	require.NotNil(t, setpoint.Step)
	assert.InDelta(t, 20.0, *setpoint.Min, 1e-9)
	assert.InDelta(t, 65.0, *setpoint.Max, 1e-9)
	assert.InDelta(t, 0.5, *setpoint.Step, 1e-9)
	assert.Equal(t, "°C", setpoint.UnitOfMeasurement)
	assert.Equal(t, "mdi:thermometer", setpoint.Icon)
	assert.Equal(t, "measurement", setpoint.StateClass)

	// Read-only numeric parameters never advertise bounds.
	temp := msgs[7].Config
	assert.Nil(t, temp.Min)
	assert.Nil(t, temp.Step)
	assert.Equal(t, "measurement", temp.StateClass)

	// An unparsable bound is dropped and logged.
	limit := msgs[104].Config
	assert.Nil(t, limit.Min)
	assert.Equal(t, "measurement", limit.StateClass)
	assert.Empty(t, limit.Icon)
	assert.Contains(t, logger.debug, "cannot parse min value")
}

func TestListProperties(t *testing.T) {
	dev := newTestDevice(t)
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf"}), dev)

	mode := msgs[9].Config
	assert.Equal(t, []string{"Standby", "Automatik"}, mode.Options)
	assert.Equal(t, "enum", mode.DeviceClass)

	burner := msgs[10].Config
	assert.Equal(t, "Ein", burner.PayloadOn)
	assert.Equal(t, "Aus", burner.PayloadOff)
	assert.Empty(t, burner.Options)
	assert.Equal(t, "mdi:fire", burner.Icon)

	pump := msgs[14].Config
	assert.Equal(t, "Aktiviert", pump.PayloadOn)
	assert.Equal(t, "Deaktiviert", pump.PayloadOff)
	assert.Equal(t, "mdi:pump", pump.Icon)
}

func TestGuessIcon(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Brennerstatus", "mdi:fire"},
		{"Solarertrag", "mdi:solar-panel"},
		{"Mischerventil", "mdi:pipe-valve"},
		{"Heizungspumpe", "mdi:radiator"},
		{"Ladepumpe", "mdi:pump"},
		{"Anlagendruck Solar", "mdi:gauge"},
		{"Aussentemperatur", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, guessIcon(tt.name))
		})
	}
}

func TestDeviceInfo(t *testing.T) {
	dev := newTestDevice(t)
	msgs := messagesByPTID(t, New(Options{DiscoveryID: "wolf"}), dev)

	info := msgs[7].Config.Device
	require.NotNil(t, info)
	assert.Equal(t, "http://192.168.1.50/", info.ConfigurationURL)
	assert.Equal(t, "Wolf", info.Manufacturer)
	assert.Equal(t, "CGB-2", info.Model)
	assert.Equal(t, "wolf CGB-2", info.Name)
	assert.Equal(t, [][]string{{"ip_dev", "192.168.1.50_CGB-2"}}, info.Connections)
}

func TestPublishDevice(t *testing.T) {
	dev := newTestDevice(t)
	pub := &mockPublisher{}
	logger := &mockLogger{}
	p := New(Options{Client: pub, DiscoveryID: "wolf", Prefix: "ha/", QoS: 1, Retain: true})
	p.SetLogger(logger)

	require.NoError(t, p.PublishDevice(dev))
	require.Len(t, pub.published, len(dev.Parameters())-1)
	assert.Contains(t, logger.info, "published home assistant discovery")

	first := pub.published[0]
	assert.Equal(t, byte(1), first.QoS)
	assert.True(t, first.Retained)
	assert.Regexp(t, `^ha/[a-z_]+/wolf_CGB2_0x08_\d+_\w+/config$`, first.Topic)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(first.Payload, &doc))
	assert.Contains(t, doc, "unique_id")
	assert.Contains(t, doc, "state_topic")
	assert.Contains(t, doc, "device")
	assert.NotContains(t, doc, "min")
}

func TestPublishDeviceErrors(t *testing.T) {
	dev := newTestDevice(t)

	err := New(Options{}).PublishDevice(dev)
	assert.ErrorIs(t, err, ErrNoPublisher)

	boom := errors.New("broker gone")
	err = New(Options{Client: &mockPublisher{err: boom}, DiscoveryID: "wolf"}).PublishDevice(dev)
	assert.ErrorIs(t, err, boom)
}
