package ism7

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// testCatalogYAML covers every converter kind, a duplicate name pair and
// one template kind without an implementation.
const testCatalogYAML = `
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
  - ctid: CT_HOURS
    kind: counter
    telegrams: [20, 21]
  - ctid: CT_RUNTIME
    kind: bm2time
    telegrams: [22]
  - ctid: CT_NAME
    kind: text
    telegrams: [30, 31, 32]
  - ctid: CT_HK1
    kind: list
    telegrams: [40]
  - ctid: CT_HK2
    kind: list
    telegrams: [41]
  - ctid: CT_PROGRAM
    kind: schedule
    telegrams: [50]

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
      min: "0"
      max: "100"
      step: "1"
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
        - {value: 2, text: Heizbetrieb}
  - ptid: 10
    name: Brenner
    ctid: CT_BURNER
    shape: list
    list:
      boolean: true
      options:
        - {value: 0, text: Aus}
        - {value: 1, text: Ein}
  - ptid: 11
    name: Betriebsstunden
    ctid: CT_HOURS
    shape: numeric
    numeric:
      unit: h
  - ptid: 12
    name: Brennerlaufzeit
    ctid: CT_RUNTIME
    shape: other
    writable: true
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
  - ptid: 200
    name: Zeitprogramm
    ctid: CT_PROGRAM
    shape: other
    control_type: DaySwitchTimes
`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := ParseCatalog([]byte(testCatalogYAML))
	require.NoError(t, err)
	return cat
}

func testDevice(t *testing.T) *Device {
	t.Helper()
	dev, skipped := NewDevice(DeviceConfig{
		ID:           "boiler",
		Name:         "CGB-2",
		IP:           "192.168.1.50",
		WriteAddress: "0x08",
	}, "ism7", testCatalog(t))
	require.Len(t, skipped, 1, "only the schedule parameter should be skipped")
	return dev
}

func mustDescriptor(t *testing.T, spec DescriptorSpec) *ParameterDescriptor {
	t.Helper()
	d, err := NewDescriptor(spec)
	require.NoError(t, err)
	return d
}

func mustConverter(t *testing.T, tmpl ConverterTemplate, spec DescriptorSpec) Converter {
	t.Helper()
	spec.CTID = tmpl.CTID
	c, err := NewConverter(tmpl, mustDescriptor(t, spec))
	require.NoError(t, err)
	return c
}

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []mockSubscription
	connected     bool
	publishErr    error
	handlers      map[string]func(topic string, payload []byte)
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

type mockSubscription struct {
	Topic string
	QoS   byte
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]func(topic string, payload []byte)),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, mockSubscription{Topic: topic, QoS: qos})
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) Disconnect(_ uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

func (m *MockMQTTClient) GetPublished() []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockPublish(nil), m.published...)
}

// PublishedTo returns the payloads published on topic, oldest first.
func (m *MockMQTTClient) PublishedTo(topic string) []string {
	var out []string
	for _, p := range m.GetPublished() {
		if p.Topic == topic {
			out = append(out, string(p.Payload))
		}
	}
	return out
}

func (m *MockMQTTClient) GetSubscriptions() []mockSubscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mockSubscription(nil), m.subscriptions...)
}

func (m *MockMQTTClient) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// SimulateMessage delivers a message to the first subscription whose
// pattern matches topic.
func (m *MockMQTTClient) SimulateMessage(topic string, payload []byte) bool {
	m.mu.Lock()
	var handler func(string, []byte)
	for pattern, h := range m.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	m.mu.Unlock()
	if handler == nil {
		return false
	}
	handler(topic, payload)
	return true
}

// topicMatches implements MQTT wildcard matching for + and #.
func topicMatches(pattern, topic string) bool {
	p := strings.Split(pattern, "/")
	s := strings.Split(topic, "/")
	for i, seg := range p {
		if seg == "#" {
			return true
		}
		if i >= len(s) {
			return false
		}
		if seg != "+" && seg != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
