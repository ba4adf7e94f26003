package ism7

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSinks implements every optional bridge collaborator.
type recordingSinks struct {
	mu         sync.Mutex
	readings   []Reading
	writes     []WriteRecord
	metrics    map[int]float64
	received   []Telegram
	sent       []WriteCommand
	heard      []Reading
	written    []WriteRecord
	telegrams  int
	convErrors int
	writeAcks  []AckStatus
	discovered []string
}

func newRecordingSinks() *recordingSinks {
	return &recordingSinks{metrics: make(map[int]float64)}
}

func (s *recordingSinks) RecordReading(_ context.Context, r Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

func (s *recordingSinks) RecordWrite(_ context.Context, w WriteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, w)
	return nil
}

func (s *recordingSinks) WriteParameterMetric(_ string, ptid int, _ string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[ptid] = value
}

func (s *recordingSinks) TraceReceived(_ string, t Telegram, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, t)
}

func (s *recordingSinks) TraceSent(_ string, cmd WriteCommand, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
}

func (s *recordingSinks) OnReading(r Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heard = append(s.heard, r)
}

func (s *recordingSinks) OnWrite(w WriteRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, w)
}

func (s *recordingSinks) ObserveReading(string, int, string, float64) {}

func (s *recordingSinks) ObserveTelegrams(_ string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telegrams += n
}

func (s *recordingSinks) ObserveConversionError(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convErrors++
}

func (s *recordingSinks) ObserveWrite(_ string, status AckStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeAcks = append(s.writeAcks, status)
}

func (s *recordingSinks) PublishDevice(dev *Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered = append(s.discovered, dev.ID)
	return nil
}

func (s *recordingSinks) snapshot() recordingSinks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return recordingSinks{
		readings:   append([]Reading(nil), s.readings...),
		writes:     append([]WriteRecord(nil), s.writes...),
		received:   append([]Telegram(nil), s.received...),
		sent:       append([]WriteCommand(nil), s.sent...),
		heard:      append([]Reading(nil), s.heard...),
		written:    append([]WriteRecord(nil), s.written...),
		telegrams:  s.telegrams,
		convErrors: s.convErrors,
		writeAcks:  append([]AckStatus(nil), s.writeAcks...),
		discovered: append([]string(nil), s.discovered...),
	}
}

func testBridgeConfig() *Config {
	cfg := defaultConfig()
	cfg.Bridge.Catalog = "catalog.yaml"
	cfg.Devices = []DeviceConfig{{
		ID:           "boiler",
		Name:         "CGB-2",
		IP:           "192.168.1.50",
		WriteAddress: "0x08",
	}}
	return cfg
}

func startTestBridge(t *testing.T, sinks *recordingSinks) (*Bridge, *MockMQTTClient) {
	t.Helper()
	client := NewMockMQTTClient()
	opts := BridgeOptions{
		Config:     testBridgeConfig(),
		Catalog:    testCatalog(t),
		MQTTClient: client,
		Version:    "test",
	}
	if sinks != nil {
		opts.Recorder = sinks
		opts.Metrics = sinks
		opts.Tracer = sinks
		opts.Listener = sinks
		opts.Observer = sinks
		opts.Discovery = sinks
	}
	b, err := NewBridge(opts)
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	return b, client
}

func feed(t *testing.T, client *MockMQTTClient, deviceID, payload string) {
	t.Helper()
	require.True(t, client.SimulateMessage("ism7/raw/"+deviceID+"/rx", []byte(payload)))
}

func waitForPublish(t *testing.T, client *MockMQTTClient, topic string) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(client.PublishedTo(topic)) > 0
	}, time.Second, 5*time.Millisecond, "nothing published on %s", topic)
	return client.PublishedTo(topic)
}

func TestNewBridgeRequiresCollaborators(t *testing.T) {
	cat := testCatalog(t)
	client := NewMockMQTTClient()

	_, err := NewBridge(BridgeOptions{Catalog: cat, MQTTClient: client})
	require.Error(t, err)
	_, err = NewBridge(BridgeOptions{Config: testBridgeConfig(), MQTTClient: client})
	require.Error(t, err)
	_, err = NewBridge(BridgeOptions{Config: testBridgeConfig(), Catalog: cat})
	require.Error(t, err)
}

func TestBridgeStartSubscribesAndAnnounces(t *testing.T) {
	sinks := newRecordingSinks()
	_, client := startTestBridge(t, sinks)

	var topics []string
	for _, s := range client.GetSubscriptions() {
		topics = append(topics, s.Topic)
	}
	assert.ElementsMatch(t, []string{"ism7/raw/+/rx", "ism7/boiler/set/#"}, topics)

	starting := client.PublishedTo("ism7/health")
	require.NotEmpty(t, starting)
	var msg HealthMessage
	require.NoError(t, json.Unmarshal([]byte(starting[0]), &msg))
	assert.Equal(t, HealthStarting, msg.Status)

	assert.Equal(t, []string{"boiler"}, sinks.snapshot().discovered)
}

func TestBridgePublishesDecodedValues(t *testing.T) {
	sinks := newRecordingSinks()
	b, client := startTestBridge(t, sinks)

	feed(t, client, "boiler", `{"telegrams":[{"nr":12,"low":200,"high":0},{"nr":14,"low":1,"high":0}]}`)

	assert.Equal(t, []string{"20"}, waitForPublish(t, client, "ism7/boiler/Kesseltemperatur"))
	assert.Equal(t, []string{"Automatik"}, waitForPublish(t, client, "ism7/boiler/Betriebsart"))
	assert.Equal(t, []string{"Automatik"}, waitForPublish(t, client, "ism7/boiler/Betriebsart/text"))
	assert.Equal(t, []string{"1"}, waitForPublish(t, client, "ism7/boiler/Betriebsart/value"))

	for _, p := range client.GetPublished() {
		if p.Topic == "ism7/boiler/Kesseltemperatur" {
			assert.True(t, p.Retained)
			assert.Equal(t, byte(1), p.QoS)
		}
	}

	require.Eventually(t, func() bool { return len(sinks.snapshot().heard) == 2 }, time.Second, 5*time.Millisecond)
	got := sinks.snapshot()
	assert.Len(t, got.readings, 2)
	assert.Len(t, got.received, 2)
	assert.Equal(t, 2, got.telegrams)

	sinks.mu.Lock()
	assert.Equal(t, 20.0, sinks.metrics[7])
	assert.Equal(t, 1.0, sinks.metrics[9])
	sinks.mu.Unlock()

	last, err := b.LastReadings("boiler")
	require.NoError(t, err)
	assert.Equal(t, 20.0, last[7].Value.Number)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.TelegramsRx)
	assert.Equal(t, uint64(2), stats.ValuesPublished)
	assert.False(t, stats.LastTelegram.IsZero())
	assert.False(t, stats.LastSeen["boiler"].IsZero())
}

func TestBridgeMultiPartValueWaitsForAllParts(t *testing.T) {
	_, client := startTestBridge(t, nil)

	feed(t, client, "boiler", `{"telegrams":[{"nr":20,"low":3,"high":0}]}`)
	feed(t, client, "boiler", `{"telegrams":[{"nr":12,"low":10,"high":0}]}`)
	waitForPublish(t, client, "ism7/boiler/Kesseltemperatur")
	assert.Empty(t, client.PublishedTo("ism7/boiler/Betriebsstunden"))

	feed(t, client, "boiler", `{"telegrams":[{"nr":21,"low":2,"high":0}]}`)
	assert.Equal(t, []string{"2003"}, waitForPublish(t, client, "ism7/boiler/Betriebsstunden"))
}

func TestBridgeDuplicateNamesPublishUnderPTID(t *testing.T) {
	_, client := startTestBridge(t, nil)

	feed(t, client, "boiler", `{"telegrams":[{"nr":40,"low":1,"high":0},{"nr":41,"low":0,"high":0}]}`)

	assert.Equal(t, []string{"Heizen"}, waitForPublish(t, client, "ism7/boiler/Heizkreis_Status/100"))
	assert.Equal(t, []string{"Aus"}, waitForPublish(t, client, "ism7/boiler/Heizkreis_Status/101"))
	assert.Empty(t, client.PublishedTo("ism7/boiler/Heizkreis_Status"))
}

func TestBridgeConversionErrorDoesNotStopOthers(t *testing.T) {
	sinks := newRecordingSinks()
	b, client := startTestBridge(t, sinks)

	feed(t, client, "boiler", `{"telegrams":[{"nr":14,"low":99,"high":0},{"nr":12,"low":50,"high":0}]}`)

	assert.Equal(t, []string{"5"}, waitForPublish(t, client, "ism7/boiler/Kesseltemperatur"))
	assert.Empty(t, client.PublishedTo("ism7/boiler/Betriebsart"))
	require.Eventually(t, func() bool { return sinks.snapshot().convErrors == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(1), b.Stats().Errors)
}

func TestBridgeIgnoresInvalidFeed(t *testing.T) {
	b, client := startTestBridge(t, nil)

	feed(t, client, "boiler", `not json`)
	feed(t, client, "boiler", `{"telegrams":[]}`)
	feed(t, client, "unknown", `{"telegrams":[{"nr":12,"low":1,"high":0}]}`)

	assert.Equal(t, uint64(2), b.Stats().Errors)
	assert.Equal(t, uint64(0), b.Stats().TelegramsRx)
}

func TestBridgeSetTopicWrite(t *testing.T) {
	sinks := newRecordingSinks()
	_, client := startTestBridge(t, sinks)

	require.True(t, client.SimulateMessage("ism7/boiler/set/Betriebsart/text", []byte("Heizbetrieb")))

	batches := waitForPublish(t, client, "ism7/raw/boiler/tx")
	var batch WriteBatch
	require.NoError(t, json.Unmarshal([]byte(batches[0]), &batch))
	assert.Equal(t, "0x08", batch.WriteAddress)
	assert.Equal(t, 9, batch.PTID)
	assert.Equal(t, []WriteCommand{{Telegram: 14, Low: 2}}, batch.Commands)
	assert.NotEmpty(t, batch.ID)

	acks := waitForPublish(t, client, "ism7/ack/boiler")
	var ack AckMessage
	require.NoError(t, json.Unmarshal([]byte(acks[0]), &ack))
	assert.Equal(t, AckAccepted, ack.Status)
	assert.Equal(t, batch.ID, ack.CommandID)
	assert.Equal(t, "Betriebsart/text", ack.Address)

	require.Eventually(t, func() bool { return len(sinks.snapshot().writes) == 1 }, time.Second, 5*time.Millisecond)
	got := sinks.snapshot()
	assert.Equal(t, "mqtt", got.writes[0].Source)
	assert.Equal(t, AckAccepted, got.writes[0].Status)
	assert.Equal(t, []WriteCommand{{Telegram: 14, Low: 2}}, got.sent)
	assert.Equal(t, []AckStatus{AckAccepted}, got.writeAcks)
	require.Len(t, got.written, 1)
	assert.Equal(t, batch.ID, got.written[0].CommandID)
	assert.Equal(t, "boiler", got.written[0].DeviceID)
}

func TestBridgeSetTopicWriteRejected(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		wantCode string
	}{
		{"unknown parameter", "ism7/boiler/set/Unbekannt", "1", ErrCodeNotConfigured},
		{"read-only parameter", "ism7/boiler/set/Kesseltemperatur", "20", ErrCodeNotSupported},
		{"not implemented", "ism7/boiler/set/Brennerlaufzeit", "01:00", ErrCodeNotSupported},
		{"out of range", "ism7/boiler/set/Warmwassersolltemperatur", "150", ErrCodeInvalidParameters},
		{"unknown option", "ism7/boiler/set/Betriebsart", "Sommer", ErrCodeInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := startTestBridge(t, nil)

			require.True(t, client.SimulateMessage(tt.topic, []byte(tt.payload)))

			acks := waitForPublish(t, client, "ism7/ack/boiler")
			var ack AckMessage
			require.NoError(t, json.Unmarshal([]byte(acks[0]), &ack))
			assert.Equal(t, AckFailed, ack.Status)
			require.NotNil(t, ack.Error)
			assert.Equal(t, tt.wantCode, ack.Error.Code)
			assert.Empty(t, client.PublishedTo("ism7/raw/boiler/tx"))
		})
	}
}

func TestBridgeSubmitWrite(t *testing.T) {
	b, client := startTestBridge(t, nil)

	res, err := b.SubmitWrite(context.Background(), WriteRequest{DeviceID: "boiler", PTID: 8, Value: "45"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.CommandID)
	assert.Equal(t, 8, res.PTID)
	assert.Equal(t, []WriteCommand{{Telegram: 13, Low: 45}}, res.Commands)
	assert.Len(t, client.PublishedTo("ism7/raw/boiler/tx"), 1)
	assert.Equal(t, uint64(1), b.Stats().CommandsTx)

	_, err = b.SubmitWrite(context.Background(), WriteRequest{DeviceID: "boiler", PTID: 8, Value: "-1"})
	require.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, ErrCodeInvalidParameters, ErrorCode(err))

	_, err = b.SubmitWrite(context.Background(), WriteRequest{DeviceID: "nope", PTID: 8, Value: "1"})
	require.ErrorIs(t, err, ErrUnknownDevice)
}

func TestBridgeSubmitWritePublishFailure(t *testing.T) {
	b, client := startTestBridge(t, nil)
	client.mu.Lock()
	client.publishErr = errors.New("broker gone")
	client.mu.Unlock()

	_, err := b.SubmitWrite(context.Background(), WriteRequest{DeviceID: "boiler", PTID: 8, Value: "45"})
	require.Error(t, err)
	assert.Equal(t, uint64(0), b.Stats().CommandsTx)
}

func TestBridgeSubmitWriteAfterStop(t *testing.T) {
	b, _ := startTestBridge(t, nil)
	b.Stop()

	_, err := b.SubmitWrite(context.Background(), WriteRequest{DeviceID: "boiler", PTID: 8, Value: "45"})
	require.ErrorIs(t, err, ErrBridgeStopped)
}

func TestBridgeStopFailsQueuedSetRequests(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := NewBridge(BridgeOptions{
		Config:     testBridgeConfig(),
		Catalog:    testCatalog(t),
		MQTTClient: client,
	})
	require.NoError(t, err)

	// Runners are not started, so both requests stay queued.
	b.handleSetMessage("boiler", "Betriebsart/text", []byte("Heizbetrieb"))
	b.handleSetMessage("boiler", "Warmwassersolltemperatur", []byte("45"))
	assert.Empty(t, client.PublishedTo("ism7/ack/boiler"))

	b.Stop()

	acks := client.PublishedTo("ism7/ack/boiler")
	require.Len(t, acks, 2)
	for _, raw := range acks {
		var ack AckMessage
		require.NoError(t, json.Unmarshal([]byte(raw), &ack))
		assert.Equal(t, AckFailed, ack.Status)
		require.NotNil(t, ack.Error)
		assert.Equal(t, ErrCodeBridgeError, ack.Error.Code)
	}
	assert.Empty(t, client.PublishedTo("ism7/raw/boiler/tx"))

	b.handleSetMessage("boiler", "Betriebsart/text", []byte("Standby"))
	assert.Len(t, client.PublishedTo("ism7/ack/boiler"), 3)
}

func TestBridgeDevicesInfo(t *testing.T) {
	b, _ := startTestBridge(t, nil)

	devices := b.Devices()
	require.Len(t, devices, 1)
	info := devices[0]
	assert.Equal(t, "boiler", info.ID)
	assert.Equal(t, "ism7/boiler", info.Topic)
	assert.Len(t, info.Parameters, 9)

	var mode ParameterInfo
	for _, p := range info.Parameters {
		if p.PTID == 9 {
			mode = p
		}
	}
	assert.Equal(t, "list", mode.Shape)
	assert.True(t, mode.Writable)
	assert.Len(t, mode.Options, 3)
	assert.Equal(t, "ism7/boiler/Betriebsart", mode.StateTopic)

	_, ok := b.Device("nope")
	assert.False(t, ok)
	_, err := b.LastReadings("nope")
	require.ErrorIs(t, err, ErrUnknownDevice)

	m := b.GetMetrics()
	assert.True(t, m.Connected)
	assert.Equal(t, 1, m.DevicesManaged)
}

func TestParseTelegramBatch(t *testing.T) {
	batch, err := ParseTelegramBatch([]byte(`{"telegrams":[{"nr":1,"low":2,"high":3}]}`))
	require.NoError(t, err)
	assert.False(t, batch.Timestamp.IsZero())
	assert.Equal(t, Telegram{Number: 1, Low: 2, High: 3}, batch.Telegrams[0])

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	batch, err = ParseTelegramBatch([]byte(`{"timestamp":"2026-03-01T12:00:00Z","telegrams":[{"nr":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, ts, batch.Timestamp)

	_, err = ParseTelegramBatch([]byte(`{"telegrams":[]}`))
	require.ErrorIs(t, err, ErrInvalidTelegram)
	_, err = ParseTelegramBatch([]byte(`[`))
	require.ErrorIs(t, err, ErrInvalidTelegram)
}
