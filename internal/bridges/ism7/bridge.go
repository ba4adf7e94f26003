package ism7

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Bridge operation constants.
const (
	// inboxSize is the number of queued jobs per device runner.
	inboxSize = 64

	// writeTimeout bounds how long SubmitWrite waits for the device runner.
	writeTimeout = 5 * time.Second

	// maxBatchTelegrams caps the telegrams accepted in one feed message.
	maxBatchTelegrams = 1024

	// ackQoS is the QoS of acknowledgments and write batches.
	ackQoS = 1
)

// Bridge translates between the gateway's raw telegram topics and typed
// parameter topics. It handles:
//   - Decoding telegram batches into values and publishing them
//   - Encoding set-topic and API write requests into write batches
//   - Acknowledgments, health reporting and graceful shutdown
//
// Every device is owned by one runner goroutine; converters are never
// touched from anywhere else.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg     *Config
	catalog *Catalog
	topics  Topics
	mqtt    MQTTClient
	health  *HealthReporter

	// Optional collaborators
	recorder  ReadingRecorder
	metrics   MetricWriter
	tracer    TelegramTracer
	listener  ReadingListener
	observer  Observer
	discovery DiscoveryPublisher

	// Devices are fixed after NewBridge.
	runners map[string]*deviceRunner
	order   []string
	infos   map[string]DeviceInfo

	// Last published reading per device and PTID
	lastValues   map[string]map[int]Reading
	lastValuesMu sync.RWMutex

	// Statistics
	telegramsRx     atomic.Uint64
	commandsTx      atomic.Uint64
	valuesPublished atomic.Uint64
	errorCount      atomic.Uint64
	lastTelegram    atomic.Int64

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	stopMu    sync.RWMutex // held for writing only while marking stopped
	stopped   bool
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the structured logging interface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool

	// Disconnect closes the connection gracefully.
	Disconnect(quiesce uint)
}

// ReadingRecorder persists readings and write requests.
// This is optional - if nil, nothing is persisted.
type ReadingRecorder interface {
	RecordReading(ctx context.Context, r Reading) error
	RecordWrite(ctx context.Context, w WriteRecord) error
}

// MetricWriter stores numeric values in a time-series database.
// This is optional - if nil, no time series are written.
type MetricWriter interface {
	WriteParameterMetric(deviceID string, ptid int, name string, value float64)
}

// TelegramTracer captures raw telegram traffic.
// This is optional - if nil, no trace is written.
type TelegramTracer interface {
	TraceReceived(deviceID string, t Telegram, at time.Time)
	TraceSent(deviceID string, cmd WriteCommand, at time.Time)
}

// ReadingListener receives every published reading (e.g. a WebSocket hub).
// This is optional.
type ReadingListener interface {
	OnReading(r Reading)
}

// WriteListener is implemented by listeners that also want the outcome of
// every write request, accepted or refused.
type WriteListener interface {
	OnWrite(w WriteRecord)
}

// Observer receives operational counters (e.g. Prometheus collectors).
// This is optional.
type Observer interface {
	ObserveReading(deviceID string, ptid int, name string, value float64)
	ObserveTelegrams(deviceID string, n int)
	ObserveConversionError(deviceID string)
	ObserveWrite(deviceID string, status AckStatus)
}

// DiscoveryPublisher announces devices to automation front-ends.
// This is optional.
type DiscoveryPublisher interface {
	PublishDevice(dev *Device) error
}

// WriteRecord is the audit entry of one write request.
type WriteRecord struct {
	CommandID string
	DeviceID  string
	PTID      int
	Path      string
	Value     string
	Source    string
	Status    AckStatus
	ErrorCode string
	Commands  []WriteCommand
	Timestamp time.Time
}

// WriteResult is the outcome of a write request.
type WriteResult struct {
	CommandID string
	PTID      int
	Commands  []WriteCommand
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Config is the loaded bridge configuration.
	Config *Config

	// Catalog is the parameter catalog.
	Catalog *Catalog

	// MQTTClient is the MQTT client implementation.
	MQTTClient MQTTClient

	// TopicRoot is the root of all bridge topics. Default: "ism7".
	TopicRoot string

	// Version is reported in health messages.
	Version string

	// Logger is optional structured logger.
	Logger Logger

	// Recorder is optional reading/write persistence.
	Recorder ReadingRecorder

	// Metrics is optional time-series output.
	Metrics MetricWriter

	// Tracer is optional raw telegram capture.
	Tracer TelegramTracer

	// Listener is optional live reading fan-out.
	Listener ReadingListener

	// Observer is optional operational counters.
	Observer Observer

	// Discovery is optional device announcement.
	Discovery DiscoveryPublisher
}

// NewBridge creates a new bridge instance and builds its devices.
// Parameters that cannot be converted are logged once and left out.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        opts.Config,
		catalog:    opts.Catalog,
		topics:     NewTopics(opts.TopicRoot),
		mqtt:       opts.MQTTClient,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		listener:   opts.Listener,
		observer:   opts.Observer,
		discovery:  opts.Discovery,
		runners:    make(map[string]*deviceRunner, len(opts.Config.Devices)),
		infos:      make(map[string]DeviceInfo, len(opts.Config.Devices)),
		lastValues: make(map[string]map[int]Reading),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	for _, devCfg := range opts.Config.Devices {
		dev, skipped := NewDevice(devCfg, b.topics.Root, opts.Catalog)
		for _, err := range skipped {
			b.logWarn("parameter not exposed", "device", dev.ID, "reason", err.Error())
		}
		b.runners[dev.ID] = &deviceRunner{dev: dev, inbox: make(chan job, inboxSize)}
		b.order = append(b.order, dev.ID)
		b.infos[dev.ID] = newDeviceInfo(dev)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		BridgeID:  opts.Config.Bridge.ID,
		Version:   version,
		Interval:  opts.Config.GetHealthInterval(),
		Topic:     b.topics.Health(),
		Publisher: opts.MQTTClient,
		Stats:     b,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This starts the device runners, subscribes to the telegram feed and set
// topics, publishes discovery documents and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	for _, id := range b.order {
		r := b.runners[id]
		b.wg.Add(1)
		go b.run(r)
	}

	feedTopic := b.topics.FeedSubscribe()
	if err := b.mqtt.Subscribe(feedTopic, byte(b.cfg.Bridge.QoS), b.handleFeedMessage); err != nil {
		return fmt.Errorf("subscribe to telegram feed: %w", err)
	}
	b.logInfo("subscribed to telegram feed", "topic", feedTopic)

	for _, id := range b.order {
		dev := b.runners[id].dev
		setTopic := SetSubscribeTopic(dev.Topic)
		prefix := strings.TrimSuffix(setTopic, "#")
		deviceID := dev.ID
		handler := func(topic string, payload []byte) {
			b.handleSetMessage(deviceID, strings.TrimPrefix(topic, prefix), payload)
		}
		if err := b.mqtt.Subscribe(setTopic, byte(b.cfg.Bridge.QoS), handler); err != nil {
			return fmt.Errorf("subscribe to set topics of %s: %w", dev.ID, err)
		}
		b.logInfo("subscribed to set topics", "device", dev.ID, "topic", setTopic)
	}

	if b.discovery != nil {
		for _, id := range b.order {
			if err := b.discovery.PublishDevice(b.runners[id].dev); err != nil {
				b.logError("failed to publish discovery", fmt.Errorf("device %s: %w", id, err))
			}
		}
	}

	b.health.Start(ctx)

	b.logInfo("bridge started",
		"bridge_id", b.cfg.Bridge.ID,
		"devices", len(b.order))

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Cancel bridge context to abort in-flight persistence and
		// release feed and set handlers blocked on a full inbox
		b.ctxCancel()

		// No job can be queued once stopped is set
		b.stopMu.Lock()
		b.stopped = true
		b.stopMu.Unlock()

		close(b.done)

		// Stop health reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for device runners, then fail what they left queued
		b.wg.Wait()
		for _, id := range b.order {
			b.drain(b.runners[id])
		}

		b.logInfo("bridge stopped")
	})
}

// job is one unit of work for a device runner. abort, when set, is called
// instead of run if the bridge stops before the job was picked up.
type job struct {
	run   func(*Device)
	abort func(error)
}

// deviceRunner serialises all work on one device.
type deviceRunner struct {
	dev      *Device
	inbox    chan job
	lastSeen atomic.Int64
}

// run executes jobs for one device until the bridge stops.
func (b *Bridge) run(r *deviceRunner) {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case j := <-r.inbox:
			j.run(r.dev)
		}
	}
}

// drain aborts the jobs left in a runner's inbox. Only called after the
// runner has returned.
func (b *Bridge) drain(r *deviceRunner) {
	for {
		select {
		case j := <-r.inbox:
			if j.abort != nil {
				j.abort(ErrBridgeStopped)
			}
		default:
			return
		}
	}
}

// enqueue hands a job to the runner of deviceID.
func (b *Bridge) enqueue(ctx context.Context, deviceID string, j job) error {
	r, ok := b.runners[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	b.stopMu.RLock()
	defer b.stopMu.RUnlock()
	if b.stopped {
		return ErrBridgeStopped
	}
	select {
	case r.inbox <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleFeedMessage processes a telegram batch published by the gateway.
func (b *Bridge) handleFeedMessage(topic string, payload []byte) {
	deviceID, ok := b.topics.FeedDevice(topic)
	if !ok {
		b.logError("invalid feed topic", fmt.Errorf("topic: %s", topic))
		return
	}

	batch, err := ParseTelegramBatch(payload)
	if err != nil {
		b.errorCount.Add(1)
		b.logError("failed to parse telegram batch", fmt.Errorf("device %s: %w", deviceID, err))
		return
	}

	if err := b.enqueue(b.ctx, deviceID, job{run: func(dev *Device) { b.processBatch(dev, batch) }}); err != nil {
		b.logDebug("telegram batch dropped", "device", deviceID, "reason", err.Error())
	}
}

// ParseTelegramBatch decodes and validates a feed payload.
func ParseTelegramBatch(payload []byte) (TelegramBatch, error) {
	var batch TelegramBatch
	if err := json.Unmarshal(payload, &batch); err != nil {
		return TelegramBatch{}, fmt.Errorf("%w: %w", ErrInvalidTelegram, err)
	}
	if len(batch.Telegrams) == 0 {
		return TelegramBatch{}, fmt.Errorf("%w: batch has no telegrams", ErrInvalidTelegram)
	}
	if len(batch.Telegrams) > maxBatchTelegrams {
		return TelegramBatch{}, fmt.Errorf("%w: batch has %d telegrams (max %d)", ErrInvalidTelegram, len(batch.Telegrams), maxBatchTelegrams)
	}
	if batch.Timestamp.IsZero() {
		batch.Timestamp = time.Now().UTC()
	}
	return batch, nil
}

// processBatch feeds a batch into the device and publishes completed values.
// Runs on the device runner.
func (b *Bridge) processBatch(dev *Device, batch TelegramBatch) {
	accepted := 0
	for _, t := range batch.Telegrams {
		if b.tracer != nil {
			b.tracer.TraceReceived(dev.ID, t, batch.Timestamp)
		}
		accepted += dev.HandleTelegram(t)
	}

	now := time.Now().UnixNano()
	b.telegramsRx.Add(uint64(len(batch.Telegrams)))
	b.lastTelegram.Store(now)
	if r, ok := b.runners[dev.ID]; ok {
		r.lastSeen.Store(now)
	}
	if b.observer != nil {
		b.observer.ObserveTelegrams(dev.ID, len(batch.Telegrams))
	}
	if accepted == 0 {
		b.logDebug("no converter consumed batch", "device", dev.ID, "telegrams", len(batch.Telegrams))
		return
	}

	b.collect(dev, batch.Timestamp)
}

// collect takes every complete value from the device and publishes it.
// A failing converter never stops the others.
func (b *Bridge) collect(dev *Device, at time.Time) {
	readings, errs := dev.Collect(at)
	for _, err := range errs {
		b.errorCount.Add(1)
		if b.observer != nil {
			b.observer.ObserveConversionError(dev.ID)
		}
		b.logError("conversion failed", err)
	}
	for _, r := range readings {
		b.publishReading(dev, r)
	}
}

// publishReading publishes a reading and feeds the optional sinks.
func (b *Bridge) publishReading(dev *Device, r Reading) {
	qos := byte(b.cfg.Bridge.QoS)
	topic := StateTopic(dev.Topic, r.Path)

	if err := b.mqtt.Publish(topic, []byte(r.Value.String()), qos, true); err != nil {
		b.logError("failed to publish state", fmt.Errorf("topic %s: %w", topic, err))
	}
	if r.Value.Kind == KindEnum {
		if err := b.mqtt.Publish(topic+"/"+SubTopicText, []byte(r.Value.Text), qos, true); err != nil {
			b.logError("failed to publish state text", err)
		}
		raw := strconv.Itoa(r.Value.Raw())
		if err := b.mqtt.Publish(topic+"/"+SubTopicValue, []byte(raw), qos, true); err != nil {
			b.logError("failed to publish state value", err)
		}
	}
	b.valuesPublished.Add(1)

	b.lastValuesMu.Lock()
	if b.lastValues[dev.ID] == nil {
		b.lastValues[dev.ID] = make(map[int]Reading)
	}
	b.lastValues[dev.ID][r.PTID] = r
	b.lastValuesMu.Unlock()

	if f, ok := r.Value.Float(); ok {
		if b.metrics != nil {
			b.metrics.WriteParameterMetric(dev.ID, r.PTID, r.Name, f)
		}
		if b.observer != nil {
			b.observer.ObserveReading(dev.ID, r.PTID, r.Name, f)
		}
	}
	if b.recorder != nil {
		if err := b.recorder.RecordReading(b.ctx, r); err != nil {
			b.logDebug("reading not recorded", "device", dev.ID, "ptid", r.PTID, "reason", err.Error())
		}
	}
	if b.listener != nil {
		b.listener.OnReading(r)
	}
}

// handleSetMessage processes a write published on a device set topic.
func (b *Bridge) handleSetMessage(deviceID, path string, payload []byte) {
	req := WriteRequest{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Path:     path,
		Value:    string(payload),
		Source:   "mqtt",
	}
	b.logInfo("received write", "device", deviceID, "path", path, "command_id", req.ID)

	j := job{
		run:   func(dev *Device) { b.executeWrite(dev, req) },
		abort: func(err error) { b.publishAckError(req, 0, ErrCodeBridgeError, err.Error()) },
	}
	if err := b.enqueue(b.ctx, deviceID, j); err != nil {
		b.publishAckError(req, 0, ErrCodeBridgeError, err.Error())
	}
}

// SubmitWrite encodes and publishes a write request and waits for the
// outcome. Used by the REST API.
//
// Parameters:
//   - ctx: Context for cancellation
//   - req: Write request (ID generated when empty)
//
// Returns:
//   - WriteResult: Command ID and emitted commands on success
//   - error: Wrapped ErrUnknownDevice, ErrUnknownParameter, ErrNotWritable,
//     ErrNotImplemented, ErrInvalidValue or ErrOutOfRange; use ErrorCode
//     to classify
func (b *Bridge) SubmitWrite(ctx context.Context, req WriteRequest) (WriteResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Source == "" {
		req.Source = "api"
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	type outcome struct {
		res WriteResult
		err error
	}
	reply := make(chan outcome, 1)
	j := job{
		run: func(dev *Device) {
			res, err := b.executeWrite(dev, req)
			reply <- outcome{res, err}
		},
		abort: func(err error) { reply <- outcome{WriteResult{CommandID: req.ID}, err} },
	}
	if err := b.enqueue(ctx, req.DeviceID, j); err != nil {
		return WriteResult{CommandID: req.ID}, err
	}

	select {
	case out := <-reply:
		return out.res, out.err
	case <-ctx.Done():
		return WriteResult{CommandID: req.ID}, ctx.Err()
	case <-b.done:
		return WriteResult{CommandID: req.ID}, ErrBridgeStopped
	}
}

// executeWrite encodes a request, publishes the write batch and the ack.
// Runs on the device runner.
func (b *Bridge) executeWrite(dev *Device, req WriteRequest) (WriteResult, error) {
	var (
		p    *Parameter
		cmds []WriteCommand
		err  error
	)
	if req.PTID != 0 {
		p, cmds, err = dev.WriteByPTID(req.PTID, req.Value)
	} else {
		p, cmds, err = dev.Write(req.Path, req.Value)
	}

	ptid := req.PTID
	if p != nil {
		ptid = p.PTID()
	}
	result := WriteResult{CommandID: req.ID, PTID: ptid}

	if err != nil {
		code := ErrorCode(err)
		b.errorCount.Add(1)
		b.publishAckError(req, ptid, code, err.Error())
		b.recordWrite(req, ptid, AckFailed, code, nil)
		return result, err
	}

	batch := WriteBatch{
		ID:           req.ID,
		Timestamp:    time.Now().UTC(),
		DeviceID:     dev.ID,
		WriteAddress: dev.WriteAddress,
		PTID:         ptid,
		Value:        req.Value,
		Commands:     cmds,
	}
	payload, err := json.Marshal(batch)
	if err == nil {
		err = b.mqtt.Publish(b.topics.Writes(dev.ID), payload, ackQoS, false)
	}
	if err != nil {
		b.errorCount.Add(1)
		b.publishAckError(req, ptid, ErrCodeDeviceUnreachable, err.Error())
		b.recordWrite(req, ptid, AckFailed, ErrCodeDeviceUnreachable, cmds)
		return result, fmt.Errorf("publishing write batch: %w", err)
	}

	if b.tracer != nil {
		for _, cmd := range cmds {
			b.tracer.TraceSent(dev.ID, cmd, batch.Timestamp)
		}
	}
	b.commandsTx.Add(uint64(len(cmds)))
	b.publishAck(req, ptid)
	b.recordWrite(req, ptid, AckAccepted, "", cmds)

	result.Commands = cmds
	return result, nil
}

// recordWrite feeds the write audit and counters.
func (b *Bridge) recordWrite(req WriteRequest, ptid int, status AckStatus, code string, cmds []WriteCommand) {
	if b.observer != nil {
		b.observer.ObserveWrite(req.DeviceID, status)
	}
	wl, _ := b.listener.(WriteListener)
	if b.recorder == nil && wl == nil {
		return
	}
	rec := WriteRecord{
		CommandID: req.ID,
		DeviceID:  req.DeviceID,
		PTID:      ptid,
		Path:      req.Path,
		Value:     req.Value,
		Source:    req.Source,
		Status:    status,
		ErrorCode: code,
		Commands:  cmds,
		Timestamp: time.Now().UTC(),
	}
	if wl != nil {
		wl.OnWrite(rec)
	}
	if b.recorder == nil {
		return
	}
	if err := b.recorder.RecordWrite(b.ctx, rec); err != nil {
		b.logDebug("write not recorded", "command_id", req.ID, "reason", err.Error())
	}
}

// publishAck publishes a successful write acknowledgment.
func (b *Bridge) publishAck(req WriteRequest, ptid int) {
	b.sendAck(NewAckMessage(req, ptid))
}

// publishAckError publishes a failed write acknowledgment.
func (b *Bridge) publishAckError(req WriteRequest, ptid int, code, message string) {
	b.sendAck(NewAckError(req, ptid, code, message))
	b.logError("write failed",
		fmt.Errorf("device=%s address=%s code=%s message=%s", req.DeviceID, req.address(), code, message))
}

func (b *Bridge) sendAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.DeviceID), payload, ackQoS, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Devices         int
	Parameters      int
	TelegramsRx     uint64
	CommandsTx      uint64
	ValuesPublished uint64
	Errors          uint64
	LastTelegram    time.Time

	// LastSeen holds, per configured device, when its last batch arrived.
	// Devices that never sent anything map to the zero time.
	LastSeen map[string]time.Time
}

// Stats returns the current bridge counters.
func (b *Bridge) Stats() Stats {
	params := 0
	for _, info := range b.infos {
		params += len(info.Parameters)
	}
	s := Stats{
		Devices:         len(b.order),
		Parameters:      params,
		TelegramsRx:     b.telegramsRx.Load(),
		CommandsTx:      b.commandsTx.Load(),
		ValuesPublished: b.valuesPublished.Load(),
		Errors:          b.errorCount.Load(),
	}
	if ns := b.lastTelegram.Load(); ns != 0 {
		s.LastTelegram = time.Unix(0, ns)
	}
	s.LastSeen = make(map[string]time.Time, len(b.order))
	for _, id := range b.order {
		var seen time.Time
		if ns := b.runners[id].lastSeen.Load(); ns != 0 {
			seen = time.Unix(0, ns)
		}
		s.LastSeen[id] = seen
	}
	return s
}

// BridgeMetrics contains metrics data for the API metrics endpoint.
type BridgeMetrics struct {
	Connected       bool   `json:"connected"`
	Status          string `json:"status"`
	TelegramsRx     uint64 `json:"telegrams_rx"`
	CommandsTx      uint64 `json:"commands_tx"`
	ValuesPublished uint64 `json:"values_published"`
	Errors          uint64 `json:"errors"`
	DevicesManaged  int    `json:"devices_managed"`
}

// GetMetrics returns current bridge metrics for the API metrics endpoint.
func (b *Bridge) GetMetrics() BridgeMetrics {
	stats := b.Stats()
	status, _ := b.health.determineStatus()
	return BridgeMetrics{
		Connected:       b.mqtt.IsConnected(),
		Status:          string(status),
		TelegramsRx:     stats.TelegramsRx,
		CommandsTx:      stats.CommandsTx,
		ValuesPublished: stats.ValuesPublished,
		Errors:          stats.Errors,
		DevicesManaged:  stats.Devices,
	}
}

// ParameterInfo describes an exposed parameter for the API.
type ParameterInfo struct {
	PTID        int          `json:"ptid"`
	Name        string       `json:"name"`
	Path        string       `json:"path"`
	CTID        string       `json:"ctid"`
	Shape       string       `json:"shape"`
	Writable    bool         `json:"writable"`
	IsDuplicate bool         `json:"is_duplicate"`
	Unit        string       `json:"unit,omitempty"`
	Options     []ListOption `json:"options,omitempty"`
	StateTopic  string       `json:"state_topic"`
}

// DeviceInfo describes a configured device for the API.
type DeviceInfo struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	IP           string          `json:"ip,omitempty"`
	WriteAddress string          `json:"write_address,omitempty"`
	Topic        string          `json:"topic"`
	Parameters   []ParameterInfo `json:"parameters"`
}

func newDeviceInfo(dev *Device) DeviceInfo {
	info := DeviceInfo{
		ID:           dev.ID,
		Name:         dev.Name,
		IP:           dev.IP,
		WriteAddress: dev.WriteAddress,
		Topic:        dev.Topic,
	}
	for _, p := range dev.Parameters() {
		d := p.Descriptor
		pi := ParameterInfo{
			PTID:        d.PTID,
			Name:        d.Name,
			Path:        p.Path(),
			CTID:        d.CTID,
			Shape:       d.Shape().String(),
			Writable:    d.IsWritable,
			IsDuplicate: p.IsDuplicate,
			Unit:        d.Numeric().Unit(),
			StateTopic:  StateTopic(dev.Topic, p.Path()),
		}
		if l := d.List(); l != nil {
			pi.Options = append([]ListOption(nil), l.Options...)
		}
		info.Parameters = append(info.Parameters, pi)
	}
	return info
}

// Devices returns the configured devices in configuration order.
func (b *Bridge) Devices() []DeviceInfo {
	out := make([]DeviceInfo, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.infos[id])
	}
	return out
}

// Device returns one configured device.
func (b *Bridge) Device(id string) (DeviceInfo, bool) {
	info, ok := b.infos[id]
	return info, ok
}

// LastReadings returns the last published reading of every parameter of
// a device, keyed by PTID.
func (b *Bridge) LastReadings(deviceID string) (map[int]Reading, error) {
	if _, ok := b.infos[deviceID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	b.lastValuesMu.RLock()
	defer b.lastValuesMu.RUnlock()

	out := make(map[int]Reading, len(b.lastValues[deviceID]))
	for ptid, r := range b.lastValues[deviceID] {
		out[ptid] = r
	}
	return out, nil
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
