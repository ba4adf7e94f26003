package ism7

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	defaultHealthInterval = 30 * time.Second

	// defaultStaleAfter is how long a device may stay silent before the
	// bridge reports itself degraded.
	defaultStaleAfter = 5 * time.Minute
)

// HealthPublisher is the broker side of the reporter, usually the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StatsProvider supplies the counters reported in health messages.
type StatsProvider interface {
	Stats() Stats
}

// HealthReporterConfig configures a HealthReporter. Zero durations select
// the defaults (30s interval, 5m staleness).
type HealthReporterConfig struct {
	BridgeID   string
	Version    string
	Interval   time.Duration
	StaleAfter time.Duration
	Topic      string // default ism7/health
	Publisher  HealthPublisher
	Stats      StatsProvider
}

// HealthReporter publishes a retained status document on the health topic
// at a fixed interval.
//
// The bridge is degraded while the broker link is down or while any
// configured device has been silent for longer than StaleAfter. Devices that
// never sent a batch count as silent from the moment the reporter was
// created.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu     sync.RWMutex
	logger Logger
}

// NewHealthReporter creates a reporter. Call Start to begin the interval.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Topic == "" {
		cfg.Topic = NewTopics("").Health()
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		stop:    make(chan struct{}),
	}
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// Start publishes the current status immediately and then once per
// interval until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()

		for {
			if err := h.PublishNow(); err != nil {
				h.logPublishError(err)
			}
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop ends the interval and publishes a final "stopping" document.
// Calling it more than once is harmless.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		h.wg.Wait()
		if err := h.publish(HealthStopping, ""); err != nil {
			h.logPublishError(err)
		}
	})
}

// PublishStarting announces that the bridge is starting.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// GetLWTTopic returns the topic the broker should post the last will on.
func (h *HealthReporter) GetLWTTopic() string {
	return h.cfg.Topic
}

// GetLWTPayload returns the "offline" document used as last will.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.cfg.BridgeID))
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.cfg.Stats == nil {
		return HealthHealthy, ""
	}

	stats := h.cfg.Stats.Stats()
	if silent := silentDevices(stats, h.started, time.Now().Add(-h.cfg.StaleAfter)); len(silent) > 0 {
		return HealthDegraded, fmt.Sprintf("telegram feed silent: %s", strings.Join(silent, ", "))
	}
	return HealthHealthy, ""
}

// silentDevices returns, sorted, the devices whose last batch (or started,
// if none arrived yet) lies before cutoff. Without per-device data the
// bridge-wide last telegram is used under the name "all".
func silentDevices(stats Stats, started, cutoff time.Time) []string {
	since := func(t time.Time) time.Time {
		if t.IsZero() {
			return started
		}
		return t
	}

	if len(stats.LastSeen) == 0 {
		if since(stats.LastTelegram).Before(cutoff) {
			return []string{"all"}
		}
		return nil
	}

	var silent []string
	for id, seen := range stats.LastSeen {
		if since(seen).Before(cutoff) {
			silent = append(silent, id)
		}
	}
	slices.Sort(silent)
	return silent
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	if h.cfg.Publisher == nil {
		return nil
	}

	var stats Stats
	if h.cfg.Stats != nil {
		stats = h.cfg.Stats.Stats()
	}
	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, h.started)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding health: %w", err)
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) logPublishError(err error) {
	h.mu.RLock()
	logger := h.logger
	h.mu.RUnlock()
	if logger != nil {
		logger.Error("publishing health failed", "error", err)
	}
}
