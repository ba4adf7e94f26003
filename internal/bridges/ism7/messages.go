package ism7

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Protocol is the protocol identifier carried in acknowledgments.
const Protocol = "ism7"

// DefaultTopicRoot is the root of all bridge topics.
const DefaultTopicRoot = "ism7"

// AckStatus represents the acknowledgment status of a write request.
type AckStatus string

const (
	// AckAccepted indicates the write commands were handed to the gateway.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the write was rejected.
	AckFailed AckStatus = "failed"
)

// AckMessage is published after every write request.
// Topic: {root}/ack/{device_id}
type AckMessage struct {
	// CommandID identifies the write request.
	CommandID string `json:"command_id"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the target device.
	DeviceID string `json:"device_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("ism7").
	Protocol string `json:"protocol"`

	// Address is the parameter path the request addressed.
	Address string `json:"address"`

	// PTID is the resolved parameter, when resolution succeeded.
	PTID int `json:"ptid,omitempty"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed requests.
type AckError struct {
	// Code is the error code (e.g., "INVALID_PARAMETERS", "NOT_SUPPORTED").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for write failures.
const (
	ErrCodeDeviceUnreachable = "DEVICE_UNREACHABLE"
	ErrCodeInvalidParameters = "INVALID_PARAMETERS"
	ErrCodeNotSupported      = "NOT_SUPPORTED"
	ErrCodeNotConfigured     = "NOT_CONFIGURED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// ErrorCode maps a write error to its acknowledgment code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnknownDevice), errors.Is(err, ErrUnknownParameter):
		return ErrCodeNotConfigured
	case errors.Is(err, ErrNotImplemented), errors.Is(err, ErrNotWritable):
		return ErrCodeNotSupported
	case errors.Is(err, ErrInvalidValue), errors.Is(err, ErrOutOfRange):
		return ErrCodeInvalidParameters
	default:
		return ErrCodeBridgeError
	}
}

// NewAckMessage creates a successful acknowledgment.
func NewAckMessage(req WriteRequest, ptid int) AckMessage {
	return AckMessage{
		CommandID: req.ID,
		Timestamp: time.Now().UTC(),
		DeviceID:  req.DeviceID,
		Status:    AckAccepted,
		Protocol:  Protocol,
		Address:   req.address(),
		PTID:      ptid,
	}
}

// NewAckError creates a failed acknowledgment.
func NewAckError(req WriteRequest, ptid int, code, message string) AckMessage {
	ack := NewAckMessage(req, ptid)
	ack.Status = AckFailed
	ack.Error = &AckError{Code: code, Message: message}
	return ack
}

// WriteRequest is a request to write one parameter value.
type WriteRequest struct {
	// ID identifies the request; generated when empty.
	ID string `json:"id"`

	// DeviceID is the target device.
	DeviceID string `json:"device_id"`

	// Path addresses the parameter by set-topic path. Ignored when PTID is set.
	Path string `json:"path,omitempty"`

	// PTID addresses the parameter directly.
	PTID int `json:"ptid,omitempty"`

	// Value is the raw value string handed to the converter.
	Value string `json:"value"`

	// Source indicates where the request originated ("mqtt", "api").
	Source string `json:"source"`
}

// address returns the parameter address used in acks.
func (r WriteRequest) address() string {
	if r.PTID != 0 {
		return fmt.Sprintf("ptid:%d", r.PTID)
	}
	return r.Path
}

// WriteBatch is published for the gateway to send to the controller.
// Topic: {root}/raw/{device_id}/tx
type WriteBatch struct {
	ID           string         `json:"id"`
	Timestamp    time.Time      `json:"timestamp"`
	DeviceID     string         `json:"device_id"`
	WriteAddress string         `json:"write_address"`
	PTID         int            `json:"ptid"`
	Value        string         `json:"value"`
	Commands     []WriteCommand `json:"commands"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not connected (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports the operational status of the bridge.
// Topic: {root}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Statistics contains operational metrics.
	Statistics *BridgeStatistics `json:"statistics,omitempty"`

	// DevicesManaged is the number of configured devices.
	DevicesManaged int `json:"devices_managed"`

	// ParametersExposed is the number of convertible parameters.
	ParametersExposed int `json:"parameters_exposed"`

	// LastTelegram is when the gateway last delivered telegrams.
	LastTelegram *time.Time `json:"last_telegram,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// BridgeStatistics contains operational metrics.
type BridgeStatistics struct {
	// MessagesReceived is the total number of telegrams received.
	MessagesReceived uint64 `json:"messages_received"`

	// MessagesSent is the total number of write commands emitted.
	MessagesSent uint64 `json:"messages_sent"`

	// ValuesPublished is the total number of values published.
	ValuesPublished uint64 `json:"values_published"`

	// Errors is the total number of conversion and write errors.
	Errors uint64 `json:"errors"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats Stats, startTime time.Time) HealthMessage {
	msg := HealthMessage{
		Bridge:            bridgeID,
		Timestamp:         time.Now().UTC(),
		Status:            status,
		Version:           version,
		UptimeSeconds:     int64(time.Since(startTime).Seconds()),
		DevicesManaged:    stats.Devices,
		ParametersExposed: stats.Parameters,
		Statistics: &BridgeStatistics{
			MessagesReceived: stats.TelegramsRx,
			MessagesSent:     stats.CommandsTx,
			ValuesPublished:  stats.ValuesPublished,
			Errors:           stats.Errors,
		},
	}
	if !stats.LastTelegram.IsZero() {
		last := stats.LastTelegram.UTC()
		msg.LastTelegram = &last
	}
	return msg
}

// NewLWTMessage creates a Last Will and Testament message for MQTT.
// This message is published by the broker if the bridge disconnects unexpectedly.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Topics builds the bridge topics below a root.
type Topics struct {
	Root string
}

// NewTopics returns the topic set for root, defaulting to DefaultTopicRoot.
func NewTopics(root string) Topics {
	root = strings.TrimSuffix(root, "/")
	if root == "" {
		root = DefaultTopicRoot
	}
	return Topics{Root: root}
}

// Feed returns the topic the gateway publishes received telegrams on.
// Example: ism7/raw/boiler/rx
func (t Topics) Feed(deviceID string) string {
	return fmt.Sprintf("%s/raw/%s/rx", t.Root, deviceID)
}

// FeedSubscribe returns the subscription pattern for all telegram feeds.
// Example: ism7/raw/+/rx
func (t Topics) FeedSubscribe() string {
	return fmt.Sprintf("%s/raw/+/rx", t.Root)
}

// Writes returns the topic write batches are published on.
// Example: ism7/raw/boiler/tx
func (t Topics) Writes(deviceID string) string {
	return fmt.Sprintf("%s/raw/%s/tx", t.Root, deviceID)
}

// Ack returns the topic write acknowledgments are published on.
// Example: ism7/ack/boiler
func (t Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s", t.Root, deviceID)
}

// Health returns the health topic.
// Example: ism7/health
func (t Topics) Health() string {
	return t.Root + "/health"
}

// FeedDevice extracts the device ID from a feed topic.
func (t Topics) FeedDevice(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Root+"/raw/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/rx")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// setSegment separates write requests from state topics below a device topic.
const setSegment = "set"

// StateTopic returns the state topic of a parameter path.
// Example: ism7/boiler/Kesseltemperatur
func StateTopic(deviceTopic, path string) string {
	return deviceTopic + "/" + path
}

// SetTopic returns the set topic of a parameter path.
// Example: ism7/boiler/set/Betriebsart
func SetTopic(deviceTopic, path string) string {
	return deviceTopic + "/" + setSegment + "/" + path
}

// SetSubscribeTopic returns the subscription pattern for a device's set topics.
// Example: ism7/boiler/set/#
func SetSubscribeTopic(deviceTopic string) string {
	return deviceTopic + "/" + setSegment + "/#"
}
