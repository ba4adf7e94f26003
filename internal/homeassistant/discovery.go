package homeassistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-ism7/internal/bridges/ism7"
)

// Entity component types.
const (
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
	ComponentNumber       = "number"
	ComponentSwitch       = "switch"
	ComponentSelect       = "select"
	ComponentText         = "text"
)

// Manufacturer is reported in every device block.
const Manufacturer = "Wolf"

// Control types that never get an entity.
const (
	controlDaySwitchTimes = "DaySwitchTimes"
	controlNoDisplay      = "NO_DISPLAY"
)

// ErrNoPublisher is returned when the publisher has no MQTT client.
var ErrNoPublisher = errors.New("homeassistant: no MQTT client")

// Publisher is the subset of the MQTT client used for discovery.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger is the logging interface used by the discovery publisher.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
}

// Options configures a discovery publisher.
type Options struct {
	// Client sends the documents.
	Client Publisher

	// DiscoveryID prefixes unique IDs and device names.
	DiscoveryID string

	// Prefix is the discovery topic prefix (default "homeassistant").
	Prefix string

	// QoS and Retain apply to every document.
	QoS    byte
	Retain bool

	Logger Logger
}

// DeviceInfo is the "device" block of a discovery document.
type DeviceInfo struct {
	ConfigurationURL string     `json:"configuration_url"`
	Manufacturer     string     `json:"manufacturer"`
	Model            string     `json:"model"`
	Name             string     `json:"name"`
	Connections      [][]string `json:"connections"`
}

// EntityConfig is one discovery document.
type EntityConfig struct {
	UniqueID          string      `json:"unique_id"`
	ObjectID          string      `json:"object_id"`
	Name              string      `json:"name"`
	StateTopic        string      `json:"state_topic"`
	CommandTopic      string      `json:"command_topic,omitempty"`
	Min               *float64    `json:"min,omitempty"`
	Max               *float64    `json:"max,omitempty"`
	Step              *float64    `json:"step,omitempty"`
	UnitOfMeasurement string      `json:"unit_of_measurement,omitempty"`
	StateClass        string      `json:"state_class,omitempty"`
	DeviceClass       string      `json:"device_class,omitempty"`
	PayloadOn         string      `json:"payload_on,omitempty"`
	PayloadOff        string      `json:"payload_off,omitempty"`
	Options           []string    `json:"options,omitempty"`
	Icon              string      `json:"icon,omitempty"`
	Device            *DeviceInfo `json:"device"`
}

// Message is a discovery document with its topic.
type Message struct {
	Topic     string
	Component string
	Config    EntityConfig
}

// DiscoveryPublisher builds and publishes discovery documents.
// It implements ism7.DiscoveryPublisher.
type DiscoveryPublisher struct {
	client      Publisher
	discoveryID string
	prefix      string
	qos         byte
	retain      bool

	logger Logger
	mu     sync.RWMutex
}

// New creates a discovery publisher.
func New(opts Options) *DiscoveryPublisher {
	prefix := strings.TrimSuffix(opts.Prefix, "/")
	if prefix == "" {
		prefix = ism7.DefaultDiscoveryPrefix
	}
	return &DiscoveryPublisher{
		client:      opts.Client,
		discoveryID: opts.DiscoveryID,
		prefix:      prefix,
		qos:         opts.QoS,
		retain:      opts.Retain,
		logger:      opts.Logger,
	}
}

// SetLogger sets the logger.
func (p *DiscoveryPublisher) SetLogger(logger Logger) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
}

func (p *DiscoveryPublisher) logDebug(msg string, kv ...any) {
	p.mu.RLock()
	logger := p.logger
	p.mu.RUnlock()
	if logger != nil {
		logger.Debug(msg, kv...)
	}
}

// PublishDevice publishes the documents of every eligible parameter of dev.
// Publishing stops at the first failure.
func (p *DiscoveryPublisher) PublishDevice(dev *ism7.Device) error {
	if p.client == nil {
		return ErrNoPublisher
	}
	msgs := p.Messages(dev)
	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Config)
		if err != nil {
			return fmt.Errorf("encoding discovery for %s: %w", msg.Config.UniqueID, err)
		}
		if err := p.client.Publish(msg.Topic, payload, p.qos, p.retain); err != nil {
			return fmt.Errorf("publishing discovery for %s: %w", msg.Config.UniqueID, err)
		}
	}
	p.mu.RLock()
	logger := p.logger
	p.mu.RUnlock()
	if logger != nil {
		logger.Info("published home assistant discovery", "device", dev.ID, "entities", len(msgs))
	}
	return nil
}

// Messages builds the discovery documents of dev without publishing them.
func (p *DiscoveryPublisher) Messages(dev *ism7.Device) []Message {
	var msgs []Message
	for _, param := range dev.Parameters() {
		msg, ok := p.message(dev, param)
		if ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (p *DiscoveryPublisher) message(dev *ism7.Device, param *ism7.Parameter) (Message, bool) {
	desc := param.Descriptor
	component, ok := componentFor(desc)
	if !ok || hidden(desc.ControlType) {
		return Message{}, false
	}

	uniqueID := p.uniqueID(dev, desc)
	suffix := ""
	if desc.Shape() == ism7.ShapeList {
		suffix = "/" + ism7.SubTopicText
	}

	cfg := EntityConfig{
		UniqueID:   uniqueID,
		ObjectID:   uniqueID,
		Name:       desc.Name,
		StateTopic: dev.Topic + "/" + param.Path() + suffix,
		Device:     p.deviceInfo(dev),
	}
	if desc.IsWritable {
		cfg.CommandTopic = dev.Topic + "/set/" + param.Path() + suffix
	}

	switch desc.Shape() {
	case ism7.ShapeNumeric:
		p.numericProperties(&cfg, desc)
	case ism7.ShapeList:
		listProperties(&cfg, desc.List())
	case ism7.ShapeText, ism7.ShapeOther:
	}

	if cfg.Icon == "" {
		cfg.Icon = guessIcon(desc.Name)
	}

	return Message{
		Topic:     fmt.Sprintf("%s/%s/%s/config", p.prefix, component, uniqueID),
		Component: component,
		Config:    cfg,
	}, true
}

// uniqueID returns "<discovery id>_<model>_<write address>_<ptid>_<name>"
// laundered for Home Assistant.
func (p *DiscoveryPublisher) uniqueID(dev *ism7.Device, desc *ism7.ParameterDescriptor) string {
	return ism7.Launder(fmt.Sprintf("%s_%s_%s_%d_%s", p.discoveryID, dev.Name, dev.WriteAddress, desc.PTID, desc.Name))
}

func (p *DiscoveryPublisher) deviceInfo(dev *ism7.Device) *DeviceInfo {
	return &DeviceInfo{
		ConfigurationURL: fmt.Sprintf("http://%s/", dev.IP),
		Manufacturer:     Manufacturer,
		Model:            dev.Name,
		Name:             p.discoveryID + " " + dev.Name,
		Connections:      [][]string{{"ip_dev", dev.IP + "_" + dev.Name}},
	}
}

func (p *DiscoveryPublisher) numericProperties(cfg *EntityConfig, desc *ism7.ParameterDescriptor) {
	n := desc.Numeric()
	if desc.IsWritable {
		if v, ok := n.Min(); ok {
			cfg.Min = &v
		} else if n.MinValueCondition != "" {
			p.logDebug("cannot parse min value", "ptid", desc.PTID, "value", n.MinValueCondition)
		}
		if v, ok := n.Max(); ok {
			cfg.Max = &v
		} else if n.MaxValueCondition != "" {
			p.logDebug("cannot parse max value", "ptid", desc.PTID, "value", n.MaxValueCondition)
		}
		if v, ok := n.Step(); ok {
			cfg.Step = &v
		}
	}

	unit := n.Unit()
	if unit == "" {
		return
	}
	cfg.UnitOfMeasurement = unit
	switch unit {
	case "°C":
		cfg.Icon = "mdi:thermometer"
		cfg.StateClass = "measurement"
	case "%":
		cfg.StateClass = "measurement"
	}
}

func listProperties(cfg *EntityConfig, list *ism7.ListConstraints) {
	if !list.IsBoolean {
		cfg.Options = list.Texts()
		cfg.DeviceClass = "enum"
		return
	}
	for _, opt := range list.Options {
		switch opt.Text {
		case "Ein", "Aktiviert":
			cfg.PayloadOn = opt.Text
		case "Aus", "Deaktiviert":
			cfg.PayloadOff = opt.Text
		}
	}
}

// componentFor maps a descriptor to its entity component.
func componentFor(desc *ism7.ParameterDescriptor) (string, bool) {
	switch desc.Shape() {
	case ism7.ShapeList:
		boolean := desc.List().IsBoolean
		switch {
		case desc.IsWritable && boolean:
			return ComponentSwitch, true
		case desc.IsWritable:
			return ComponentSelect, true
		case boolean:
			return ComponentBinarySensor, true
		default:
			return ComponentSensor, true
		}
	case ism7.ShapeNumeric:
		if desc.IsWritable {
			return ComponentNumber, true
		}
		return ComponentSensor, true
	case ism7.ShapeText, ism7.ShapeOther:
		if desc.IsWritable {
			return ComponentText, true
		}
		return ComponentSensor, true
	default:
		return "", false
	}
}

func hidden(controlType string) bool {
	return controlType == controlDaySwitchTimes || strings.Contains(controlType, controlNoDisplay)
}

// iconRules are tried in order; a pressure match overrides the others.
var iconRules = []struct {
	needle string
	icon   string
}{
	{"brenner", "mdi:fire"},
	{"solar", "mdi:solar-panel"},
	{"ventil", "mdi:pipe-valve"},
	{"heizung", "mdi:radiator"},
	{"pumpe", "mdi:pump"},
}

// guessIcon picks an icon from keywords in the parameter name.
func guessIcon(name string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "druck") {
		return "mdi:gauge"
	}
	for _, rule := range iconRules {
		if strings.Contains(lower, rule.needle) {
			return rule.icon
		}
	}
	return ""
}

var _ ism7.DiscoveryPublisher = (*DiscoveryPublisher)(nil)
