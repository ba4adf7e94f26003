package ism7

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// List parameters publish two extra sub-topics next to the state topic.
const (
	// SubTopicText carries the option display text.
	SubTopicText = "text"

	// SubTopicValue carries the raw option value.
	SubTopicValue = "value"
)

// Parameter is one exposed parameter instance of a device.
type Parameter struct {
	// Descriptor is the catalog description.
	Descriptor *ParameterDescriptor

	// MqttName is the laundered parameter name.
	MqttName string

	// IsDuplicate is set when another parameter of the same device has the
	// same MqttName. Every external identifier then carries the PTID.
	IsDuplicate bool

	conv Converter
}

// PTID returns the parameter type identifier.
func (p *Parameter) PTID() int {
	return p.Descriptor.PTID
}

// Path returns the device-relative topic path: the MqttName, followed by
// "/<PTID>" for duplicates.
func (p *Parameter) Path() string {
	if p.IsDuplicate {
		return p.MqttName + "/" + strconv.Itoa(p.Descriptor.PTID)
	}
	return p.MqttName
}

// CTID returns the converter template identifier.
func (p *Parameter) CTID() string {
	return p.conv.CTID()
}

// Reading is a value taken from a converter in one collection cycle.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	PTID      int       `json:"ptid"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Value     Value     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Device is one heating controller with its own converter instances.
//
// A Device is not safe for concurrent use; the Bridge drives each device
// from a single goroutine.
type Device struct {
	ID           string
	Name         string
	IP           string
	WriteAddress string
	Topic        string

	params     []*Parameter
	byPTID     map[int]*Parameter
	byCTID     map[string][]*Parameter
	byTelegram map[uint16][]*Parameter
	byPath     map[string]*Parameter
}

// NewDevice instantiates converters for the configured parameters.
//
// Parameters that cannot be exposed (unknown PTID, no converter for the
// template kind and shape) are skipped
// and reported in the returned error slice. The device itself is always
// usable.
//
// Parameters:
//   - cfg: Device configuration
//   - topicRoot: Root used when the device has no explicit topic
//   - cat: Parameter catalog
//
// Returns:
//   - *Device: Device with one converter per exposed parameter
//   - []error: One entry per skipped parameter
func NewDevice(cfg DeviceConfig, topicRoot string, cat *Catalog) (*Device, []error) {
	d := &Device{
		ID:           cfg.ID,
		Name:         cfg.Name,
		IP:           cfg.IP,
		WriteAddress: cfg.WriteAddress,
		Topic:        cfg.DeviceTopic(topicRoot),
		byPTID:       make(map[int]*Parameter),
		byCTID:       make(map[string][]*Parameter),
		byTelegram:   make(map[uint16][]*Parameter),
		byPath:       make(map[string]*Parameter),
	}

	ptids := cfg.Parameters
	if len(ptids) == 0 {
		for _, desc := range cat.Descriptors() {
			ptids = append(ptids, desc.PTID)
		}
	}

	var skipped []error
	for _, ptid := range ptids {
		desc, ok := cat.Descriptor(ptid)
		if !ok {
			skipped = append(skipped, fmt.Errorf("%w: device %s: ptid %d not in catalog", ErrUnknownParameter, d.ID, ptid))
			continue
		}
		if _, seen := d.byPTID[ptid]; seen {
			skipped = append(skipped, fmt.Errorf("%w: device %s: ptid %d listed twice", ErrInvalidDescriptor, d.ID, ptid))
			continue
		}
		conv, err := cat.NewConverter(ptid)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("device %s: ptid %d: %w", d.ID, ptid, err))
			continue
		}

		p := &Parameter{Descriptor: desc, MqttName: topicName(desc.Name), conv: conv}
		d.params = append(d.params, p)
		d.byPTID[ptid] = p
		d.byCTID[desc.CTID] = append(d.byCTID[desc.CTID], p)
		for _, n := range conv.Telegrams() {
			d.byTelegram[n] = append(d.byTelegram[n], p)
		}
	}

	markDuplicates(d.params)
	for _, p := range d.params {
		d.byPath[p.Path()] = p
	}

	return d, skipped
}

// markDuplicates flags every parameter whose MqttName is not unique.
func markDuplicates(params []*Parameter) {
	counts := make(map[string]int, len(params))
	for _, p := range params {
		counts[p.MqttName]++
	}
	for _, p := range params {
		p.IsDuplicate = counts[p.MqttName] > 1
	}
}

// Parameters returns the exposed parameters in configuration order.
func (d *Device) Parameters() []*Parameter {
	return append([]*Parameter(nil), d.params...)
}

// Parameter returns the exposed parameter with the given PTID.
func (d *Device) Parameter(ptid int) (*Parameter, bool) {
	p, ok := d.byPTID[ptid]
	return p, ok
}

// ByCTID returns the parameters bound to a converter template, in
// configuration order. Each has its own converter instance.
func (d *Device) ByCTID(ctid string) []*Parameter {
	return append([]*Parameter(nil), d.byCTID[ctid]...)
}

// HandleTelegram routes a telegram to every converter consuming its
// number and returns how many accepted it.
func (d *Device) HandleTelegram(t Telegram) int {
	n := 0
	for _, p := range d.byTelegram[t.Number] {
		if p.conv.AddTelegram(t) {
			n++
		}
	}
	return n
}

// Collect takes the value of every converter that has one.
//
// A converter whose bytes fail to decode is skipped; its error is
// returned next to the readings of all other parameters.
func (d *Device) Collect(now time.Time) ([]Reading, []error) {
	var (
		readings []Reading
		errs     []error
	)
	for _, p := range d.params {
		if !p.conv.HasValue() {
			continue
		}
		v, err := p.conv.TakeValue()
		if err != nil {
			errs = append(errs, fmt.Errorf("device %s: ptid %d (%s): %w", d.ID, p.PTID(), p.Descriptor.Name, err))
			continue
		}
		readings = append(readings, Reading{
			DeviceID:  d.ID,
			PTID:      p.PTID(),
			Name:      p.Descriptor.Name,
			Path:      p.Path(),
			Value:     v,
			Timestamp: now,
		})
	}
	return readings, errs
}

// Resolve finds the parameter addressed by a set-topic path:
// "<MqttName>[/<PTID>][/text|/value]".
func (d *Device) Resolve(path string) (*Parameter, error) {
	path = strings.Trim(path, "/")
	if p, ok := d.byPath[path]; ok {
		return p, nil
	}
	if i := strings.LastIndex(path, "/"); i > 0 {
		suffix := path[i+1:]
		if suffix == SubTopicText || suffix == SubTopicValue {
			if p, ok := d.byPath[path[:i]]; ok && p.Descriptor.Shape() == ShapeList {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: device %s: path %q", ErrUnknownParameter, d.ID, path)
}

// Write encodes a write request addressed by set-topic path.
func (d *Device) Write(path, value string) (*Parameter, []WriteCommand, error) {
	p, err := d.Resolve(path)
	if err != nil {
		return nil, nil, err
	}
	cmds, err := d.encode(p, value)
	return p, cmds, err
}

// WriteByPTID encodes a write request addressed by PTID.
func (d *Device) WriteByPTID(ptid int, value string) (*Parameter, []WriteCommand, error) {
	p, ok := d.byPTID[ptid]
	if !ok {
		return nil, nil, fmt.Errorf("%w: device %s: ptid %d", ErrUnknownParameter, d.ID, ptid)
	}
	cmds, err := d.encode(p, value)
	return p, cmds, err
}

func (d *Device) encode(p *Parameter, value string) ([]WriteCommand, error) {
	if !p.Descriptor.IsWritable {
		return nil, fmt.Errorf("%w: device %s: ptid %d (%s)", ErrNotWritable, d.ID, p.PTID(), p.Descriptor.Name)
	}
	cmds, err := p.conv.WriteCommands(value)
	if err != nil {
		return nil, fmt.Errorf("device %s: ptid %d: %w", d.ID, p.PTID(), err)
	}
	return cmds, nil
}
