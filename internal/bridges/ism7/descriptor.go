package ism7

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Shape is the value shape a parameter descriptor declares.
type Shape int

// Parameter shapes.
const (
	// ShapeNumeric is a scalar number with optional min, max and step.
	ShapeNumeric Shape = iota + 1

	// ShapeList is an enumeration of raw wire values with display texts.
	ShapeList

	// ShapeText is free text.
	ShapeText

	// ShapeOther covers parameters with no constraints, such as durations.
	ShapeOther
)

// shapeNames maps shapes to their catalog spelling.
var shapeNames = map[Shape]string{
	ShapeNumeric: "numeric",
	ShapeList:    "list",
	ShapeText:    "text",
	ShapeOther:   "other",
}

// String returns the catalog spelling of the shape.
func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// ParseShape parses a catalog shape name (case-insensitive).
func ParseShape(name string) (Shape, error) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for shape, n := range shapeNames {
		if n == needle {
			return shape, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown shape %q", ErrInvalidDescriptor, name)
}

// ListOption is one entry of an enumerated parameter.
type ListOption struct {
	// Value is the raw wire value.
	Value int `yaml:"value" json:"value"`

	// Text is the display value.
	Text string `yaml:"text" json:"text"`
}

// NumericConstraints holds the constraints of a numeric parameter.
//
// Min and max are kept as the catalog wrote them and parsed on demand: a
// malformed bound is tolerated and simply not enforced. The step width is
// central to write validation and is parsed when the descriptor is built.
type NumericConstraints struct {
	MinValueCondition string
	MaxValueCondition string
	StepWidth         string
	UnitName          string

	step    float64
	hasStep bool
}

// Min returns the lower bound, or false when none is declared or the
// expression does not parse.
func (n *NumericConstraints) Min() (float64, bool) {
	if n == nil {
		return 0, false
	}
	return parseBound(n.MinValueCondition)
}

// Max returns the upper bound, or false when none is declared or the
// expression does not parse.
func (n *NumericConstraints) Max() (float64, bool) {
	if n == nil {
		return 0, false
	}
	return parseBound(n.MaxValueCondition)
}

// Step returns the step width, or false when none is declared.
func (n *NumericConstraints) Step() (float64, bool) {
	if n == nil {
		return 0, false
	}
	return n.step, n.hasStep
}

// Unit returns the unit label (may be empty).
func (n *NumericConstraints) Unit() string {
	if n == nil {
		return ""
	}
	return n.UnitName
}

// parseBound parses a min/max expression using invariant number formatting.
func parseBound(expr string) (float64, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, false
	}
	v, err := parseInvariantFloat(expr)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseInvariantFloat parses a decimal number with "." as separator and
// rejects NaN and infinities.
func parseInvariantFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return v, nil
}

// ListConstraints holds the options of an enumerated parameter.
type ListConstraints struct {
	// Options are the allowed values in catalog order.
	Options []ListOption

	// IsBoolean marks a two-state on/off enumeration.
	IsBoolean bool

	byValue map[int]int
}

// Lookup returns the option for a raw wire value.
func (l *ListConstraints) Lookup(raw int) (ListOption, bool) {
	if l == nil {
		return ListOption{}, false
	}
	idx, ok := l.byValue[raw]
	if !ok {
		return ListOption{}, false
	}
	return l.Options[idx], true
}

// Find returns the option whose display text matches text
// (case-insensitive), falling back to a raw value given as a decimal string.
func (l *ListConstraints) Find(text string) (ListOption, bool) {
	if l == nil {
		return ListOption{}, false
	}
	text = strings.TrimSpace(text)
	for _, opt := range l.Options {
		if strings.EqualFold(opt.Text, text) {
			return opt, true
		}
	}
	raw, err := strconv.Atoi(text)
	if err != nil {
		return ListOption{}, false
	}
	return l.Lookup(raw)
}

// Texts returns the display texts in catalog order.
func (l *ListConstraints) Texts() []string {
	if l == nil {
		return nil
	}
	texts := make([]string, len(l.Options))
	for i, opt := range l.Options {
		texts[i] = opt.Text
	}
	return texts
}

// NumericSpec is the catalog form of numeric constraints.
type NumericSpec struct {
	Min  string `yaml:"min"`
	Max  string `yaml:"max"`
	Step string `yaml:"step"`
	Unit string `yaml:"unit"`
}

// ListSpec is the catalog form of list constraints.
type ListSpec struct {
	Options []ListOption `yaml:"options"`
	Boolean bool         `yaml:"boolean"`
}

// DescriptorSpec is the catalog form of a parameter descriptor.
type DescriptorSpec struct {
	PTID        int          `yaml:"ptid"`
	Name        string       `yaml:"name"`
	CTID        string       `yaml:"ctid"`
	Writable    bool         `yaml:"writable"`
	ControlType string       `yaml:"control_type"`
	Shape       string       `yaml:"shape"`
	Numeric     *NumericSpec `yaml:"numeric,omitempty"`
	List        *ListSpec    `yaml:"list,omitempty"`
}

// ParameterDescriptor describes one controller parameter.
//
// Descriptors are immutable once built by NewDescriptor. The shape and its
// constraint section are only reachable through accessors.
type ParameterDescriptor struct {
	// PTID is the parameter type identifier.
	PTID int

	// Name is the human-readable parameter name.
	Name string

	// CTID identifies the converter template the parameter binds to.
	CTID string

	// IsWritable permits outbound conversion.
	IsWritable bool

	// ControlType classifies the parameter for discovery.
	ControlType string

	shape   Shape
	numeric *NumericConstraints
	list    *ListConstraints
}

// Shape returns the declared value shape.
func (d *ParameterDescriptor) Shape() Shape {
	return d.shape
}

// Numeric returns the numeric constraints, or nil for other shapes.
func (d *ParameterDescriptor) Numeric() *NumericConstraints {
	return d.numeric
}

// List returns the list constraints, or nil for other shapes.
func (d *ParameterDescriptor) List() *ListConstraints {
	return d.list
}

// String returns a compact representation for logging.
func (d *ParameterDescriptor) String() string {
	return fmt.Sprintf("%d:%s (%s, %s)", d.PTID, d.Name, d.shape, d.CTID)
}

// NewDescriptor builds and validates a descriptor from its catalog form.
//
// Parameters:
//   - spec: Catalog entry
//
// Returns:
//   - *ParameterDescriptor: Immutable descriptor
//   - error: ErrInvalidDescriptor wrapped with details when the entry is
//     inconsistent (constraint section for another shape, bad step width,
//     empty or duplicated list options)
func NewDescriptor(spec DescriptorSpec) (*ParameterDescriptor, error) {
	if spec.PTID <= 0 {
		return nil, fmt.Errorf("%w: ptid must be positive, got %d", ErrInvalidDescriptor, spec.PTID)
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: ptid %d: name is required", ErrInvalidDescriptor, spec.PTID)
	}
	if strings.TrimSpace(spec.CTID) == "" {
		return nil, fmt.Errorf("%w: ptid %d: ctid is required", ErrInvalidDescriptor, spec.PTID)
	}

	shape, err := ParseShape(spec.Shape)
	if err != nil {
		return nil, fmt.Errorf("ptid %d: %w", spec.PTID, err)
	}

	d := &ParameterDescriptor{
		PTID:        spec.PTID,
		Name:        spec.Name,
		CTID:        spec.CTID,
		IsWritable:  spec.Writable,
		ControlType: spec.ControlType,
		shape:       shape,
	}

	if spec.Numeric != nil && shape != ShapeNumeric {
		return nil, fmt.Errorf("%w: ptid %d: numeric section on %s parameter", ErrInvalidDescriptor, spec.PTID, shape)
	}
	if spec.List != nil && shape != ShapeList {
		return nil, fmt.Errorf("%w: ptid %d: list section on %s parameter", ErrInvalidDescriptor, spec.PTID, shape)
	}

	switch shape {
	case ShapeNumeric:
		d.numeric, err = newNumericConstraints(spec.Numeric)
	case ShapeList:
		d.list, err = newListConstraints(spec.List)
	case ShapeText, ShapeOther:
	}
	if err != nil {
		return nil, fmt.Errorf("%w: ptid %d: %w", ErrInvalidDescriptor, spec.PTID, err)
	}

	return d, nil
}

func newNumericConstraints(spec *NumericSpec) (*NumericConstraints, error) {
	if spec == nil {
		return &NumericConstraints{}, nil
	}
	n := &NumericConstraints{
		MinValueCondition: spec.Min,
		MaxValueCondition: spec.Max,
		StepWidth:         spec.Step,
		UnitName:          spec.Unit,
	}
	if strings.TrimSpace(spec.Step) != "" {
		step, err := parseInvariantFloat(spec.Step)
		if err != nil {
			return nil, fmt.Errorf("step width %q is not a number", spec.Step)
		}
		if step <= 0 {
			return nil, fmt.Errorf("step width %q must be positive", spec.Step)
		}
		n.step = step
		n.hasStep = true
	}
	return n, nil
}

func newListConstraints(spec *ListSpec) (*ListConstraints, error) {
	if spec == nil || len(spec.Options) == 0 {
		return nil, fmt.Errorf("list has no options")
	}
	l := &ListConstraints{
		Options:   make([]ListOption, len(spec.Options)),
		IsBoolean: spec.Boolean,
		byValue:   make(map[int]int, len(spec.Options)),
	}
	copy(l.Options, spec.Options)
	for i, opt := range l.Options {
		if _, dup := l.byValue[opt.Value]; dup {
			return nil, fmt.Errorf("duplicate option value %d", opt.Value)
		}
		l.byValue[opt.Value] = i
	}
	if l.IsBoolean && len(l.Options) != 2 {
		return nil, fmt.Errorf("boolean list needs exactly 2 options, got %d", len(l.Options))
	}
	return l, nil
}
